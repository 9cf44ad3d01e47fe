// Package bunstore is a concorsi.Store backed by a SQL database through bun.
// Plans are translated into go-repository-bun select criteria; SQLite is the
// bundled dialect.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/concoro-it/concoro/concorsi"
	"github.com/concoro-it/concoro/internal/logging"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger logs every query at debug level and failed queries at warn level.
func WithLogger(logger logging.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store implements concorsi.Store and concorsi.Counter on a bun database.
type Store struct {
	db     *bun.DB
	logger logging.Logger
}

// OpenSQLite opens a SQLite database. A single connection is kept so that
// in-memory databases survive between queries.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("bunstore: open %q: %w", dsn, err)
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// New wraps db. Call CreateSchema before the first query on a fresh database.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).With("component", "bunstore")
	db.AddQueryHook(queryLogger{logger: s.logger})
	return s
}

// CreateSchema creates the concorsi table and its listing indexes.
func (s *Store) CreateSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*Record)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("bunstore: create table: %w", err)
	}

	indexes := map[string][]string{
		"concorsi_status_published_idx": {"status", "published_at"},
		"concorsi_status_deadline_idx":  {"status", "deadline"},
		"concorsi_region_idx":           {"region", "status"},
		"concorsi_ente_idx":             {"ente_key", "status"},
	}
	for name, cols := range indexes {
		_, err := s.db.NewCreateIndex().
			Model((*Record)(nil)).
			Index(name).
			Column(cols...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("bunstore: create index %s: %w", name, err)
		}
	}
	return nil
}

// Seed upserts docs in one transaction.
func (s *Store) Seed(ctx context.Context, docs []concorsi.Concorso) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, c := range docs {
			if err := upsert(ctx, tx, fromConcorso(c)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Criteria translates plan into select criteria. cursor is the record named
// by plan.StartAfter, nil when the plan has no cursor.
func Criteria(plan concorsi.Plan, cursor *concorsi.Concorso) ([]repository.SelectCriteria, error) {
	where, err := Where(plan)
	if err != nil {
		return nil, err
	}
	order, err := OrderBy(plan)
	if err != nil {
		return nil, err
	}

	criteria := []repository.SelectCriteria{where, order}
	if cursor != nil {
		after, err := After(plan, *cursor)
		if err != nil {
			return nil, err
		}
		criteria = append(criteria, after)
	}
	return append(criteria, Page(plan)), nil
}

// Query implements concorsi.Store.
func (s *Store) Query(ctx context.Context, plan concorsi.Plan) ([]concorsi.Concorso, error) {
	var cursor *concorsi.Concorso
	if plan.StartAfter != "" {
		c, err := s.Get(ctx, plan.StartAfter)
		if errors.Is(err, concorsi.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", concorsi.ErrInvalidCursor, plan.StartAfter)
		}
		if err != nil {
			return nil, err
		}
		cursor = &c
	}

	criteria, err := Criteria(plan, cursor)
	if err != nil {
		return nil, err
	}

	var records []*Record
	q := s.db.NewSelect().Model(&records)
	for _, c := range criteria {
		q = c(q)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, wrap("query", err)
	}

	out := make([]concorsi.Concorso, len(records))
	for i, r := range records {
		out[i] = r.Concorso()
	}
	return out, nil
}

// Count implements concorsi.Counter. Ordering and pagination are ignored.
func (s *Store) Count(ctx context.Context, plan concorsi.Plan) (int, error) {
	where, err := Where(plan)
	if err != nil {
		return 0, err
	}
	n, err := where(s.db.NewSelect().Model((*Record)(nil))).Count(ctx)
	if err != nil {
		return 0, wrap("count", err)
	}
	return n, nil
}

// Get implements concorsi.Store.
func (s *Store) Get(ctx context.Context, id string) (concorsi.Concorso, error) {
	rec := new(Record)
	err := s.db.NewSelect().Model(rec).Where("c.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return concorsi.Concorso{}, fmt.Errorf("%w: %q", concorsi.ErrNotFound, id)
	}
	if err != nil {
		return concorsi.Concorso{}, wrap("get", err)
	}
	return rec.Concorso(), nil
}

// Put implements concorsi.Store as an upsert on id.
func (s *Store) Put(ctx context.Context, c concorsi.Concorso) error {
	return upsert(ctx, s.db, fromConcorso(c))
}

var upsertColumns = []string{
	"title", "ente", "ente_key", "region", "province", "sector", "sector_key", "regime", "status",
	"published_at", "deadline", "positions", "url", "summary", "keywords", "updated_at",
}

func upsert(ctx context.Context, db bun.IDB, rec *Record) error {
	q := db.NewInsert().Model(rec).On("CONFLICT (id) DO UPDATE")
	for _, col := range upsertColumns {
		q = q.Set(col + " = EXCLUDED." + col)
	}
	if _, err := q.Exec(ctx); err != nil {
		return wrap("put", err)
	}
	return nil
}

// Delete implements concorsi.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*Record)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return wrap("delete", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %q", concorsi.ErrNotFound, id)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// wrap reports driver failures as concorsi.ErrStoreUnavailable. Context errors
// are returned unchanged so callers can tell timeouts apart.
func wrap(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("bunstore %s: %w: %w", op, concorsi.ErrStoreUnavailable, err)
}

type queryLogger struct {
	logger logging.Logger
}

func (h queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		h.logger.Warn("query failed", "op", event.Operation(), "duration", elapsed, "error", event.Err)
		return
	}
	h.logger.Debug("query", "op", event.Operation(), "duration", elapsed, "sql", event.Query)
}

var (
	_ concorsi.Store   = (*Store)(nil)
	_ concorsi.Counter = (*Store)(nil)
	_ bun.QueryHook    = queryLogger{}
)
