package concorsi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/concoro-it/concoro/cache"
	"github.com/concoro-it/concoro/internal/logging"
)

// Cache key prefixes.
const (
	ListKeyPrefix    = "concorsi:list"
	DetailKeyPrefix  = "concorsi:detail"
	OptionsKeyPrefix = "concorsi:options"
)

// Config holds the service tunables.
type Config struct {
	// QueryTimeout bounds every store call. Default: 30s
	QueryTimeout time.Duration
	// ListTTL is the cache TTL of listing pages. Default: 5m
	ListTTL time.Duration
	// DetailTTL is the cache TTL of single records. Default: 15m
	DetailTTL time.Duration
	// OptionsTTL is the cache TTL of filter option lists. Default: 30m
	OptionsTTL time.Duration
	// OptionsSampleSize caps the records scanned by GetFilterOptions. Default: 300
	OptionsSampleSize int
	// Location resolves deadline windows such as "today". Default: UTC
	Location *time.Location
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueryTimeout:      30 * time.Second,
		ListTTL:           5 * time.Minute,
		DetailTTL:         15 * time.Minute,
		OptionsTTL:        30 * time.Minute,
		OptionsSampleSize: 300,
		Location:          time.UTC,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.QueryTimeout <= 0 {
		return &ConfigError{Field: "QueryTimeout", Message: "must be greater than 0"}
	}
	if c.ListTTL < 0 || c.DetailTTL < 0 || c.OptionsTTL < 0 {
		return &ConfigError{Field: "TTL", Message: "must be non-negative"}
	}
	if c.OptionsSampleSize <= 0 {
		return &ConfigError{Field: "OptionsSampleSize", Message: "must be greater than 0"}
	}
	return nil
}

// Dependencies are the collaborators of a Service. Store and Cache are required.
type Dependencies struct {
	Store    Store
	Cache    *cache.Manager
	Clock    clockwork.Clock
	Logger   logging.Logger
	Observer Observer
}

// Service answers listing, detail and filter option queries through the cache,
// deduplicating concurrent misses, and applies writes with cache invalidation.
type Service struct {
	cfg      Config
	store    Store
	cache    *cache.Manager
	clock    clockwork.Clock
	logger   logging.Logger
	observer Observer
}

// NewService validates cfg and builds a Service.
func NewService(cfg Config, deps Dependencies) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, &ConfigError{Field: "Store", Message: "is required"}
	}
	if deps.Cache == nil {
		return nil, &ConfigError{Field: "Cache", Message: "is required"}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		cache:    deps.Cache,
		clock:    deps.Clock,
		logger:   logging.OrNop(deps.Logger).With("component", "concorsi"),
		observer: deps.Observer,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.observer == nil {
		s.observer = NopObserver{}
	}
	return s, nil
}

// GetFilteredConcorsi returns one page of concorsi matching req.
//
// The request is normalized, validated and turned into a plan before any I/O;
// invalid requests fail with ErrInvalidFilter or ErrInvalidFilterCombination.
// Results are cached under a canonical key of the normalized request, and
// concurrent misses for the same key share a single store query.
func (s *Service) GetFilteredConcorsi(ctx context.Context, req FilterRequest) (QueryResult, error) {
	applied := req.Normalize()
	plan, err := BuildPlan(applied, s.now())
	if err != nil {
		return QueryResult{}, err
	}

	key := s.cache.Key(ListKeyPrefix, applied.KeyParams())
	return cache.CachedOperation(ctx, s.cache, key, func(ctx context.Context) (QueryResult, error) {
		return s.execute(ctx, plan, applied)
	}, cache.WithTTL(s.cfg.ListTTL))
}

func (s *Service) execute(ctx context.Context, plan Plan, applied FilterRequest) (QueryResult, error) {
	records, err := runQuery(ctx, s, "list", func(ctx context.Context) ([]Concorso, error) {
		return s.store.Query(ctx, plan)
	})
	if err != nil {
		return QueryResult{}, err
	}

	result := newQueryResult(records, plan, applied)

	if applied.IncludeTotal {
		if counter, ok := s.store.(Counter); ok {
			total, err := runQuery(ctx, s, "count", func(ctx context.Context) (int, error) {
				return counter.Count(ctx, plan)
			})
			if err != nil {
				return QueryResult{}, err
			}
			result.Total = &total
		}
	}

	return result, nil
}

// GetConcorsiByRegime lists concorsi with the given work regime. Other fields
// of opts apply as secondary filters.
func (s *Service) GetConcorsiByRegime(ctx context.Context, regime string, opts FilterRequest) (QueryResult, error) {
	opts.Primary = ByRegime(regime)
	return s.GetFilteredConcorsi(ctx, opts)
}

// GetConcorsiByEnte lists concorsi issued by ente.
func (s *Service) GetConcorsiByEnte(ctx context.Context, ente string, opts FilterRequest) (QueryResult, error) {
	opts.Primary = ByEnte(ente)
	return s.GetFilteredConcorsi(ctx, opts)
}

// GetConcorsiByRegion lists concorsi in region.
func (s *Service) GetConcorsiByRegion(ctx context.Context, region string, opts FilterRequest) (QueryResult, error) {
	opts.Primary = ByRegion(region)
	return s.GetFilteredConcorsi(ctx, opts)
}

// GetConcorsiBySector lists concorsi in sector.
func (s *Service) GetConcorsiBySector(ctx context.Context, sector string, opts FilterRequest) (QueryResult, error) {
	opts.Primary = BySector(sector)
	return s.GetFilteredConcorsi(ctx, opts)
}

// GetConcorsiByDeadline lists concorsi closing within bucket.
func (s *Service) GetConcorsiByDeadline(ctx context.Context, bucket DeadlineBucket, opts FilterRequest) (QueryResult, error) {
	opts.Primary = ByDeadline(bucket)
	return s.GetFilteredConcorsi(ctx, opts)
}

// GetConcorsoByID returns a single record, cached under its own key.
func (s *Service) GetConcorsoByID(ctx context.Context, id string) (Concorso, error) {
	if id == "" {
		return Concorso{}, &FilterError{Field: "id", Message: "cannot be blank"}
	}

	key := s.detailKey(id)
	return cache.CachedOperation(ctx, s.cache, key, func(ctx context.Context) (Concorso, error) {
		c, err := runQuery(ctx, s, "get", func(ctx context.Context) (Concorso, error) {
			return s.store.Get(ctx, id)
		})
		if err != nil {
			return Concorso{}, err
		}
		return c.Normalize(), nil
	}, cache.WithTTL(s.cfg.DetailTTL))
}

// SaveConcorso validates and stores c, assigning an id when empty and
// rebuilding its keyword index, then invalidates every cached listing and the
// record's detail entry.
func (s *Service) SaveConcorso(ctx context.Context, c Concorso) (Concorso, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusOpen
	} else {
		c.Status = NormalizeStatus(string(c.Status))
	}
	c.Region = NormalizeRegion(c.Region)
	c.Regime = NormalizeRegime(c.Regime)
	c.Ente = collapse(c.Ente)
	c.Sector = collapse(c.Sector)
	c.Keywords = BuildKeywords(c)
	c.UpdatedAt = s.clock.Now()
	if c.PublishedAt.IsZero() {
		c.PublishedAt = c.UpdatedAt
	}
	c = c.Normalize()

	if err := c.Validate(); err != nil {
		return Concorso{}, toFilterError(err)
	}

	_, err := runQuery(ctx, s, "put", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.Put(ctx, c)
	})
	if err != nil {
		return Concorso{}, err
	}

	s.invalidate(ctx, c.ID)
	return c, nil
}

// DeleteConcorso removes the record with id and invalidates the cache.
func (s *Service) DeleteConcorso(ctx context.Context, id string) error {
	_, err := runQuery(ctx, s, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	for _, prefix := range []string{ListKeyPrefix, OptionsKeyPrefix} {
		if err := s.cache.Invalidate(ctx, prefix); err != nil {
			s.logger.Warn("cache invalidation failed", "prefix", prefix, "error", err)
		}
	}
	if err := s.cache.Forget(ctx, s.detailKey(id)); err != nil {
		s.logger.Warn("cache invalidation failed", "id", id, "error", err)
	}
}

func (s *Service) detailKey(id string) string {
	return s.cache.Key(DetailKeyPrefix, cache.Params{"id": id})
}

func (s *Service) now() time.Time {
	return s.clock.Now().In(s.cfg.Location)
}

// runQuery runs fn under the query timeout and classifies its error. The
// timeout is a race between fn and a timer, so a store that ignores its
// context still cannot hold the caller past the budget.
func runQuery[T any](ctx context.Context, s *Service, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	started := time.Now()
	go func() {
		v, err := fn(qctx)
		done <- outcome{value: v, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-qctx.Done():
		res = outcome{err: qctx.Err()}
	}

	if res.err == nil {
		s.observer.StoreQuery(op, OutcomeOK)
		return res.value, nil
	}

	err := s.classify(ctx, res.err)
	switch {
	case errors.Is(err, ErrQueryTimeout):
		s.observer.StoreQuery(op, OutcomeTimeout)
		s.logger.Warn("store query timed out", "op", op, "timeout", s.cfg.QueryTimeout, "elapsed", time.Since(started))
	case errors.Is(err, ErrNotFound):
		s.observer.StoreQuery(op, OutcomeNotFound)
	case errors.Is(err, ErrStoreUnavailable):
		s.observer.StoreQuery(op, OutcomeUnavailable)
		s.logger.Error("store unavailable", "op", op, "error", err)
	default:
		s.observer.StoreQuery(op, OutcomeError)
	}
	return zero, err
}

func (s *Service) classify(parent context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		return parent.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", ErrQueryTimeout, s.cfg.QueryTimeout)
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidCursor),
		errors.Is(err, ErrInvalidFilter),
		errors.Is(err, ErrQueryTimeout),
		errors.Is(err, ErrStoreUnavailable):
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
