package testsupport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/concoro-it/concoro/concorsi"
)

// CatalogNow is the reference time the catalog fixture is written against.
var CatalogNow = time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

// StoreFactory returns a store seeded with docs.
type StoreFactory func(t *testing.T, docs []concorsi.Concorso) concorsi.Store

// RunStoreContract checks that a concorsi.Store executes plans the way the
// in-memory reference store does. docs is usually the catalog fixture.
func RunStoreContract(t *testing.T, docs []concorsi.Concorso, newStore StoreFactory) {
	t.Helper()
	ctx := context.Background()

	plan := func(t *testing.T, req concorsi.FilterRequest) concorsi.Plan {
		t.Helper()
		p, err := concorsi.BuildPlan(req, CatalogNow)
		if err != nil {
			t.Fatalf("BuildPlan() failed: %v", err)
		}
		return p
	}

	ids := func(items []concorsi.Concorso) []string {
		out := make([]string, len(items))
		for i, c := range items {
			out[i] = c.ID
		}
		return out
	}

	queries := []struct {
		name string
		req  concorsi.FilterRequest
		want []string
	}{
		{
			name: "open by publication",
			req:  concorsi.FilterRequest{},
			want: []string{"mi-001", "rm-002", "na-001", "rm-001", "to-001", "fi-001"},
		},
		{
			name: "all statuses",
			req:  concorsi.FilterRequest{Status: concorsi.StatusAll, Primary: concorsi.ByEnte("Comune di Roma")},
			want: []string{"rm-002", "rm-001", "rm-003"},
		},
		{
			name: "ente ignores case",
			req:  concorsi.FilterRequest{Status: concorsi.StatusAll, Primary: concorsi.ByEnte("comune DI  roma")},
			want: []string{"rm-002", "rm-001", "rm-003"},
		},
		{
			name: "sector ignores case and accents",
			req:  concorsi.FilterRequest{Sector: "SANITA"},
			want: []string{"mi-001", "na-001"},
		},
		{
			name: "regions in",
			req:  concorsi.FilterRequest{Regions: []string{"Lazio", "Campania"}, Sort: concorsi.SortPositionsDesc},
			want: []string{"na-001", "rm-001", "rm-002"},
		},
		{
			name: "deadline week",
			req:  concorsi.FilterRequest{Primary: concorsi.ByDeadline(concorsi.DeadlineWeek)},
			want: []string{"na-001", "mi-001"},
		},
		{
			name: "deadline ascending puts missing deadlines last",
			req:  concorsi.FilterRequest{Sort: concorsi.SortDeadlineAsc},
			want: []string{"na-001", "mi-001", "rm-001", "rm-002", "fi-001", "to-001"},
		},
		{
			name: "keyword",
			req:  concorsi.FilterRequest{Keyword: "infermiere"},
			want: []string{"mi-001"},
		},
		{
			// the range field orders first, the requested sort only breaks ties
			name: "published after",
			req:  concorsi.FilterRequest{PublishedAfter: TimePtr(Date(2025, time.March, 2)), Sort: concorsi.SortTitleAsc},
			want: []string{"na-001", "rm-002", "mi-001"},
		},
		{
			name: "page size with look ahead",
			req:  concorsi.FilterRequest{PageSize: 2},
			want: []string{"mi-001", "rm-002", "na-001"},
		},
		{
			name: "page offset",
			req:  concorsi.FilterRequest{PageSize: 2, Page: 3},
			want: []string{"to-001", "fi-001"},
		},
		{
			name: "cursor",
			req:  concorsi.FilterRequest{PageSize: 2, Cursor: "rm-002"},
			want: []string{"na-001", "rm-001", "to-001"},
		},
	}

	for _, tt := range queries {
		t.Run("Query/"+tt.name, func(t *testing.T) {
			store := newStore(t, docs)
			got, err := store.Query(ctx, plan(t, tt.req))
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("Query() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("Query/unknown cursor", func(t *testing.T) {
		store := newStore(t, docs)
		_, err := store.Query(ctx, plan(t, concorsi.FilterRequest{Cursor: "missing"}))
		if !errors.Is(err, concorsi.ErrInvalidCursor) {
			t.Errorf("expected ErrInvalidCursor, got %v", err)
		}
	})

	t.Run("Count", func(t *testing.T) {
		store := newStore(t, docs)
		counter, ok := store.(concorsi.Counter)
		if !ok {
			t.Skip("store does not count")
		}
		n, err := counter.Count(ctx, plan(t, concorsi.FilterRequest{PageSize: 1}))
		if err != nil {
			t.Fatalf("Count() failed: %v", err)
		}
		if n != 6 {
			t.Errorf("Count() = %d, want 6", n)
		}
	})

	t.Run("Get", func(t *testing.T) {
		store := newStore(t, docs)
		got, err := store.Get(ctx, "mi-001")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if got.Title != "Infermiere professionale" || got.PublishedAt.Location() != time.UTC {
			t.Errorf("unexpected record %+v", got)
		}
		if _, err := store.Get(ctx, "missing"); !errors.Is(err, concorsi.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Put and Delete", func(t *testing.T) {
		store := newStore(t, docs)
		deadline := Date(2025, time.March, 13)
		c := concorsi.Concorso{
			ID:          "bo-001",
			Title:       "Bibliotecario",
			Ente:        "Comune di Bologna",
			Region:      "Emilia-Romagna",
			Sector:      "Cultura",
			Regime:      concorsi.RegimeFullTime,
			Status:      concorsi.StatusOpen,
			PublishedAt: Date(2025, time.March, 10),
			Deadline:    &deadline,
			Positions:   3,
		}
		c.Keywords = concorsi.BuildKeywords(c)

		if err := store.Put(ctx, c); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
		c.Positions = 4
		if err := store.Put(ctx, c); err != nil {
			t.Fatalf("Put() as update failed: %v", err)
		}

		got, err := store.Get(ctx, "bo-001")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if got.Positions != 4 || !got.Deadline.Equal(deadline) {
			t.Errorf("unexpected record after upsert %+v", got)
		}

		items, err := store.Query(ctx, plan(t, concorsi.FilterRequest{Keyword: "bibliotecario", Ente: "Comune di Bologna"}))
		if err != nil || len(items) != 1 {
			t.Errorf("keyword query after Put = %v, %v", ids(items), err)
		}

		if err := store.Delete(ctx, "bo-001"); err != nil {
			t.Fatalf("Delete() failed: %v", err)
		}
		if err := store.Delete(ctx, "bo-001"); !errors.Is(err, concorsi.ErrNotFound) {
			t.Errorf("second Delete() should fail with ErrNotFound, got %v", err)
		}
	})
}
