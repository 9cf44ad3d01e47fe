package docstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/concoro-it/concoro/concorsi"
	"github.com/concoro-it/concoro/pkg/testsupport"
)

const catalogPath = "../../concorsi/testdata/catalog.json"

func TestStore_Contract(t *testing.T) {
	docs := testsupport.LoadConcorsi(t, catalogPath)
	testsupport.RunStoreContract(t, docs, func(t *testing.T, docs []concorsi.Concorso) concorsi.Store {
		return New(docs)
	})
}

func TestStore_FailWrapsUnavailable(t *testing.T) {
	store := New(testsupport.LoadConcorsi(t, catalogPath))
	store.Fail(errors.New("connection reset"))

	_, err := store.Query(context.Background(), concorsi.Plan{Limit: 10})
	if !errors.Is(err, concorsi.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("cause should be kept, got %v", err)
	}

	store.Fail(nil)
	if _, err := store.Get(context.Background(), "rm-001"); err != nil {
		t.Errorf("store should recover after Fail(nil): %v", err)
	}
}

func TestStore_LatencyHonorsContext(t *testing.T) {
	store := New(nil, WithLatency(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := store.Query(ctx, concorsi.Plan{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if store.Queries() != 1 {
		t.Errorf("Queries() = %d, want 1", store.Queries())
	}
}

func TestLoadJSON(t *testing.T) {
	store, err := LoadJSON(testsupport.LoadReader(t, catalogPath))
	if err != nil {
		t.Fatalf("LoadJSON() failed: %v", err)
	}
	if store.Len() != 7 {
		t.Errorf("Len() = %d, want 7", store.Len())
	}

	got, err := store.Get(context.Background(), "to-001")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Keywords) == 0 {
		t.Error("keywords should be built for seeds without them")
	}

	if _, err := LoadJSON(strings.NewReader("{not json")); err == nil {
		t.Error("expected decode error")
	}
}
