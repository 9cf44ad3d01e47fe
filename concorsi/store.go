package concorsi

import "context"

// Store executes plans against the concorsi collection.
//
// Contract:
//   - Query returns at most plan.Limit records in plan order, skipping plan.Offset
//     records and starting after the record with id plan.StartAfter when set.
//     An unknown StartAfter fails with ErrInvalidCursor.
//   - Get fails with ErrNotFound for unknown ids.
//   - Delete fails with ErrNotFound for unknown ids.
//   - Transport failures are reported wrapped in ErrStoreUnavailable.
type Store interface {
	Query(ctx context.Context, plan Plan) ([]Concorso, error)
	Get(ctx context.Context, id string) (Concorso, error)
	Put(ctx context.Context, c Concorso) error
	Delete(ctx context.Context, id string) error
}

// Counter is implemented by stores able to count the records matching a plan,
// ignoring its pagination.
type Counter interface {
	Count(ctx context.Context, plan Plan) (int, error)
}

// Observer receives store query outcomes. Implementations must be safe for
// concurrent use.
type Observer interface {
	StoreQuery(op, outcome string)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) StoreQuery(string, string) {}

// Query outcomes reported to Observer.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "unavailable"
	OutcomeNotFound    = "not_found"
)
