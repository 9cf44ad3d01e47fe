// Package dedupe collapses concurrent calls that share a key into a single
// execution.
//
// The first caller for a key starts the operation; callers arriving while it
// is pending wait for the same outcome instead of issuing their own call. The
// key is released as soon as the operation settles, on success, error or
// panic, so a failure is never remembered.
//
//	group := dedupe.New(dedupe.WithStaleAfter(30 * time.Second))
//	result, err := dedupe.Do(ctx, group, key, func(ctx context.Context) (Page, error) {
//		return store.Query(ctx, plan)
//	})
//
// # Staleness
//
// A pending execution older than the staleness bound is abandoned: the next
// caller starts a fresh execution instead of joining it. This keeps a key from
// being blocked by an operation that never returns.
//
// # Cancellation
//
// The operation runs on a context detached from the cancellation of the caller
// that started it, so one caller giving up does not fail the others. A caller
// whose context ends stops waiting and receives ctx.Err().
package dedupe
