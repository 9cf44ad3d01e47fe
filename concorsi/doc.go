// Package concorsi implements filtered listings of public competition notices
// ("concorsi") on top of a document store.
//
// A FilterRequest is normalized, validated and turned into a Plan by
// BuildPlan. Service executes plans against a Store with a query timeout,
// caches every result under a deterministic key through cache.Manager and
// shares a single store query between concurrent identical requests.
//
// Basic usage:
//
//	svc, err := concorsi.NewService(concorsi.DefaultConfig(), concorsi.Dependencies{
//		Store: store,
//		Cache: manager,
//	})
//	if err != nil {
//		return err
//	}
//
//	result, err := svc.GetFilteredConcorsi(ctx, concorsi.FilterRequest{
//		Primary: concorsi.ByRegion("Lombardia"),
//		Sort:    concorsi.SortDeadlineAsc,
//	})
//
// Writes go through SaveConcorso and DeleteConcorso, which invalidate the
// cached listings.
package concorsi
