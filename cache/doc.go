// Package cache provides the two tier read-through cache used by the query layer.
//
// # Overview
//
// The package exports three pieces:
//
//   - Service: a memory tier backed by sturdyc and an optional Redis protocol
//     remote tier, with per-entry TTL
//   - KeyBuilder: canonical keys derived from named parameters
//   - Manager and CachedOperation: get, deduplicated fetch on miss, store on success
//
// # Basic Usage
//
//	svc, err := cache.NewCacheService(cache.DefaultConfig(), cache.Dependencies{})
//	if err != nil {
//		return err
//	}
//	defer svc.Close()
//
//	mgr := cache.NewManager(svc, dedupe.New())
//	key := mgr.Key("concorsi:list", cache.Params{"regions": []string{"Lazio", "Lombardia"}, "pageSize": 25})
//
//	page, err := cache.CachedOperation(ctx, mgr, key, func(ctx context.Context) (Page, error) {
//		return store.Query(ctx, plan)
//	}, cache.WithTTL(5*time.Minute))
//
// # Key Canonicalization
//
// Keys have the form "prefix:name1:value1|name2:value2". Parameter names are
// converted to snake_case and sorted, list values are sorted and joined with
// ",", and empty values (nil, "", empty lists and maps, nil pointers) are
// omitted. Requests that differ only in field order or list order share a key.
// Separator characters inside values are escaped. Keys longer than MaxKeyLength
// keep their prefix and carry an xxhash digest instead of the parameters, so
// prefix invalidation keeps working.
//
// # Tiers
//
// Get checks memory first, then the remote tier. A remote hit is copied into
// memory with its residual TTL. Set writes memory synchronously and hands the
// remote write to a background writer; callers never wait on the network.
// Remote values are stored as msgpack envelopes, so cached types must be
// msgpack encodable.
//
// When the memory tier is full, expired entries are purged first and sturdyc
// then evicts the oldest EvictionPercentage percent of a shard. This is an
// approximation of LRU, not a strict one.
//
// # Error Handling
//
// The remote tier never fails a request. Connection problems, timeouts and a
// full write queue are logged with ErrRemoteCacheUnavailable and the call
// proceeds as if the remote tier were absent.
package cache
