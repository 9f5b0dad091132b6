// Package cache defines the store contract the query cache is built on.
//
// # Overview
//
// This package exports the pieces shared by every driver:
//
//   - Store: a byte oriented key-value store with TTLs
//   - TaggableStore and TaggedStore: the optional tagging capability
//   - Manager: a registry of named stores with a default driver
//   - BindingSerializer: builds a stable string from query bindings
//   - Config: driver configuration with validation
//
// Implementations live in internal/cacheinfra. The memory driver is backed by
// sturdyc and has no tagging capability. The redis driver records tagged keys
// in redis sets so a tag can be flushed as a unit.
//
// # Basic Usage
//
//	stores := cache.NewManager(cache.DriverMemory).
//		Register(cache.DriverMemory, memoryStore).
//		Register(cache.DriverRedis, redisStore)
//
//	store, err := stores.Store("") // default driver
//	value, err := cache.Remember(ctx, store, key, time.Minute, func(ctx context.Context) ([]byte, error) {
//		return encode(runQuery(ctx))
//	})
//
// A ttl <= 0 (Forever) stores an entry without expiry. The memory driver still
// caps every entry at MemoryConfig.TTL.
//
// # Tags
//
// Callers check for the capability with a type assertion or SupportsTags:
//
//	if taggable, ok := store.(cache.TaggableStore); ok {
//		scoped, err := taggable.Tags("users", "team:1")
//		...
//	}
//
// Tags may return ErrTagsNotSupported when tagging is unavailable at call
// time. Callers treat that as "not applicable" and use the plain store.
//
// # Binding Serialization
//
// Every binding is written with a kind prefix, so 1, uint(1) and "1" never
// collide. Strings are length prefixed. Maps are sorted by their serialized
// keys. Functions and channels serialize to their pointer, which is stable only
// within one process; do not bind them in queries cached in a shared store.
package cache
