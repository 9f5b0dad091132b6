package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTagsNotSupported is returned by a store that cannot scope entries by tag.
	// Callers treat it as "not applicable" and fall back to untagged behaviour.
	ErrTagsNotSupported = errors.New("cache: store does not support tagging")

	// ErrUnknownDriver is returned when a store name is not registered in the Manager.
	ErrUnknownDriver = errors.New("cache: unknown driver")
)

// Forever is the TTL used to store an entry without expiry.
const Forever time.Duration = 0

// ProduceFn is the function signature Remember expects when fetching from the source of truth.
type ProduceFn func(ctx context.Context) ([]byte, error)

// Store is the key-value contract the query cache and cache groups are built on.
// Values are opaque byte slices; encoding is left to the caller.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key. A ttl <= 0 stores the entry without expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Pull returns the value for key and deletes it. A missing key is not an error.
	Pull(ctx context.Context, key string) ([]byte, bool, error)

	// Forget deletes key. A missing key is not an error.
	Forget(ctx context.Context, key string) error
}

// TaggedStore is a scoped view over a store. Every Put through the view is
// recorded under each of the view's tags so Flush can remove them together.
type TaggedStore interface {
	Store

	// Flush deletes every entry recorded under the view's tags.
	Flush(ctx context.Context) error
}

// TaggableStore is implemented by stores that can hand out tag-scoped views.
// Tags may return ErrTagsNotSupported when tagging is unavailable at call time.
type TaggableStore interface {
	Store
	Tags(tags ...string) (TaggedStore, error)
}

// PutForever stores value under key without expiry.
func PutForever(ctx context.Context, store Store, key string, value []byte) error {
	return store.Put(ctx, key, value, Forever)
}

// Remember returns the cached value for key or, on a miss, calls produce and
// stores its result with ttl. Errors from produce are returned and nothing is stored.
func Remember(ctx context.Context, store Store, key string, ttl time.Duration, produce ProduceFn) ([]byte, error) {
	value, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return value, nil
	}

	value, err = produce(ctx)
	if err != nil {
		return nil, err
	}

	if err := store.Put(ctx, key, value, ttl); err != nil {
		return nil, err
	}
	return value, nil
}

// RememberForever is Remember without expiry.
func RememberForever(ctx context.Context, store Store, key string, produce ProduceFn) ([]byte, error) {
	return Remember(ctx, store, key, Forever, produce)
}

// SupportsTags reports whether store exposes the tagging capability.
func SupportsTags(store Store) bool {
	_, ok := store.(TaggableStore)
	return ok
}
