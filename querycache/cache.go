package querycache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/cachegroup"
	"github.com/vmihailenco/msgpack/v5"
)

// ExecFn runs the query against the database and returns the encoded result.
type ExecFn func(ctx context.Context) ([]byte, error)

// QueryCache decides whether a query is served from a store, registers stored
// keys for invalidation and flushes them on request.
type QueryCache struct {
	stores     *cache.Manager
	groups     *cachegroup.CacheGroup
	serializer cache.BindingSerializer
	hasher     KeyHasher
	recorder   Recorder
	logger     *slog.Logger
}

// Option configures a QueryCache
type Option func(*QueryCache)

// WithGroups replaces the group registry. It must share the store manager.
func WithGroups(groups *cachegroup.CacheGroup) Option {
	return func(c *QueryCache) {
		if groups != nil {
			c.groups = groups
		}
	}
}

// WithLogger sets the logger used for debug tracing of cache decisions
func WithLogger(logger *slog.Logger) Option {
	return func(c *QueryCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder sets the hit/miss recorder
func WithRecorder(recorder Recorder) Option {
	return func(c *QueryCache) {
		if recorder != nil {
			c.recorder = recorder
		}
	}
}

// WithBindingSerializer sets how bound values contribute to cache keys
func WithBindingSerializer(serializer cache.BindingSerializer) Option {
	return func(c *QueryCache) {
		if serializer != nil {
			c.serializer = serializer
		}
	}
}

// WithKeyHasher sets how plain keys are hashed. Defaults to SHA256.
func WithKeyHasher(hasher KeyHasher) Option {
	return func(c *QueryCache) {
		if hasher != nil {
			c.hasher = hasher
		}
	}
}

// New creates a QueryCache over the given store manager.
func New(stores *cache.Manager, opts ...Option) *QueryCache {
	c := &QueryCache{
		stores:     stores,
		groups:     cachegroup.New(stores),
		serializer: cache.NewBindingSerializer(),
		hasher:     SHA256,
		recorder:   nopRecorder{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stores returns the store manager backing the cache.
func (c *QueryCache) Stores() *cache.Manager {
	return c.stores
}

// Groups returns the group registry.
func (c *QueryCache) Groups() *cachegroup.CacheGroup {
	return c.groups
}

// Execute returns the cached result for in, or runs exec and caches its result.
//
// A query with Avoid set, or without a TTL, always runs exec. Flush-tracked
// entries are written through a tag-scoped view when the store supports tags
// and their key is added to the group for opts before the value is stored.
func (c *QueryCache) Execute(ctx context.Context, opts Options, in KeyInput, exec ExecFn) ([]byte, error) {
	if opts.Avoid || opts.TTL == 0 {
		c.recorder.Bypass()
		c.logger.DebugContext(ctx, "query cache bypassed", "method", in.Method)
		return exec(ctx)
	}

	key := c.Key(opts, in)
	driver := c.stores.Resolve(opts.Driver)

	store, err := c.scopedStore(opts)
	if err != nil {
		return nil, err
	}

	value, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("querycache: get %q: %w", key, err)
	}
	if ok {
		c.recorder.Hit(driver)
		c.logger.DebugContext(ctx, "query cache hit", "driver", driver, "key", key, "method", in.Method)
		return value, nil
	}

	c.recorder.Miss(driver)
	c.logger.DebugContext(ctx, "query cache miss", "driver", driver, "key", key, "method", in.Method)

	value, err = exec(ctx)
	if err != nil {
		return nil, err
	}

	if !opts.NotFlush {
		if err := c.groups.Using(opts.Driver).Add(ctx, c.GroupKey(opts), key, cache.Forever); err != nil {
			return nil, err
		}
	}

	if err := store.Put(ctx, key, value, opts.storeTTL()); err != nil {
		return nil, fmt.Errorf("querycache: put %q: %w", key, err)
	}
	return value, nil
}

// scopedStore resolves the store for opts, tag-scoped when that applies.
func (c *QueryCache) scopedStore(opts Options) (cache.Store, error) {
	store, err := c.stores.Store(opts.Driver)
	if err != nil {
		return nil, err
	}
	if opts.NotFlush {
		return store, nil
	}

	tags := opts.scopeTags()
	taggable, ok := store.(cache.TaggableStore)
	if !ok || len(tags) == 0 {
		return store, nil
	}

	tagged, err := taggable.Tags(tags...)
	if errors.Is(err, cache.ErrTagsNotSupported) {
		return store, nil
	}
	if err != nil {
		return nil, err
	}
	return tagged, nil
}

// Flush invalidates cached results for opts and reports whether tag scoped
// flushing was used.
//
// On a store without tag support only the group for opts is pulled. Otherwise
// each tag is flushed (defaulting to the base tags) and the group is pulled.
func (c *QueryCache) Flush(ctx context.Context, opts Options, tags ...string) (bool, error) {
	store, err := c.stores.Store(opts.Driver)
	if err != nil {
		return false, err
	}
	driver := c.stores.Resolve(opts.Driver)
	groups := c.groups.Using(opts.Driver)

	taggable, ok := store.(cache.TaggableStore)
	if !ok {
		if err := groups.Pull(ctx, c.GroupKey(opts)); err != nil {
			return false, err
		}
		c.recorder.Flush(driver, false)
		c.logger.InfoContext(ctx, "query cache group flushed", "driver", driver, "group", c.GroupKey(opts))
		return false, nil
	}

	if len(tags) == 0 {
		tags = opts.BaseTags
	}
	for _, tag := range tags {
		if err := flushTag(ctx, taggable, tag); err != nil {
			return false, err
		}
	}

	if err := groups.Pull(ctx, c.GroupKey(opts)); err != nil {
		return false, err
	}
	c.recorder.Flush(driver, true)
	c.logger.InfoContext(ctx, "query cache tags flushed", "driver", driver, "tags", tags)
	return true, nil
}

// FlushTag flushes a single tag on the store named by driver. Stores without
// tag support report success without doing anything.
func (c *QueryCache) FlushTag(ctx context.Context, driver, tag string) (bool, error) {
	store, err := c.stores.Store(driver)
	if err != nil {
		return false, err
	}
	taggable, ok := store.(cache.TaggableStore)
	if !ok {
		return true, nil
	}
	if err := flushTag(ctx, taggable, tag); err != nil {
		return false, err
	}
	return true, nil
}

func flushTag(ctx context.Context, store cache.TaggableStore, tag string) error {
	tagged, err := store.Tags(tag)
	if errors.Is(err, cache.ErrTagsNotSupported) {
		return nil
	}
	if err != nil {
		return err
	}
	return tagged.Flush(ctx)
}

// Remember is Execute for typed results: values are msgpack encoded on their
// way into the store and decoded on the way out.
func Remember[V any](ctx context.Context, c *QueryCache, opts Options, in KeyInput, fetch func(ctx context.Context) (V, error)) (V, error) {
	var (
		fetched bool
		out     V
	)

	data, err := c.Execute(ctx, opts, in, func(ctx context.Context) ([]byte, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		out, fetched = value, true
		return msgpack.Marshal(value)
	})
	if err != nil {
		var zero V
		return zero, err
	}
	if fetched {
		return out, nil
	}

	if err := msgpack.Unmarshal(data, &out); err != nil {
		var zero V
		return zero, fmt.Errorf("querycache: decode cached value: %w", err)
	}
	return out, nil
}
