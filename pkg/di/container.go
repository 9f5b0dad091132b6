package di

import (
	"fmt"
	"log/slog"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/cachegroup"
	"github.com/goliatone/go-query-cache/internal/cacheinfra"
	"github.com/goliatone/go-query-cache/pkg/metrics"
	"github.com/goliatone/go-query-cache/querycache"
	"github.com/goliatone/go-query-cache/repositorycache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Container wires the stores, group registry, query cache and metrics
// described by a cache.Config, and hands out factories and repositories
// that share them.
type Container struct {
	config   cache.Config
	stores   *cache.Manager
	groups   *cachegroup.CacheGroup
	qc       *querycache.QueryCache
	recorder *metrics.PrometheusRecorder
	logger   *slog.Logger
	redis    *cacheinfra.RedisStore
}

// Option configures a Container
type Option func(*containerOptions)

type containerOptions struct {
	logger      *slog.Logger
	namespace   string
	hasher      querycache.KeyHasher
	redisClient *cacheinfra.RedisStore
}

// WithLogger sets the logger shared by the query cache and repositories
func WithLogger(logger *slog.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithMetricsNamespace sets the Prometheus namespace of the cache metrics
func WithMetricsNamespace(namespace string) Option {
	return func(o *containerOptions) {
		o.namespace = namespace
	}
}

// WithKeyHasher sets how plain cache keys are hashed
func WithKeyHasher(hasher querycache.KeyHasher) Option {
	return func(o *containerOptions) {
		o.hasher = hasher
	}
}

// WithRedisStore registers an existing redis store instead of dialing cfg.Redis
func WithRedisStore(store *cacheinfra.RedisStore) Option {
	return func(o *containerOptions) {
		o.redisClient = store
	}
}

// NewContainer validates config and builds the cache components. The memory
// store is always registered; the redis store is registered when config.Redis
// is set or a store is passed with WithRedisStore.
func NewContainer(config cache.Config, opts ...Option) (*Container, error) {
	o := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.redisClient != nil && config.Redis == nil {
		config.Redis = cache.DefaultRedisConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	memory, err := cacheinfra.NewMemoryStore(config.Memory)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}

	stores := cache.NewManager(config.DefaultDriver).Register(cache.DriverMemory, memory)

	redisStore := o.redisClient
	if redisStore == nil && config.Redis != nil {
		redisStore, err = cacheinfra.NewRedisStore(config.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
	}
	if redisStore != nil {
		stores.Register(cache.DriverRedis, redisStore)
	}

	if _, err := stores.Default(); err != nil {
		return nil, err
	}

	recorder := metrics.NewPrometheusRecorder(o.namespace)
	groups := cachegroup.New(stores)
	qc := querycache.New(stores,
		querycache.WithGroups(groups),
		querycache.WithLogger(o.logger),
		querycache.WithRecorder(recorder),
		querycache.WithKeyHasher(o.hasher),
	)

	return &Container{
		config:   config,
		stores:   stores,
		groups:   groups,
		qc:       qc,
		recorder: recorder,
		logger:   o.logger,
		redis:    redisStore,
	}, nil
}

// NewContainerWithDefaults creates a container backed by the memory store only.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

// Stores returns the store manager.
func (c *Container) Stores() *cache.Manager {
	return c.stores
}

// Groups returns the group registry.
func (c *Container) Groups() *cachegroup.CacheGroup {
	return c.groups
}

// QueryCache returns the shared query cache.
func (c *Container) QueryCache() *querycache.QueryCache {
	return c.qc
}

// Metrics returns the Prometheus recorder fed by the query cache.
func (c *Container) Metrics() *metrics.PrometheusRecorder {
	return c.recorder
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// NewFactory returns a query builder factory over db that uses the container's cache.
func (c *Container) NewFactory(db bun.IDB, opts ...querycache.FactoryOption) *querycache.Factory {
	return querycache.NewFactory(db, c.qc, opts...)
}

// Close releases the redis connection, if any. Calling it twice is a no-op.
func (c *Container) Close() error {
	if c.redis == nil {
		return nil
	}
	err := c.redis.Close()
	c.redis = nil
	return err
}

// NewFlushingRepository wraps base so its writes flush the query cache of T.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewFlushingRepository[*User](container, factory, baseUserRepository)
func NewFlushingRepository[T any](c *Container, factory *querycache.Factory, base repository.Repository[T], opts ...repositorycache.Option[T]) *repositorycache.FlushingRepository[T] {
	opts = append([]repositorycache.Option[T]{repositorycache.WithLogger[T](c.logger)}, opts...)
	return repositorycache.New(base, factory, opts...)
}
