package querycache

import (
	"context"
	"time"
)

// Settings is the static cache configuration a model type can declare.
// Zero values leave the corresponding option untouched.
type Settings struct {
	CacheFor time.Duration
	Tags     []string
	Prefix   string
	Driver   string
	PlainKey bool

	// DontCache turns caching off for every query on the model.
	DontCache bool
}

// Overrides are computed per query and take precedence over Settings.
// A nil callback leaves the static value in place; a callback returning
// ok == false does the same.
type Overrides struct {
	CacheFor func(q CacheableQuery) (time.Duration, bool)
	Tags     func(q CacheableQuery) ([]string, bool)
	Prefix   func(q CacheableQuery) (string, bool)
	Driver   func(q CacheableQuery) (string, bool)
	PlainKey func(q CacheableQuery) (bool, bool)
}

// BaseTagger is implemented by models that choose their own base tags.
// Models that do not implement it are tagged with their table name.
type BaseTagger interface {
	CacheBaseTags() []string
}

// Configurer is implemented by models carrying static cache settings.
type Configurer interface {
	CacheSettings() Settings
}

// OverrideProvider is implemented by models that compute cache settings per query.
type OverrideProvider interface {
	CacheOverrides() Overrides
}

// CacheableQuery is the cache surface a query builder exposes.
type CacheableQuery interface {
	CacheOptions() Options
	GetCacheFor() time.Duration
	GetCacheTags() []string
	GetCacheBaseTags() []string
	GetCachePrefix() string
	GetCacheDriver() string
	ShouldAvoidCache() bool

	CacheKey(method, id, appends string) string
	PlainCacheKey(method, id, appends string) string
	GroupKey() string

	Flush(ctx context.Context, tags ...string) (bool, error)
	FlushTag(ctx context.Context, tag string) (bool, error)
}
