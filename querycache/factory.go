package querycache

import (
	"reflect"
	"time"

	"github.com/goliatone/go-query-cache/internal/naming"
	"github.com/uptrace/bun"
)

// DefaultConnection names the connection when none is configured.
const DefaultConnection = "default"

// Factory creates Builders bound to one database connection.
type Factory struct {
	db      bun.IDB
	writeDB bun.IDB
	cache   *QueryCache
	conn    string

	globalCache bool
	globalTTL   time.Duration
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithConnectionName sets the connection identity mixed into every cache key.
func WithConnectionName(name string) FactoryOption {
	return func(f *Factory) {
		if name != "" {
			f.conn = name
		}
	}
}

// WithWriteDB sets the database UseWriteConnection switches to.
func WithWriteDB(db bun.IDB) FactoryOption {
	return func(f *Factory) {
		f.writeDB = db
	}
}

// WithGlobalCache caches every query for ttl unless a model or query says
// otherwise. A ttl <= 0 uses DefaultGlobalTTL.
func WithGlobalCache(enabled bool, ttl time.Duration) FactoryOption {
	return func(f *Factory) {
		f.globalCache = enabled
		if ttl > 0 {
			f.globalTTL = ttl
		}
	}
}

// NewFactory creates a Factory reading from db.
func NewFactory(db bun.IDB, qc *QueryCache, opts ...FactoryOption) *Factory {
	f := &Factory{
		db:        db,
		cache:     qc,
		conn:      DefaultConnection,
		globalTTL: DefaultGlobalTTL,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ConnectionName returns the connection identity used in keys.
func (f *Factory) ConnectionName() string { return f.conn }

// DB returns the read database.
func (f *Factory) DB() bun.IDB { return f.db }

// Cache returns the QueryCache shared by the Factory's builders.
func (f *Factory) Cache() *QueryCache { return f.cache }

// NewSelect returns a Builder for T with the model's cache settings applied.
//
// Settings resolve once, in order: static Settings (or the global cache when
// the model sets no TTL), then Overrides, then base tags from BaseTagger or
// the model's table name.
func NewSelect[T any](f *Factory) *Builder[T] {
	b := newBuilder[T](f.cache, f.db, f.conn, Options{})
	b.writeDB = f.writeDB

	model := newModel[T]()
	settings := modelSettings(model)

	switch {
	case settings.DontCache:
		b.opts.Avoid = true
	case settings.CacheFor != 0:
		b.opts.TTL = settings.CacheFor
	case f.globalCache:
		b.opts.TTL = f.globalTTL
	}
	b.opts.Tags = mergeTags(settings.Tags)
	b.opts.Prefix = settings.Prefix
	b.opts.Driver = settings.Driver
	b.opts.PlainKey = settings.PlainKey

	if provider, ok := any(model).(OverrideProvider); ok {
		applyOverrides(b, provider.CacheOverrides())
	} else if provider, ok := any(&model).(OverrideProvider); ok {
		applyOverrides(b, provider.CacheOverrides())
	}

	b.opts.BaseTags = baseTags(model)
	return b
}

// newModel returns a usable T, allocating the pointee when T is a pointer.
func newModel[T any]() T {
	var model T
	if typ := reflect.TypeFor[T](); typ.Kind() == reflect.Ptr {
		model = reflect.New(typ.Elem()).Interface().(T)
	}
	return model
}

func modelSettings[T any](model T) Settings {
	if c, ok := any(model).(Configurer); ok {
		return c.CacheSettings()
	}
	if c, ok := any(&model).(Configurer); ok {
		return c.CacheSettings()
	}
	return Settings{}
}

func applyOverrides[T any](b *Builder[T], o Overrides) {
	if o.CacheFor != nil {
		if ttl, ok := o.CacheFor(b); ok && !b.opts.Avoid {
			b.opts.TTL = ttl
		}
	}
	if o.Tags != nil {
		if tags, ok := o.Tags(b); ok {
			b.opts.Tags = mergeTags(tags)
		}
	}
	if o.Prefix != nil {
		if prefix, ok := o.Prefix(b); ok {
			b.opts.Prefix = prefix
		}
	}
	if o.Driver != nil {
		if driver, ok := o.Driver(b); ok {
			b.opts.Driver = driver
		}
	}
	if o.PlainKey != nil {
		if plain, ok := o.PlainKey(b); ok {
			b.opts.PlainKey = plain
		}
	}
}

func baseTags[T any](model T) []string {
	if t, ok := any(model).(BaseTagger); ok {
		return mergeTags(t.CacheBaseTags())
	}
	if t, ok := any(&model).(BaseTagger); ok {
		return mergeTags(t.CacheBaseTags())
	}
	return []string{naming.TableName(reflect.TypeFor[T]())}
}
