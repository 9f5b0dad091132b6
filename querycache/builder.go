package querycache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/uptrace/bun"
)

const (
	MethodGet    = "get"
	MethodFind   = "find"
	MethodExists = "exists"
)

var (
	// ErrColumnMismatch is returned when a compound predicate pairs a different
	// number of columns and values.
	ErrColumnMismatch = errors.New("querycache: column and value counts differ")

	// ErrInvalidOperator is returned by WhereColumns for an unsupported comparison operator.
	ErrInvalidOperator = errors.New("querycache: invalid comparison operator")
)

var columnOperators = map[string]struct{}{
	"=": {}, "<>": {}, "!=": {}, "<": {}, ">": {}, "<=": {}, ">=": {},
}

var _ CacheableQuery = (*Builder[struct{}])(nil)

// Builder is a cache aware select query over models of type T.
//
// Predicates are forwarded to a bun.SelectQuery while the bound values are
// recorded for key derivation. The cache settings start from the values the
// Factory resolved for T and can be adjusted per query.
type Builder[T any] struct {
	cache   *QueryCache
	conn    string
	query   *bun.SelectQuery
	writeDB bun.IDB
	pk      string

	opts     Options
	bindings []any
	write    bool
	err      error
}

func newBuilder[T any](qc *QueryCache, db bun.IDB, conn string, opts Options) *Builder[T] {
	return &Builder[T]{
		cache: qc,
		conn:  conn,
		query: db.NewSelect().Model(modelArg[T]()),
		pk:    "id",
		opts:  opts,
	}
}

// modelArg returns the typed nil bun resolves the table from. T may be a
// struct or a pointer to one.
func modelArg[T any]() any {
	if typ := reflect.TypeFor[T](); typ.Kind() == reflect.Ptr {
		return reflect.Zero(typ).Interface()
	}
	return (*T)(nil)
}

// Query exposes the underlying bun query. Predicates added to it directly are
// not recorded as bindings but still reach the key through the rendered SQL.
func (b *Builder[T]) Query() *bun.SelectQuery {
	return b.query
}

// Bindings returns the values bound so far, in order.
func (b *Builder[T]) Bindings() []any {
	return append([]any(nil), b.bindings...)
}

// String renders the SQL text of the query.
func (b *Builder[T]) String() string {
	return b.query.String()
}

func (b *Builder[T]) bind(args ...any) {
	b.bindings = append(b.bindings, args...)
}

// Where adds an AND predicate.
func (b *Builder[T]) Where(query string, args ...any) *Builder[T] {
	b.query.Where(query, args...)
	b.bind(args...)
	return b
}

// WhereOr adds an OR predicate.
func (b *Builder[T]) WhereOr(query string, args ...any) *Builder[T] {
	b.query.WhereOr(query, args...)
	b.bind(args...)
	return b
}

// WhereIn restricts column to values. values must be a slice.
func (b *Builder[T]) WhereIn(column string, values any) *Builder[T] {
	b.query.Where("? IN (?)", bun.Ident(column), bun.In(values))
	b.bind(values)
	return b
}

// WhereGroup nests the predicates added by fn in parentheses joined by sep
// (" AND " or " OR ").
func (b *Builder[T]) WhereGroup(sep string, fn func(*Builder[T]) *Builder[T]) *Builder[T] {
	b.query.WhereGroup(sep, func(q *bun.SelectQuery) *bun.SelectQuery {
		inner := *b
		inner.query = q
		fn(&inner)
		b.bindings, b.err = inner.bindings, inner.err
		b.opts.Tags = inner.opts.Tags
		return q
	})
	return b
}

// WhereColumns compares columns pairwise: first[i] op second[i], joined by AND.
func (b *Builder[T]) WhereColumns(first []string, op string, second []string) *Builder[T] {
	if _, ok := columnOperators[op]; !ok {
		b.err = fmt.Errorf("%w: %q", ErrInvalidOperator, op)
		return b
	}
	if len(first) != len(second) {
		b.err = fmt.Errorf("%w: %d columns, %d columns", ErrColumnMismatch, len(first), len(second))
		return b
	}
	for i := range first {
		b.query.Where("? "+op+" ?", bun.Ident(first[i]), bun.Ident(second[i]))
	}
	return b
}

// WhereInComposite matches rows whose columns equal one of the tuples. It is
// expanded into (c1 = v1 AND c2 = v2) OR (...) so it works on any dialect.
// An empty tuple list matches nothing.
func (b *Builder[T]) WhereInComposite(columns []string, tuples [][]any) *Builder[T] {
	if len(tuples) == 0 {
		b.query.Where("1 = 0")
		return b
	}
	for _, tuple := range tuples {
		if len(tuple) != len(columns) {
			b.err = fmt.Errorf("%w: %d columns, %d values", ErrColumnMismatch, len(columns), len(tuple))
			return b
		}
	}

	b.query.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, tuple := range tuples {
			q.WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
				for i, column := range columns {
					q.Where("? = ?", bun.Ident(column), tuple[i])
				}
				return q
			})
		}
		return q
	})

	for _, tuple := range tuples {
		b.bindings = append(b.bindings, tuple...)
	}
	return b
}

// Column selects the given columns.
func (b *Builder[T]) Column(columns ...string) *Builder[T] {
	b.query.Column(columns...)
	return b
}

// ColumnExpr adds a column expression.
func (b *Builder[T]) ColumnExpr(query string, args ...any) *Builder[T] {
	b.query.ColumnExpr(query, args...)
	b.bindings = append(b.bindings, args...)
	return b
}

// Join adds a join clause.
func (b *Builder[T]) Join(join string, args ...any) *Builder[T] {
	b.query.Join(join, args...)
	b.bind(args...)
	return b
}

// Order adds ORDER BY columns such as "name ASC".
func (b *Builder[T]) Order(orders ...string) *Builder[T] {
	b.query.Order(orders...)
	return b
}

// OrderExpr adds an ORDER BY expression.
func (b *Builder[T]) OrderExpr(query string, args ...any) *Builder[T] {
	b.query.OrderExpr(query, args...)
	b.bind(args...)
	return b
}

// Group adds GROUP BY columns.
func (b *Builder[T]) Group(columns ...string) *Builder[T] {
	b.query.Group(columns...)
	return b
}

// Having adds a HAVING predicate.
func (b *Builder[T]) Having(having string, args ...any) *Builder[T] {
	b.query.Having(having, args...)
	b.bind(args...)
	return b
}

// Limit caps the number of rows returned.
func (b *Builder[T]) Limit(n int) *Builder[T] {
	b.query.Limit(n)
	return b
}

// Offset skips n rows.
func (b *Builder[T]) Offset(n int) *Builder[T] {
	b.query.Offset(n)
	return b
}

// Subquery is a cacheable query that can be embedded in another one.
type Subquery interface {
	CacheableQuery
	Query() *bun.SelectQuery
	Bindings() []any
}

// SelectSub selects the result of sub as alias. The tags of sub are merged
// into this query's tags.
func (b *Builder[T]) SelectSub(sub Subquery, alias string) *Builder[T] {
	b.query.ColumnExpr("(?) AS ?", sub.Query(), bun.Ident(alias))
	b.bind(sub.Bindings()...)
	b.opts.Tags = mergeTags(b.opts.Tags, sub.GetCacheTags())
	return b
}

// UseWriteConnection routes the query to the write database. Caching stays
// disabled for the rest of the builder's life.
func (b *Builder[T]) UseWriteConnection() *Builder[T] {
	b.write = true
	b.opts.Avoid = true
	if b.writeDB != nil {
		b.query.Conn(b.writeDB)
	}
	return b
}

// PrimaryKey sets the column Find matches against. Defaults to "id".
func (b *Builder[T]) PrimaryKey(column string) *Builder[T] {
	b.pk = column
	return b
}

// CacheFor caches results for ttl. Pass Forever for no expiry.
func (b *Builder[T]) CacheFor(ttl time.Duration) *Builder[T] {
	b.opts.TTL = ttl
	b.opts.NotFlush = false
	b.opts.Avoid = b.write
	return b
}

// CacheForever caches results without expiry.
func (b *Builder[T]) CacheForever() *Builder[T] {
	return b.CacheFor(Forever)
}

// CacheForNotFlush caches results for ttl outside of group and tag invalidation.
func (b *Builder[T]) CacheForNotFlush(ttl time.Duration) *Builder[T] {
	b.CacheFor(ttl)
	b.opts.NotFlush = true
	return b
}

// DontCache sends the query straight to the database.
func (b *Builder[T]) DontCache() *Builder[T] {
	b.opts.TTL = 0
	b.opts.Avoid = true
	return b
}

// DoNotCache is an alias of DontCache.
func (b *Builder[T]) DoNotCache() *Builder[T] {
	return b.DontCache()
}

// CachePrefix sets the key prefix.
func (b *Builder[T]) CachePrefix(prefix string) *Builder[T] {
	b.opts.Prefix = prefix
	return b
}

// CacheTags replaces the query tags.
func (b *Builder[T]) CacheTags(tags ...string) *Builder[T] {
	b.opts.Tags = mergeTags(tags)
	return b
}

// AppendCacheTags adds to the query tags.
func (b *Builder[T]) AppendCacheTags(tags ...string) *Builder[T] {
	b.opts.Tags = mergeTags(b.opts.Tags, tags)
	return b
}

// CacheDriver selects the store by name.
func (b *Builder[T]) CacheDriver(driver string) *Builder[T] {
	b.opts.Driver = driver
	return b
}

// CacheBaseTags replaces the base tags.
func (b *Builder[T]) CacheBaseTags(tags ...string) *Builder[T] {
	b.opts.BaseTags = mergeTags(tags)
	return b
}

// WithPlainKey stores entries under the unhashed key.
func (b *Builder[T]) WithPlainKey(plain bool) *Builder[T] {
	b.opts.PlainKey = plain
	return b
}

// CacheOptions returns a copy of the cache settings of the query.
func (b *Builder[T]) CacheOptions() Options { return b.opts.clone() }

// GetCacheFor returns the cache lifetime, Forever or 0 when unset.
func (b *Builder[T]) GetCacheFor() time.Duration { return b.opts.TTL }

// GetCacheTags returns the query tags.
func (b *Builder[T]) GetCacheTags() []string { return append([]string(nil), b.opts.Tags...) }

// GetCacheBaseTags returns the base tags. The first one names the invalidation group.
func (b *Builder[T]) GetCacheBaseTags() []string { return append([]string(nil), b.opts.BaseTags...) }

// GetCachePrefix returns the key prefix, DefaultPrefix when unset.
func (b *Builder[T]) GetCachePrefix() string { return b.opts.prefix() }

// GetCacheDriver returns the store name. Empty selects the default driver.
func (b *Builder[T]) GetCacheDriver() string { return b.opts.Driver }

// ShouldAvoidCache reports whether the query goes straight to the database.
func (b *Builder[T]) ShouldAvoidCache() bool { return b.opts.Avoid || b.opts.TTL == 0 }

// UsesWriteConnection reports whether UseWriteConnection was called.
func (b *Builder[T]) UsesWriteConnection() bool { return b.write }

// ConnectionName returns the connection name used in keys.
func (b *Builder[T]) ConnectionName() string { return b.conn }

// Cache returns the QueryCache the builder executes through.
func (b *Builder[T]) Cache() *QueryCache { return b.cache }

// Err returns the first error recorded while building the query.
func (b *Builder[T]) Err() error { return b.err }

func (b *Builder[T]) keyInput(method, id, appends string) KeyInput {
	in := KeyInput{
		Connection: b.conn,
		Method:     method,
		ID:         id,
		Bindings:   b.bindings,
		Appends:    appends,
	}
	if method != MethodCount {
		in.SQL = b.query.String()
	}
	return in
}

// CacheKey returns the full store key for the query executed as method.
func (b *Builder[T]) CacheKey(method, id, appends string) string {
	return b.cache.Key(b.opts, b.keyInput(method, id, appends))
}

// PlainCacheKey returns the unhashed key material for the query executed as method.
func (b *Builder[T]) PlainCacheKey(method, id, appends string) string {
	return b.cache.PlainKey(b.keyInput(method, id, appends))
}

// GroupKey returns the invalidation group of this query.
func (b *Builder[T]) GroupKey() string {
	return b.cache.GroupKey(b.opts)
}

// Flush invalidates the cached results of this query's group, see QueryCache.Flush.
func (b *Builder[T]) Flush(ctx context.Context, tags ...string) (bool, error) {
	return b.cache.Flush(ctx, b.opts, tags...)
}

// FlushTag flushes one tag on this query's store.
func (b *Builder[T]) FlushTag(ctx context.Context, tag string) (bool, error) {
	return b.cache.FlushTag(ctx, b.opts.Driver, tag)
}

// countFingerprint stands in for the SQL text in count keys. It is the query
// as bun renders it, so every predicate, join and grouping reaches the key
// whether it came through the builder or through Query.
func (b *Builder[T]) countFingerprint() string {
	return b.query.String()
}

// Get returns every matching row.
func (b *Builder[T]) Get(ctx context.Context) ([]T, error) {
	return b.rows(ctx, MethodGet, "")
}

func (b *Builder[T]) rows(ctx context.Context, method, id string) ([]T, error) {
	return b.scan(ctx, b.query, method, id, b.bindings)
}

func (b *Builder[T]) scan(ctx context.Context, query *bun.SelectQuery, method, id string, bindings []any) ([]T, error) {
	if b.err != nil {
		return nil, b.err
	}
	in := KeyInput{
		Connection: b.conn,
		Method:     method,
		ID:         id,
		SQL:        query.String(),
		Bindings:   bindings,
	}
	return Remember(ctx, b.cache, b.opts, in, func(ctx context.Context) ([]T, error) {
		var rows []T
		if err := query.Scan(ctx, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	})
}

// First returns the first matching row or sql.ErrNoRows.
func (b *Builder[T]) First(ctx context.Context) (T, error) {
	var zero T
	rows, err := b.Limit(1).rows(ctx, MethodGet, "")
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, sql.ErrNoRows
	}
	return rows[0], nil
}

// Find returns the row whose primary key equals id or sql.ErrNoRows. The
// primary key predicate is applied to a copy of the query, so the builder can
// be reused for further lookups.
func (b *Builder[T]) Find(ctx context.Context, id any) (T, error) {
	var zero T
	query := b.query.Clone().Where("? = ?", bun.Ident(b.pk), id).Limit(1)
	bindings := append(b.Bindings(), id)
	rows, err := b.scan(ctx, query, MethodFind, fmt.Sprint(id), bindings)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, sql.ErrNoRows
	}
	return rows[0], nil
}

// Count returns the number of matching rows.
func (b *Builder[T]) Count(ctx context.Context) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	in := b.keyInput(MethodCount, "", b.countFingerprint())
	return Remember(ctx, b.cache, b.opts, in, func(ctx context.Context) (int, error) {
		return b.query.Count(ctx)
	})
}

// Exists reports whether any row matches.
func (b *Builder[T]) Exists(ctx context.Context) (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	return Remember(ctx, b.cache, b.opts, b.keyInput(MethodExists, "", ""), func(ctx context.Context) (bool, error) {
		return b.query.Exists(ctx)
	})
}
