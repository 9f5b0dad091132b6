package repositorycache

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-query-cache/querycache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

var _ repository.Repository[any] = (*FlushingRepository[any])(nil)

// TagsFunc returns the extra cache tags to flush after record was written.
type TagsFunc[T any] func(record T) []string

// Option configures a FlushingRepository
type Option[T any] func(*FlushingRepository[T])

// WithTagsFunc sets the per record tags flushed after a write
func WithTagsFunc[T any](fn TagsFunc[T]) Option[T] {
	return func(r *FlushingRepository[T]) {
		r.tagsFor = fn
	}
}

// WithoutFlushOnWrite turns invalidation off; writes pass straight through
func WithoutFlushOnWrite[T any]() Option[T] {
	return func(r *FlushingRepository[T]) {
		r.flushOnWrite = false
	}
}

// WithLogger sets the logger used to report failed flushes
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(r *FlushingRepository[T]) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// FlushingRepository decorates a base repository so that every successful
// write flushes the cached queries of T.
type FlushingRepository[T any] struct {
	base    repository.Repository[T]
	factory *querycache.Factory

	tagsFor      TagsFunc[T]
	flushOnWrite bool
	logger       *slog.Logger
}

// New creates a FlushingRepository. factory supplies the cache settings of T.
func New[T any](base repository.Repository[T], factory *querycache.Factory, opts ...Option[T]) *FlushingRepository[T] {
	r := &FlushingRepository[T]{
		base:         base,
		factory:      factory,
		flushOnWrite: true,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Raw runs a raw query through the base repository. Raw statements are not
// inspected, so a write issued through Raw or RawTx does not flush the cache.
// Call Flush after such a write.
func (r *FlushingRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return r.base.Raw(ctx, sql, args...)
}

// RawTx runs a raw query within a transaction, see Raw.
func (r *FlushingRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return r.base.RawTx(ctx, tx, sql, args...)
}

// Get retrieves a single record using the provided criteria
func (r *FlushingRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.Get(ctx, criteria...)
}

// GetTx retrieves a single record within a transaction
func (r *FlushingRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetTx(ctx, tx, criteria...)
}

// GetByID retrieves a record by ID with optional criteria
func (r *FlushingRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetByID(ctx, id, criteria...)
}

// GetByIDTx retrieves a record by ID within a transaction
func (r *FlushingRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetByIDTx(ctx, tx, id, criteria...)
}

// GetByIdentifier retrieves a record by identifier with optional criteria
func (r *FlushingRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetByIdentifier(ctx, identifier, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier within a transaction
func (r *FlushingRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// List retrieves multiple records using the provided criteria
func (r *FlushingRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return r.base.List(ctx, criteria...)
}

// ListTx retrieves multiple records within a transaction
func (r *FlushingRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return r.base.ListTx(ctx, tx, criteria...)
}

// Count returns the number of records matching the criteria
func (r *FlushingRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return r.base.Count(ctx, criteria...)
}

// CountTx returns the number of records matching the criteria within a transaction
func (r *FlushingRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return r.base.CountTx(ctx, tx, criteria...)
}

// Create creates a new record
func (r *FlushingRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := r.base.Create(ctx, record, criteria...)
	if err == nil {
		r.flush(ctx, result)
	}
	return result, err
}

// CreateTx creates a new record within a transaction
func (r *FlushingRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := r.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		r.flush(ctx, result)
	}
	return result, err
}

// CreateMany creates multiple records
func (r *FlushingRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := r.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		r.flush(ctx, result...)
	}
	return result, err
}

// CreateManyTx creates multiple records within a transaction
func (r *FlushingRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := r.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		r.flush(ctx, result...)
	}
	return result, err
}

// GetOrCreate gets a record or creates it if it doesn't exist
func (r *FlushingRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := r.base.GetOrCreate(ctx, record)
	if err == nil {
		r.flush(ctx, result)
	}
	return result, err
}

// GetOrCreateTx gets a record or creates it within a transaction
func (r *FlushingRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := r.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		r.flush(ctx, result)
	}
	return result, err
}

// Update updates a record
func (r *FlushingRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := r.base.Update(ctx, record, criteria...)
	if err == nil {
		r.flush(ctx, result)
	}
	return result, err
}

// UpdateTx updates a record within a transaction
func (r *FlushingRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := r.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		r.flush(ctx, result)
	}
	return result, err
}

// UpdateMany updates multiple records
func (r *FlushingRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := r.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		r.flush(ctx, result...)
	}
	return result, err
}

// UpdateManyTx updates multiple records within a transaction
func (r *FlushingRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := r.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		r.flush(ctx, result...)
	}
	return result, err
}

// Upsert inserts or updates a record
func (r *FlushingRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := r.base.Upsert(ctx, record, criteria...)
	if err == nil {
		r.flush(ctx, result)
	}
	return result, err
}

// UpsertTx inserts or updates a record within a transaction
func (r *FlushingRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := r.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		r.flush(ctx, result)
	}
	return result, err
}

// UpsertMany inserts or updates multiple records
func (r *FlushingRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := r.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		r.flush(ctx, result...)
	}
	return result, err
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (r *FlushingRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := r.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		r.flush(ctx, result...)
	}
	return result, err
}

// Delete deletes a record
func (r *FlushingRepository[T]) Delete(ctx context.Context, record T) error {
	err := r.base.Delete(ctx, record)
	if err == nil {
		r.flush(ctx, record)
	}
	return err
}

// DeleteTx deletes a record within a transaction
func (r *FlushingRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := r.base.DeleteTx(ctx, tx, record)
	if err == nil {
		r.flush(ctx, record)
	}
	return err
}

// DeleteMany deletes multiple records based on criteria
func (r *FlushingRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := r.base.DeleteMany(ctx, criteria...)
	if err == nil {
		r.flush(ctx)
	}
	return err
}

// DeleteManyTx deletes multiple records based on criteria within a transaction
func (r *FlushingRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := r.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		r.flush(ctx)
	}
	return err
}

// DeleteWhere deletes records based on criteria
func (r *FlushingRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := r.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		r.flush(ctx)
	}
	return err
}

// DeleteWhereTx deletes records based on criteria within a transaction
func (r *FlushingRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := r.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		r.flush(ctx)
	}
	return err
}

// ForceDelete force deletes a record (bypassing soft delete)
func (r *FlushingRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := r.base.ForceDelete(ctx, record)
	if err == nil {
		r.flush(ctx, record)
	}
	return err
}

// ForceDeleteTx force deletes a record within a transaction (bypassing soft delete)
func (r *FlushingRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := r.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		r.flush(ctx, record)
	}
	return err
}

// Handlers returns the model handlers of the base repository
func (r *FlushingRepository[T]) Handlers() repository.ModelHandlers[T] {
	return r.base.Handlers()
}

// Flush invalidates the cached queries of T with the tags for records plus
// any tags attached to ctx. Without a TagsFunc the record tags are the base
// tags of T. It reports whether a tagged flush happened.
func (r *FlushingRepository[T]) Flush(ctx context.Context, records ...T) (bool, error) {
	q := querycache.NewSelect[T](r.factory)
	return q.Flush(ctx, r.tags(ctx, q, records)...)
}

// flush runs after a successful write. The write already happened, so a
// failed flush is logged rather than returned.
func (r *FlushingRepository[T]) flush(ctx context.Context, records ...T) {
	if !r.flushOnWrite {
		return
	}
	if _, err := r.Flush(ctx, records...); err != nil {
		r.logger.ErrorContext(ctx, "query cache flush after write failed", "error", err)
	}
}

func (r *FlushingRepository[T]) tags(ctx context.Context, q querycache.CacheableQuery, records []T) []string {
	var tags []string
	if r.tagsFor == nil {
		tags = q.GetCacheBaseTags()
	} else {
		for _, record := range records {
			tags = append(tags, r.tagsFor(record)...)
		}
	}
	tags = append(tags, cacheTagsFromContext(ctx)...)
	return dedupeStrings(tags)
}
