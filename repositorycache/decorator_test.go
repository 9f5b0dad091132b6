package repositorycache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/pkg/testsupport"
	"github.com/goliatone/go-query-cache/querycache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/go-cmp/cmp"
	"github.com/uptrace/bun"
)

type Account struct {
	bun.BaseModel `bun:"table:accounts"`

	ID     int64 `bun:",pk,autoincrement"`
	Name   string
	TeamID int64
}

// mockRepository records the calls it receives. Writes echo their input.
type mockRepository[T any] struct {
	mu       sync.Mutex
	calls    []string
	writeErr error
	handlers repository.ModelHandlers[T]
}

var _ repository.Repository[*Account] = (*mockRepository[*Account])(nil)

func (m *mockRepository[T]) recordCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

func (m *mockRepository[T]) getCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockRepository[T]) one(method string, record T) (T, error) {
	m.recordCall(method)
	if m.writeErr != nil {
		var zero T
		return zero, m.writeErr
	}
	return record, nil
}

func (m *mockRepository[T]) many(method string, records []T) ([]T, error) {
	m.recordCall(method)
	if m.writeErr != nil {
		return nil, m.writeErr
	}
	return records, nil
}

func (m *mockRepository[T]) none(method string) error {
	m.recordCall(method)
	return m.writeErr
}

func (m *mockRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	m.recordCall("Raw")
	return nil, nil
}

func (m *mockRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	m.recordCall("RawTx")
	return nil, nil
}

func (m *mockRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	var zero T
	m.recordCall("GetTx")
	return zero, nil
}

func (m *mockRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	var zero T
	m.recordCall("GetByIDTx")
	return zero, nil
}

func (m *mockRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	var zero T
	m.recordCall("GetByIdentifierTx")
	return zero, nil
}

func (m *mockRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	m.recordCall("ListTx")
	return nil, 0, nil
}

func (m *mockRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	m.recordCall("CountTx")
	return 0, nil
}

func (m *mockRepository[T]) Handlers() repository.ModelHandlers[T] {
	m.recordCall("Handlers")
	return m.handlers
}

func (m *mockRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	var zero T
	m.recordCall("Get")
	return zero, nil
}

func (m *mockRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	var zero T
	m.recordCall("GetByID")
	return zero, nil
}

func (m *mockRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	var zero T
	m.recordCall("GetByIdentifier")
	return zero, nil
}

func (m *mockRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	m.recordCall("List")
	return nil, 0, nil
}

func (m *mockRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	m.recordCall("Count")
	return 0, nil
}

func (m *mockRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	return m.one("Create", record)
}
func (m *mockRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	return m.one("CreateTx", record)
}
func (m *mockRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return m.many("CreateMany", records)
}
func (m *mockRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return m.many("CreateManyTx", records)
}
func (m *mockRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	return m.one("GetOrCreate", record)
}
func (m *mockRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	return m.one("GetOrCreateTx", record)
}
func (m *mockRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return m.one("Update", record)
}
func (m *mockRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return m.one("UpdateTx", record)
}
func (m *mockRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return m.many("UpdateMany", records)
}
func (m *mockRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return m.many("UpdateManyTx", records)
}
func (m *mockRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return m.one("Upsert", record)
}
func (m *mockRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return m.one("UpsertTx", record)
}
func (m *mockRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return m.many("UpsertMany", records)
}
func (m *mockRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return m.many("UpsertManyTx", records)
}
func (m *mockRepository[T]) Delete(ctx context.Context, record T) error {
	return m.none("Delete")
}
func (m *mockRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return m.none("DeleteTx")
}
func (m *mockRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return m.none("DeleteMany")
}
func (m *mockRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return m.none("DeleteManyTx")
}
func (m *mockRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return m.none("DeleteWhere")
}
func (m *mockRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return m.none("DeleteWhereTx")
}
func (m *mockRepository[T]) ForceDelete(ctx context.Context, record T) error {
	return m.none("ForceDelete")
}
func (m *mockRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return m.none("ForceDeleteTx")
}

type fixture struct {
	db      *bun.DB
	counter *testsupport.QueryCounter
	factory *querycache.Factory
	redis   *miniredis.Miniredis
	base    *mockRepository[*Account]
}

func newFixture(t *testing.T, driver string) *fixture {
	t.Helper()

	db, counter := testsupport.NewSQLiteDB(t)
	testsupport.CreateTable(t, db, (*Account)(nil))
	testsupport.Insert(t, db, &[]Account{{Name: "ana", TeamID: 1}, {Name: "bo", TeamID: 2}})
	counter.Reset()

	stores, mr := testsupport.NewManager(t, driver)
	return &fixture{
		db:      db,
		counter: counter,
		factory: querycache.NewFactory(db, querycache.New(stores)),
		redis:   mr,
		base:    &mockRepository[*Account]{},
	}
}

// warm runs a cached query twice and returns the builder used for it.
func (f *fixture) warm(t *testing.T, tags ...string) *querycache.Builder[*Account] {
	t.Helper()

	var b *querycache.Builder[*Account]
	for i := 0; i < 2; i++ {
		b = querycache.NewSelect[*Account](f.factory).CacheTags(tags...).CacheFor(time.Hour)
		if _, err := b.Get(context.Background()); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	return b
}

func (f *fixture) groupSize(t *testing.T, b *querycache.Builder[*Account]) int {
	t.Helper()
	members, err := f.factory.Cache().Groups().Get(context.Background(), b.GroupKey())
	if err != nil {
		t.Fatalf("Groups().Get() error = %v", err)
	}
	return len(members)
}

func TestFlushingRepository_ReadsPassThrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, cache.DriverMemory)
	repo := New[*Account](f.base, f.factory)

	f.base.handlers = repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
	}
	b := f.warm(t)

	_, _ = repo.Raw(ctx, "SELECT * FROM accounts")
	_, _ = repo.RawTx(ctx, f.db, "SELECT * FROM accounts")
	_, _ = repo.Get(ctx)
	_, _ = repo.GetTx(ctx, f.db)
	_, _ = repo.GetByID(ctx, "1")
	_, _ = repo.GetByIDTx(ctx, f.db, "1")
	_, _ = repo.GetByIdentifier(ctx, "ana")
	_, _ = repo.GetByIdentifierTx(ctx, f.db, "ana")
	_, _, _ = repo.List(ctx)
	_, _, _ = repo.ListTx(ctx, f.db)
	_, _ = repo.Count(ctx)
	_, _ = repo.CountTx(ctx, f.db)
	handlers := repo.Handlers()

	want := []string{
		"Raw", "RawTx", "Get", "GetTx", "GetByID", "GetByIDTx",
		"GetByIdentifier", "GetByIdentifierTx", "List", "ListTx",
		"Count", "CountTx", "Handlers",
	}
	if diff := cmp.Diff(want, f.base.getCalls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if handlers.NewRecord == nil {
		t.Error("expected Handlers to return the base handlers")
	}
	// reads and raw statements leave the cache alone
	if f.groupSize(t, b) != 1 {
		t.Error("expected reads to keep the cached group")
	}
}

func TestFlushingRepository_SatisfiesRepository(t *testing.T) {
	f := newFixture(t, cache.DriverMemory)

	var repo repository.Repository[*Account] = New[*Account](f.base, f.factory)
	if _, ok := repo.(*FlushingRepository[*Account]); !ok {
		t.Fatal("expected a FlushingRepository")
	}
}

func TestFlushingRepository_WritesFlush(t *testing.T) {
	record := &Account{ID: 1, Name: "ana", TeamID: 1}
	records := []*Account{record}

	tests := []struct {
		name  string
		write func(ctx context.Context, r *FlushingRepository[*Account]) error
	}{
		{"Create", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			_, err := r.Create(ctx, record)
			return err
		}},
		{"CreateTx", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			_, err := r.CreateTx(ctx, nil, record)
			return err
		}},
		{"CreateMany", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			_, err := r.CreateMany(ctx, records)
			return err
		}},
		{"CreateManyTx", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			_, err := r.CreateManyTx(ctx, nil, records)
			return err
		}},
		{"GetOrCreate", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			_, err := r.GetOrCreate(ctx, record)
			return err
		}},
		{"GetOrCreateTx", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			_, err := r.GetOrCreateTx(ctx, nil, record)
			return err
		}},
		{"Update", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			_, err := r.Update(ctx, record)
			return err
		}},
		{"UpdateTx", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			_, err := r.UpdateTx(ctx, nil, record)
			return err
		}},
		{"UpdateMany", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			_, err := r.UpdateMany(ctx, records)
			return err
		}},
		{"UpdateManyTx", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			_, err := r.UpdateManyTx(ctx, nil, records)
			return err
		}},
		{"Upsert", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			_, err := r.Upsert(ctx, record)
			return err
		}},
		{"UpsertTx", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			_, err := r.UpsertTx(ctx, nil, record)
			return err
		}},
		{"UpsertMany", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			_, err := r.UpsertMany(ctx, records)
			return err
		}},
		{"UpsertManyTx", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			_, err := r.UpsertManyTx(ctx, nil, records)
			return err
		}},
		{"Delete", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			return r.Delete(ctx, record)
		}},
		{"DeleteTx", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			return r.DeleteTx(ctx, nil, record)
		}},
		{"DeleteMany", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			return r.DeleteMany(ctx)
		}},
		{"DeleteManyTx", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			return r.DeleteManyTx(ctx, nil)
		}},
		{"DeleteWhere", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			return r.DeleteWhere(ctx)
		}},
		{"DeleteWhereTx", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			return r.DeleteWhereTx(ctx, nil)
		}},
		{"ForceDelete", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			return r.ForceDelete(ctx, record)
		}},
		{"ForceDeleteTx", func(ctx context.Context, r *FlushingRepository[*Account]) error {
			return r.ForceDeleteTx(ctx, nil, record)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, cache.DriverMemory)
			repo := New[*Account](f.base, f.factory)

			b := f.warm(t)
			if f.groupSize(t, b) != 1 {
				t.Fatalf("expected the warmed query in its group")
			}

			if err := tt.write(ctx, repo); err != nil {
				t.Fatalf("%s() error = %v", tt.name, err)
			}
			if f.groupSize(t, b) != 0 {
				t.Errorf("expected %s to flush the group", tt.name)
			}

			f.warm(t)
			if f.counter.Selects() != 2 {
				t.Errorf("expected a fresh select after %s, got %d selects", tt.name, f.counter.Selects())
			}
			if diff := cmp.Diff([]string{tt.name}, f.base.getCalls()); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFlushingRepository_FailedWriteKeepsCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, cache.DriverMemory)
	boom := errors.New("constraint violation")
	f.base.writeErr = boom
	repo := New[*Account](f.base, f.factory)

	b := f.warm(t)
	if _, err := repo.Create(ctx, &Account{Name: "dup"}); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	if f.groupSize(t, b) != 1 {
		t.Error("expected the cache to survive a failed write")
	}
}

func TestFlushingRepository_WithoutFlushOnWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, cache.DriverMemory)
	repo := New[*Account](f.base, f.factory, WithoutFlushOnWrite[*Account]())

	b := f.warm(t)
	if _, err := repo.Update(ctx, &Account{ID: 1, Name: "ana"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if f.groupSize(t, b) != 1 {
		t.Error("expected no flush when flushing is disabled")
	}

	// an explicit flush still works
	if _, err := repo.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if f.groupSize(t, b) != 0 {
		t.Error("expected explicit Flush to pull the group")
	}
}

func TestFlushingRepository_TagsOnRedis(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, cache.DriverRedis)

	repo := New[*Account](f.base, f.factory, WithTagsFunc[*Account](func(a *Account) []string {
		if a.TeamID == 0 {
			return nil
		}
		return []string{"team:" + a.Name}
	}))

	f.warm(t, "team:ana")
	if !f.redis.Exists("test:tag:team:ana:keys") {
		t.Fatal("expected the team tag set")
	}
	if !f.redis.Exists("test:tag:accounts:keys") {
		t.Fatal("expected the base tag set")
	}

	ctx = WithCacheTags(ctx, "dashboard", "")
	if _, err := repo.Update(ctx, &Account{ID: 1, Name: "ana", TeamID: 1}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if f.redis.Exists("test:tag:team:ana:keys") {
		t.Error("expected the record tag to be flushed")
	}
	// the record tags replace the base tags
	if !f.redis.Exists("test:tag:accounts:keys") {
		t.Error("expected the base tag set to be left alone")
	}
}

func TestFlushingRepository_TagsFor(t *testing.T) {
	ctx := WithCacheTags(context.Background(), "dashboard")
	ctx = WithCacheTags(ctx, "reports", "dashboard")
	f := newFixture(t, cache.DriverMemory)
	q := querycache.NewSelect[*Account](f.factory)

	tests := []struct {
		name    string
		repo    *FlushingRepository[*Account]
		records []*Account
		want    []string
	}{
		{
			name: "base tags by default",
			repo: New[*Account](f.base, f.factory),
			want: []string{"accounts", "dashboard", "reports"},
		},
		{
			name: "tags func per record",
			repo: New[*Account](f.base, f.factory, WithTagsFunc[*Account](func(a *Account) []string {
				return []string{"accounts", "team:" + a.Name}
			})),
			records: []*Account{{Name: "a"}, {Name: "b"}, {Name: "a"}},
			want:    []string{"accounts", "team:a", "team:b", "dashboard", "reports"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.repo.tags(ctx, q, tt.records)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("tags mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWithCacheTags(t *testing.T) {
	ctx := context.Background()
	if WithCacheTags(ctx) != ctx {
		t.Error("expected no-op without tags")
	}

	ctx = WithCacheTags(ctx, "a", "b")
	ctx = WithCacheTags(ctx, "b", "c")
	if diff := cmp.Diff([]string{"a", "b", "c"}, cacheTagsFromContext(ctx)); diff != "" {
		t.Errorf("context tags mismatch (-want +got):\n%s", diff)
	}

	if tags := cacheTagsFromContext(WithCacheTags(nil, "x")); len(tags) != 1 {
		t.Errorf("expected nil context to be replaced, got %v", tags)
	}
}

func TestDedupeStrings(t *testing.T) {
	got := dedupeStrings([]string{"", "a", "b", "a", ""})
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("dedupeStrings() mismatch (-want +got):\n%s", diff)
	}
	if dedupeStrings(nil) != nil {
		t.Error("expected nil for nil input")
	}
}
