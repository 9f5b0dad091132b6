package testsupport

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

// QueryCounter is a bun query hook that counts the statements reaching the database.
type QueryCounter struct {
	mu      sync.Mutex
	selects int
	queries []string
}

var _ bun.QueryHook = (*QueryCounter)(nil)

func (c *QueryCounter) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (c *QueryCounter) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queries = append(c.queries, event.Query)
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(event.Query)), "SELECT") {
		c.selects++
	}
}

// Selects returns the number of SELECT statements executed so far.
func (c *QueryCounter) Selects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selects
}

// Queries returns every statement executed so far.
func (c *QueryCounter) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

// Reset clears the counters.
func (c *QueryCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selects = 0
	c.queries = nil
}

// NewSQLiteDB opens an in-memory SQLite database wrapped in bun, with a
// QueryCounter installed. The database is closed when the test ends.
func NewSQLiteDB(t testing.TB) (*bun.DB, *QueryCounter) {
	t.Helper()

	sqldb, err := sql.Open("sqlite", "file::memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	// one connection keeps every statement on the same in-memory database
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	counter := &QueryCounter{}
	db.AddQueryHook(counter)

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, counter
}

// CreateTable creates the table for model, failing the test on error.
func CreateTable(t testing.TB, db *bun.DB, model any) {
	t.Helper()

	if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(context.Background()); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
}

// Insert inserts rows, failing the test on error. rows must be a pointer to a
// model or a pointer to a slice of models.
func Insert(t testing.TB, db *bun.DB, rows any) {
	t.Helper()

	if _, err := db.NewInsert().Model(rows).Exec(context.Background()); err != nil {
		t.Fatalf("failed to insert rows: %v", err)
	}
}
