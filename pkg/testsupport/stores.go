package testsupport

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/internal/cacheinfra"
	"github.com/redis/go-redis/v9"
)

// NewMemoryStore returns a small sturdyc backed store for tests.
func NewMemoryStore(t testing.TB) *cacheinfra.MemoryStore {
	t.Helper()

	store, err := cacheinfra.NewMemoryStore(cache.MemoryConfig{
		Capacity:           1000,
		NumShards:          4,
		TTL:                time.Hour,
		EvictionPercentage: 10,
	})
	if err != nil {
		t.Fatalf("failed to create memory store: %v", err)
	}
	return store
}

// NewRedisStore starts a miniredis server and returns a store connected to it.
// The server and client are shut down when the test ends.
func NewRedisStore(t testing.TB) (*miniredis.Miniredis, *cacheinfra.RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := cacheinfra.NewRedisStoreFromClient(client, "test:")

	t.Cleanup(func() {
		_ = store.Close()
	})
	return mr, store
}

// NewManager registers a memory store under cache.DriverMemory and a
// miniredis backed store under cache.DriverRedis. defaultDriver picks which
// one an empty driver name resolves to.
func NewManager(t testing.TB, defaultDriver string) (*cache.Manager, *miniredis.Miniredis) {
	t.Helper()

	mr, redisStore := NewRedisStore(t)
	m := cache.NewManager(defaultDriver).
		Register(cache.DriverMemory, NewMemoryStore(t)).
		Register(cache.DriverRedis, redisStore)
	return m, mr
}
