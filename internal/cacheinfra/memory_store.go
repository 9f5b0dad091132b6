package cacheinfra

import (
	"context"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/viccon/sturdyc"
)

var _ cache.Store = (*MemoryStore)(nil)

// memoryEntry carries the per-entry expiry that sturdyc does not track itself.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process store backed by a sharded sturdyc client.
// It has no tagging capability, so the query cache falls back to group
// bookkeeping when it is the selected driver.
//
// Entries stored forever still expire after Config.TTL, which bounds memory.
type MemoryStore struct {
	client *sturdyc.Client[memoryEntry]
	now    func() time.Time
}

// NewMemoryStore validates cfg and initializes a sturdyc client with it.
//
// Capacity, NumShards, TTL and EvictionPercentage are passed to sturdyc.New;
// EvictionInterval is applied as an option when set.
func NewMemoryStore(cfg cache.MemoryConfig) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var options []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	client := sturdyc.New[memoryEntry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		options...,
	)

	return &MemoryStore{client: client, now: time.Now}, nil
}

// Get implements cache.Store.Get. Expired entries are removed on read.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := s.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	if entry.expired(s.now()) {
		s.client.Delete(key)
		return nil, false, nil
	}
	return cloneBytes(entry.value), true, nil
}

// Put implements cache.Store.Put.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: cloneBytes(value)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.client.Set(key, entry)
	return nil
}

// Pull implements cache.Store.Pull.
func (s *MemoryStore) Pull(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	s.client.Delete(key)
	return value, ok, nil
}

// Forget implements cache.Store.Forget.
func (s *MemoryStore) Forget(_ context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// Keys returns the keys currently held, including ones that expired but were not read yet.
func (s *MemoryStore) Keys() []string {
	return s.client.ScanKeys()
}

// Len returns the number of entries currently held.
func (s *MemoryStore) Len() int {
	return s.client.Size()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
