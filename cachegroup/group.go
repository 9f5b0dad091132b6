// Package cachegroup tracks which cache keys belong together so they can be
// deleted in one call.
//
// A group is stored as a single record in the selected store: a msgpack map
// whose keys and values are both the member cache keys. Membership only grows
// through Add and is cleared as a whole by Pull.
//
// Add is a read-modify-write with no compare-and-swap. Two concurrent Add
// calls on the same group can interleave and the last write wins, dropping
// the other member. Pull is therefore best-effort: a key whose registration
// was lost stays cached until its own TTL expires.
package cachegroup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/vmihailenco/msgpack/v5"
)

// Groups is the contract the query cache needs from a group registry.
type Groups interface {
	Add(ctx context.Context, group, key string, ttl time.Duration) error
	Get(ctx context.Context, group string) (map[string]string, error)
	Pull(ctx context.Context, group string) error
}

var _ Groups = (*CacheGroup)(nil)

// CacheGroup maps a group name to the set of cache keys that belong to it.
type CacheGroup struct {
	stores *cache.Manager

	mu     sync.RWMutex
	driver string
}

// New creates a CacheGroup that targets the manager's default store.
func New(stores *cache.Manager) *CacheGroup {
	return &CacheGroup{stores: stores}
}

// Driver selects the store subsequent operations on this instance target.
// The last call wins; an empty name selects the default store.
func (g *CacheGroup) Driver(name string) *CacheGroup {
	g.mu.Lock()
	g.driver = name
	g.mu.Unlock()
	return g
}

// Using returns a copy of the group registry bound to the named store,
// leaving the receiver untouched.
func (g *CacheGroup) Using(name string) *CacheGroup {
	return &CacheGroup{stores: g.stores, driver: name}
}

// DriverName returns the resolved name of the active store.
func (g *CacheGroup) DriverName() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stores.Resolve(g.driver)
}

func (g *CacheGroup) store() (cache.Store, error) {
	g.mu.RLock()
	name := g.driver
	g.mu.RUnlock()
	return g.stores.Store(name)
}

// Add inserts key into group and writes the group back with ttl.
// A ttl <= 0 keeps the group indefinitely.
func (g *CacheGroup) Add(ctx context.Context, group, key string, ttl time.Duration) error {
	store, err := g.store()
	if err != nil {
		return err
	}

	members, err := g.read(ctx, store, group)
	if err != nil {
		return err
	}
	members[key] = key

	data, err := msgpack.Marshal(members)
	if err != nil {
		return fmt.Errorf("cachegroup: encode %q: %w", group, err)
	}
	return store.Put(ctx, group, data, ttl)
}

// Get returns the members of group, or an empty map when the group does not exist.
func (g *CacheGroup) Get(ctx context.Context, group string) (map[string]string, error) {
	store, err := g.store()
	if err != nil {
		return nil, err
	}
	return g.read(ctx, store, group)
}

// Pull deletes every member key of group and then the group record itself.
func (g *CacheGroup) Pull(ctx context.Context, group string) error {
	store, err := g.store()
	if err != nil {
		return err
	}

	members, err := g.read(ctx, store, group)
	if err != nil {
		return err
	}

	for key := range members {
		if _, _, err := store.Pull(ctx, key); err != nil {
			return err
		}
	}

	_, _, err = store.Pull(ctx, group)
	return err
}

func (g *CacheGroup) read(ctx context.Context, store cache.Store, group string) (map[string]string, error) {
	data, ok, err := store.Get(ctx, group)
	if err != nil {
		return nil, err
	}

	members := make(map[string]string)
	if !ok || len(data) == 0 {
		return members, nil
	}

	if err := msgpack.Unmarshal(data, &members); err != nil {
		return nil, fmt.Errorf("cachegroup: decode %q: %w", group, err)
	}
	return members, nil
}
