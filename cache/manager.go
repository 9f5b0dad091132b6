package cache

import (
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Manager resolves named store drivers. The zero name resolves to the default driver.
type Manager struct {
	stores      *xsync.MapOf[string, Store]
	defaultName atomic.Value
}

// NewManager creates a Manager whose default driver is defaultName.
func NewManager(defaultName string) *Manager {
	m := &Manager{
		stores: xsync.NewMapOf[string, Store](),
	}
	m.defaultName.Store(defaultName)
	return m
}

// Register adds or replaces the store for name and returns the manager for chaining.
func (m *Manager) Register(name string, store Store) *Manager {
	m.stores.Store(name, store)
	return m
}

// SetDefault changes the driver used when no name is given.
func (m *Manager) SetDefault(name string) {
	m.defaultName.Store(name)
}

// DefaultName returns the name of the default driver.
func (m *Manager) DefaultName() string {
	name, _ := m.defaultName.Load().(string)
	return name
}

// Resolve maps an empty driver name to the default one.
func (m *Manager) Resolve(name string) string {
	if name == "" {
		return m.DefaultName()
	}
	return name
}

// Store returns the store registered under name, or the default store when name is empty.
func (m *Manager) Store(name string) (Store, error) {
	name = m.Resolve(name)
	store, ok := m.stores.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return store, nil
}

// Default returns the default store.
func (m *Manager) Default() (Store, error) {
	return m.Store("")
}

// Names lists the registered drivers in no particular order.
func (m *Manager) Names() []string {
	names := make([]string, 0, m.stores.Size())
	m.stores.Range(func(name string, _ Store) bool {
		names = append(names, name)
		return true
	})
	return names
}
