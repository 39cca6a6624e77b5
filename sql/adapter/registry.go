package adapter

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages available SQL adapters. Callers build their own registry
// and pass it where it is needed.
type Registry struct {
	mu       sync.RWMutex
	adapters map[AdapterName]func() Adapter
}

// NewRegistry creates a registry holding the built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{
		adapters: make(map[AdapterName]func() Adapter),
	}

	r.Register("postgresql", func() Adapter { return NewPostgreSQLAdapter() })
	r.Register("postgres", func() Adapter { return NewPostgreSQLAdapter() }) // Alias
	r.Register("mysql", func() Adapter { return NewMySQLAdapter() })
	r.Register("mariadb", func() Adapter { return NewMySQLAdapter() }) // Alias
	r.Register("sqlite", func() Adapter { return NewSQLiteAdapter() })
	r.Register("sqlite3", func() Adapter { return NewSQLiteAdapter() }) // Alias

	return r
}

// Register registers a new adapter factory.
func (r *Registry) Register(name AdapterName, factory func() Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = factory
}

// Get builds a fresh adapter by name.
func (r *Registry) Get(name AdapterName) (Adapter, error) {
	r.mu.RLock()
	factory, exists := r.adapters[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("adapter '%s' not found", name)
	}

	return factory(), nil
}

// List returns all registered adapter names, sorted.
func (r *Registry) List() []AdapterName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]AdapterName, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	return names
}

// Exists checks if an adapter is registered.
func (r *Registry) Exists(name AdapterName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.adapters[name]
	return exists
}
