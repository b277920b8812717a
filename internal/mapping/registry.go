package mapping

import (
	"sort"
	"sync"
)

// Registry holds the schema of every destination table seen during the
// process lifetime. Entries are never removed, even when the backing table is
// dropped.
//
// Each table has its own lock, so evolving one table's schema never blocks
// work on another table.
type Registry struct {
	mu     sync.Mutex
	tables map[string]*registryEntry
}

type registryEntry struct {
	mu     sync.Mutex
	schema *TableSchema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*registryEntry)}
}

func (r *Registry) entry(tableName string) *registryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tables[tableName]
	if !ok {
		e = &registryEntry{}
		r.tables[tableName] = e
	}
	return e
}

// Get returns a copy of the schema registered for tableName.
func (r *Registry) Get(tableName string) (*TableSchema, bool) {
	r.mu.Lock()
	e, ok := r.tables[tableName]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.schema == nil {
		return nil, false
	}
	return e.schema.Clone(), true
}

// Update runs fn while holding the lock of tableName. fn receives the live
// schema, or nil if the table is unknown, and may mutate it. A non-nil result
// becomes the registered schema. Update returns a copy of the schema as it
// stands when fn returns.
func (r *Registry) Update(tableName string, fn func(current *TableSchema) (*TableSchema, error)) (*TableSchema, error) {
	e := r.entry(tableName)
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := fn(e.schema)
	if err != nil {
		return nil, err
	}
	if next != nil {
		e.schema = next
	}
	if e.schema == nil {
		return nil, nil
	}
	return e.schema.Clone(), nil
}

// Tables lists the registered table names in lexical order. A table whose
// schema is being evolved is waited for without holding up other tables.
func (r *Registry) Tables() []string {
	r.mu.Lock()
	entries := make(map[string]*registryEntry, len(r.tables))
	for name, e := range r.tables {
		entries[name] = e
	}
	r.mu.Unlock()

	out := make([]string, 0, len(entries))
	for name, e := range entries {
		e.mu.Lock()
		registered := e.schema != nil
		e.mu.Unlock()
		if registered {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
