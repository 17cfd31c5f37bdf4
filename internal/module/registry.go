package module

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the name -> module table. All mutations of the table and of
// the import lock table happen under one mutex, so two importers can never
// publish two different modules for the same name.
//
// The table is live: callers may Set, Delete or Clear entries directly (for
// example to force a re-import); the importer tolerates whatever it finds.
type Registry struct {
	mu      sync.Mutex
	modules map[string]*Module
	locks   map[string]*importLock
	waiting map[Owner]*importLock
	retain  bool
}

// RegistryOption customizes Registry construction.
type RegistryOption func(*Registry)

// RetainLocks keeps per-name import locks in the table after use instead of
// dropping them once no importer holds or waits on them.
func RetainLocks() RegistryOption {
	return func(r *Registry) { r.retain = true }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		modules: map[string]*Module{},
		locks:   map[string]*importLock{},
		waiting: map[Owner]*importLock{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Get returns the module registered under name.
func (r *Registry) Get(name string) (*Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[name]
	return m, ok
}

// Set installs m under name, replacing any existing entry.
func (r *Registry) Set(name string, m *Module) error {
	if m == nil {
		return fmt.Errorf("module: nil module for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = m
	return nil
}

// Publish installs m under its own name. The loader calls it before running
// the module's unit so circular importers observe the same object.
func (r *Registry) Publish(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Name()] = m
}

// Evict removes name only while it is still bound to m and reports whether
// it did. Entries replaced by someone else are left alone.
func (r *Registry) Evict(name string, m *Module) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.modules[name]; ok && current == m {
		delete(r.modules, name)
		return true
	}
	return false
}

// Delete removes name unconditionally and reports whether it was present.
func (r *Registry) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.modules[name]
	delete(r.modules, name)
	return ok
}

// Clear drops every module. Import locks held by running imports survive.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = map[string]*Module{}
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.modules)
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the registered modules sorted by name.
func (r *Registry) Snapshot() []*Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Module, 0, len(names))
	for _, name := range names {
		out = append(out, r.modules[name])
	}
	return out
}
