package loader

import (
	"sort"
	"sync"
)

// BuiltinTable maps names of modules compiled into the binary to their
// initializers.
type BuiltinTable struct {
	mu      sync.RWMutex
	entries map[string]InitFunc
}

// NewBuiltinTable returns an empty table.
func NewBuiltinTable() *BuiltinTable {
	return &BuiltinTable{entries: map[string]InitFunc{}}
}

// Register adds or replaces a builtin.
func (t *BuiltinTable) Register(name string, init InitFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[name] = init
}

// Lookup returns the initializer for name.
func (t *BuiltinTable) Lookup(name string) (InitFunc, bool) {
	if t == nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	init, ok := t.entries[name]
	return init, ok
}

// Names lists the registered builtins, sorted.
func (t *BuiltinTable) Names() []string {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FrozenModule is a precompiled module embedded in the binary. Unit wins
// over Code; Code holds a Codec-encoded unit.
type FrozenModule struct {
	Unit    Unit
	Code    []byte
	Package bool
}

// FrozenTable maps names to frozen modules.
type FrozenTable struct {
	mu      sync.RWMutex
	entries map[string]FrozenModule
}

// NewFrozenTable returns an empty table.
func NewFrozenTable() *FrozenTable {
	return &FrozenTable{entries: map[string]FrozenModule{}}
}

// Register adds or replaces a frozen module.
func (t *FrozenTable) Register(name string, fm FrozenModule) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[name] = fm
}

// Lookup returns the frozen module for name.
func (t *FrozenTable) Lookup(name string) (FrozenModule, bool) {
	if t == nil {
		return FrozenModule{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	fm, ok := t.entries[name]
	return fm, ok
}

// Names lists the frozen modules, sorted.
func (t *FrozenTable) Names() []string {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
