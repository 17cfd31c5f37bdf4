package module

import (
	"context"
	"sync"
)

// Value is anything a module namespace can bind.
type Value = any

// Materializer is implemented by placeholders (lazy proxies) that stand in for
// a value until first use. Namespace.Load resolves them; Lookup and Snapshot
// never do.
type Materializer interface {
	Materialize(ctx context.Context) (Value, error)
}

// Binding is one name/value pair of a namespace snapshot.
type Binding struct {
	Name  string
	Value Value
}

// Namespace is the execution namespace of a module. Bindings keep insertion
// order; rebinding an existing name keeps its original position.
type Namespace struct {
	mu     sync.RWMutex
	keys   []string
	values map[string]Value
}

// NewNamespace returns an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{values: map[string]Value{}}
}

// Set binds name to value.
func (ns *Namespace) Set(name string, value Value) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, exists := ns.values[name]; !exists {
		ns.keys = append(ns.keys, name)
	}
	ns.values[name] = value
}

// CompareAndSwap rebinds name to next only while it is still bound to old.
// Values are compared by identity, so old must be comparable.
func (ns *Namespace) CompareAndSwap(name string, old, next Value) bool {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	current, ok := ns.values[name]
	if !ok || current != old {
		return false
	}
	ns.values[name] = next
	return true
}

// Lookup returns the raw binding without resolving placeholders.
func (ns *Namespace) Lookup(name string) (Value, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	v, ok := ns.values[name]
	return v, ok
}

// Load returns the binding for name, materializing a placeholder first. This
// is the "use" of a name; reflection goes through Snapshot instead.
func (ns *Namespace) Load(ctx context.Context, name string) (Value, bool, error) {
	v, ok := ns.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	if m, isPlaceholder := v.(Materializer); isPlaceholder {
		real, err := m.Materialize(ctx)
		if err != nil {
			return nil, true, err
		}
		return real, true, nil
	}
	return v, true, nil
}

// Delete removes name and reports whether it was bound.
func (ns *Namespace) Delete(name string) bool {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, ok := ns.values[name]; !ok {
		return false
	}
	delete(ns.values, name)
	for i, k := range ns.keys {
		if k == name {
			ns.keys = append(ns.keys[:i], ns.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the bound names in insertion order.
func (ns *Namespace) Keys() []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return append([]string(nil), ns.keys...)
}

// Len returns the number of bindings.
func (ns *Namespace) Len() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return len(ns.keys)
}

// Snapshot is the reflection view of the namespace: every binding in
// insertion order, placeholders included as themselves.
func (ns *Namespace) Snapshot() []Binding {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	out := make([]Binding, 0, len(ns.keys))
	for _, k := range ns.keys {
		out = append(out, Binding{Name: k, Value: ns.values[k]})
	}
	return out
}

// Map returns a copy of the bindings keyed by name, placeholders unresolved.
func (ns *Namespace) Map() map[string]Value {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	out := make(map[string]Value, len(ns.values))
	for k, v := range ns.values {
		out[k] = v
	}
	return out
}
