// Package module holds the core data model of the import subsystem: specs,
// module objects with their ordered namespaces, and the registry that owns
// every loaded module together with the per-name import locks.
package module

import (
	"fmt"
	"sync/atomic"
)

// State is the lifecycle state of a module object.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Module is a loaded (or loading) module. The registry owns it for the rest
// of the process; other holders keep plain references.
type Module struct {
	name  string
	spec  *Spec
	ns    *Namespace
	state atomic.Int32
	owner Owner
}

// New allocates an uninitialized module for spec.
func New(spec *Spec) *Module {
	m := &Module{name: spec.Name, spec: spec, ns: NewNamespace()}
	m.state.Store(int32(StateUninitialized))
	return m
}

// NewWithState builds a module outside the loader pipeline, e.g. when code
// injects an entry into the registry directly. ns may be nil.
func NewWithState(name string, ns *Namespace, state State) *Module {
	m := &Module{name: name, spec: &Spec{Name: name}, ns: ns}
	m.state.Store(int32(state))
	return m
}

// Name returns the fully qualified module name.
func (m *Module) Name() string { return m.name }

// Spec returns the spec the module was created from.
func (m *Module) Spec() *Spec { return m.spec }

// Namespace returns the module's execution namespace.
func (m *Module) Namespace() *Namespace { return m.ns }

// State returns the current lifecycle state.
func (m *Module) State() State { return State(m.state.Load()) }

// SetState moves the module to s.
func (m *Module) SetState(s State) { m.state.Store(int32(s)) }

// IsPackage reports whether the module is a package.
func (m *Module) IsPackage() bool { return m.spec.IsPackage() }

// Owner returns the import owner that initializes (or initialized) the module.
func (m *Module) Owner() Owner { return m.owner }

// BeginInit marks the module as initializing on behalf of owner.
func (m *Module) BeginInit(owner Owner) {
	m.owner = owner
	m.SetState(StateInitializing)
}

// Usable reports whether the module can be handed to an importer without
// loading it again. Unrecognized states count as ready when the module has a
// namespace.
func (m *Module) Usable() bool {
	if m == nil || m.ns == nil {
		return false
	}
	switch m.State() {
	case StateFailed, StateUninitialized:
		return false
	default:
		return true
	}
}

// Attr returns a binding of the module namespace without resolving
// placeholders. Partially initialized modules may lack attributes.
func (m *Module) Attr(name string) (Value, bool) {
	if m.ns == nil {
		return nil, false
	}
	return m.ns.Lookup(name)
}

func (m *Module) String() string {
	origin := ""
	if m.spec != nil && m.spec.Origin != "" {
		origin = " from " + m.spec.Origin
	}
	return fmt.Sprintf("<module %s%s (%s)>", m.name, origin, m.State())
}
