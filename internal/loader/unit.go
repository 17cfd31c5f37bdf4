// Package loader turns a module.Spec into an initialized module. One Loader
// dispatches on the spec's LoaderKind; every kind ends in the same
// publish-then-execute sequence so circular importers observe the module
// object while its unit is still running.
package loader

import (
	"context"

	"github.com/kingrea/modimport/internal/lazy"
	"github.com/kingrea/modimport/internal/module"
)

// Unit is an executable module body produced by a Compiler, a Codec, a
// builtin table entry or an extension.
type Unit interface {
	Exec(env *Env) error
}

// UnitFunc adapts a function to Unit.
type UnitFunc func(env *Env) error

// Exec implements Unit.
func (f UnitFunc) Exec(env *Env) error { return f(env) }

// InitFunc initializes a builtin or extension module.
type InitFunc = UnitFunc

// Importer is the recursive import entry point handed to running units.
type Importer interface {
	Import(ctx context.Context, name string) (*module.Module, error)
}

// Compiler turns module source into a unit or reports a syntax error.
type Compiler interface {
	Compile(source []byte, filename string) (Unit, error)
}

// Codec serializes units for bytecode files, frozen entries and the
// compiled-unit cache.
type Codec interface {
	EncodeUnit(u Unit) ([]byte, error)
	DecodeUnit(data []byte, filename string) (Unit, error)
}

// Env is what a unit sees while it executes: the module being initialized
// (its namespace is the execution namespace) and the importer for nested
// imports. Context carries the import owner; nested imports must use it.
type Env struct {
	Context  context.Context
	Module   *module.Module
	Importer Importer

	// Binder runs lazy import statements. Nil means a binder over Importer
	// that consults the process-wide filter.
	Binder *lazy.Binder
}

// Namespace returns the execution namespace.
func (e *Env) Namespace() *module.Namespace { return e.Module.Namespace() }

// Set binds name in the execution namespace.
func (e *Env) Set(name string, v module.Value) { e.Module.Namespace().Set(name, v) }

// Import imports name on behalf of the running unit.
func (e *Env) Import(name string) (*module.Module, error) {
	return e.Importer.Import(e.Context, name)
}

// LazyImport executes st in the execution namespace with the running module
// as the importer.
func (e *Env) LazyImport(st lazy.Statement) error {
	b := e.Binder
	if b == nil {
		b = lazy.NewBinder(e.Importer)
	}
	st.Importer = e.Module.Name()
	return b.Bind(e.Context, e.Namespace(), st)
}
