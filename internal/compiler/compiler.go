// Package compiler compiles Go-source modules for the yaegi interpreter.
//
// A source module is an ordinary Go file. Its exported top-level functions,
// variables and constants become module attributes once the file has been
// evaluated; an optional `func Init() error` runs afterwards. The module can
// reach the import system through the "modimport/rt" package:
//
//	import "modimport/rt"
//
//	func Init() error {
//		other, err := rt.Import("strings")
//		...
//		rt.Set("ready", true)
//		return nil
//	}
//
// rt.LazyImport(target, from...) and rt.LazyImportAs(target, as, from...)
// run lazy import statements in the module's namespace; rt.Get on a lazily
// bound name imports it.
//
// Every execution uses a fresh interpreter, so modules never share
// interpreter state; they share values only through module namespaces.
package compiler

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kingrea/modimport/internal/lazy"
	"github.com/kingrea/modimport/internal/loader"
	"github.com/kingrea/modimport/internal/module"
)

// RuntimePath is the import path of the runtime package exposed to modules.
const RuntimePath = "modimport/rt"

// InitFunc is the optional entry point a source module may declare.
const InitFunc = "Init"

// GoCompiler implements loader.Compiler and loader.Codec for Go source.
type GoCompiler struct {
	// Stdlib exposes the yaegi standard library symbols to modules.
	Stdlib bool
}

// New returns a compiler with the standard library available.
func New() *GoCompiler { return &GoCompiler{Stdlib: true} }

// Unit is a checked Go-source module.
type Unit struct {
	File    string   `msgpack:"file"`
	Package string   `msgpack:"package"`
	Source  string   `msgpack:"source"`
	Exports []string `msgpack:"exports"`
	HasInit bool     `msgpack:"has_init"`
	Stdlib  bool     `msgpack:"stdlib"`
}

// Compile parses source and records its package name and exported names.
// Syntax errors are returned as is.
func (c *GoCompiler) Compile(source []byte, filename string) (loader.Unit, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, source, parser.AllErrors)
	if err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	u := &Unit{
		File:    filename,
		Package: file.Name.Name,
		Source:  string(source),
		Stdlib:  c.Stdlib,
	}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv != nil || !d.Name.IsExported() {
				continue
			}
			if d.Name.Name == InitFunc {
				u.HasInit = true
				continue
			}
			u.Exports = append(u.Exports, d.Name.Name)
		case *ast.GenDecl:
			if d.Tok != token.VAR && d.Tok != token.CONST {
				continue
			}
			for _, spec := range d.Specs {
				for _, name := range spec.(*ast.ValueSpec).Names {
					if name.IsExported() {
						u.Exports = append(u.Exports, name.Name)
					}
				}
			}
		}
	}
	return u, nil
}

// EncodeUnit implements loader.Codec.
func (c *GoCompiler) EncodeUnit(u loader.Unit) ([]byte, error) {
	unit, ok := u.(*Unit)
	if !ok {
		return nil, fmt.Errorf("compiler: cannot encode %T", u)
	}
	return msgpack.Marshal(unit)
}

// DecodeUnit implements loader.Codec.
func (c *GoCompiler) DecodeUnit(data []byte, filename string) (loader.Unit, error) {
	var u Unit
	if err := msgpack.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("compiler: decode %s: %w", filename, err)
	}
	if u.Package == "" {
		return nil, fmt.Errorf("compiler: decode %s: missing package name", filename)
	}
	return &u, nil
}

// Exec evaluates the module in a fresh interpreter and binds its exports.
func (u *Unit) Exec(env *loader.Env) error {
	i := interp.New(interp.Options{})
	if u.Stdlib {
		if err := i.Use(stdlib.Symbols); err != nil {
			return fmt.Errorf("compiler: load stdlib symbols: %w", err)
		}
	}
	if err := i.Use(runtimeSymbols(env)); err != nil {
		return fmt.Errorf("compiler: load runtime symbols: %w", err)
	}
	if _, err := i.Eval(u.Source); err != nil {
		return fmt.Errorf("compiler: eval %s: %w", u.File, err)
	}
	for _, name := range u.Exports {
		v, err := i.Eval(u.Package + "." + name)
		if err != nil {
			return fmt.Errorf("compiler: %s: resolve %s: %w", u.File, name, err)
		}
		if v.IsValid() && v.CanInterface() {
			env.Set(name, v.Interface())
		}
	}
	if !u.HasInit {
		return nil
	}
	v, err := i.Eval(u.Package + "." + InitFunc)
	if err != nil {
		return fmt.Errorf("compiler: %s: resolve %s: %w", u.File, InitFunc, err)
	}
	if v.Kind() != reflect.Func {
		return fmt.Errorf("compiler: %s: %s is not a function", u.File, InitFunc)
	}
	_, err = module.Call(env.Context, v.Interface())
	return err
}

// runtimeSymbols builds the "modimport/rt" package bound to the module that
// env is initializing.
func runtimeSymbols(env *loader.Env) interp.Exports {
	set := func(name string, v any) { env.Set(name, v) }
	get := func(name string) (any, bool) {
		v, ok, err := env.Namespace().Load(env.Context, name)
		if err != nil {
			return nil, false
		}
		return v, ok
	}
	imp := func(name string) (map[string]any, error) {
		m, err := env.Import(name)
		if err != nil {
			return nil, err
		}
		return m.Namespace().Map(), nil
	}
	call := func(mod, attr string, args ...any) (any, error) {
		m, err := env.Import(mod)
		if err != nil {
			return nil, err
		}
		fn, ok, err := m.Namespace().Load(env.Context, attr)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("module %s has no attribute %s", mod, attr)
		}
		return module.Call(env.Context, fn, args...)
	}
	lazyImport := func(target string, fromList ...string) error {
		return env.LazyImport(lazy.Statement{Target: target, FromList: fromList})
	}
	lazyImportAs := func(target, as string, fromList ...string) error {
		return env.LazyImport(lazy.Statement{Target: target, FromList: fromList, As: as})
	}
	return interp.Exports{
		RuntimePath + "/rt": {
			"Set":          reflect.ValueOf(set),
			"Get":          reflect.ValueOf(get),
			"Import":       reflect.ValueOf(imp),
			"Call":         reflect.ValueOf(call),
			"LazyImport":   reflect.ValueOf(lazyImport),
			"LazyImportAs": reflect.ValueOf(lazyImportAs),
		},
	}
}
