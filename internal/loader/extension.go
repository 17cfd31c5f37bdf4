package loader

import (
	"fmt"
	"plugin"

	"github.com/kingrea/modimport/internal/module"
)

// ExtensionOpener loads a native extension and returns its initializer.
type ExtensionOpener interface {
	Open(path string) (InitFunc, error)
}

// ExtensionSymbol is the symbol a plugin must export, with the signature
//
//	func InitModule(ns *module.Namespace) error
const ExtensionSymbol = "InitModule"

// PluginOpener opens extensions built with -buildmode=plugin.
type PluginOpener struct{}

// Open implements ExtensionOpener.
func (PluginOpener) Open(path string) (InitFunc, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open extension %s: %w", path, err)
	}
	sym, err := p.Lookup(ExtensionSymbol)
	if err != nil {
		return nil, fmt.Errorf("loader: extension %s: %w", path, err)
	}
	init, ok := sym.(func(*module.Namespace) error)
	if !ok {
		return nil, fmt.Errorf("loader: extension %s: %s has type %T", path, ExtensionSymbol, sym)
	}
	return func(env *Env) error { return init(env.Namespace()) }, nil
}

// OpenerFunc adapts a function to ExtensionOpener.
type OpenerFunc func(path string) (InitFunc, error)

// Open implements ExtensionOpener.
func (f OpenerFunc) Open(path string) (InitFunc, error) { return f(path) }
