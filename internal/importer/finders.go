package importer

import (
	"github.com/kingrea/modimport/internal/finder"
	"github.com/kingrea/modimport/internal/loader"
	"github.com/kingrea/modimport/internal/module"
)

// MetaFinder is one link of the finder chain. path is the search path for
// the lookup: the parent's submodule search locations for dotted names, the
// importer's search path otherwise. A miss returns nil.
type MetaFinder interface {
	FindSpec(name string, path []string) *module.Spec
}

// MetaFinderFunc adapts a function to MetaFinder.
type MetaFinderFunc func(name string, path []string) *module.Spec

// FindSpec implements MetaFinder.
func (f MetaFinderFunc) FindSpec(name string, path []string) *module.Spec { return f(name, path) }

// BuiltinFinder resolves names of the builtin table.
type BuiltinFinder struct {
	Table *loader.BuiltinTable
}

// FindSpec implements MetaFinder.
func (f BuiltinFinder) FindSpec(name string, _ []string) *module.Spec {
	if _, ok := f.Table.Lookup(name); !ok {
		return nil
	}
	return &module.Spec{Name: name, Origin: module.OriginBuiltin, Kind: module.KindBuiltin}
}

// FrozenFinder resolves names of the frozen table.
type FrozenFinder struct {
	Table *loader.FrozenTable
}

// FindSpec implements MetaFinder.
func (f FrozenFinder) FindSpec(name string, _ []string) *module.Spec {
	fm, ok := f.Table.Lookup(name)
	if !ok {
		return nil
	}
	spec := &module.Spec{Name: name, Origin: module.OriginFrozen, Kind: module.KindFrozen}
	if fm.Package {
		spec.SubmoduleSearchLocations = []string{}
	}
	return spec
}

// PathEntryFinder searches the filesystem through a PathFinder.
type PathEntryFinder struct {
	Paths *finder.PathFinder
}

// FindSpec implements MetaFinder.
func (f PathEntryFinder) FindSpec(name string, path []string) *module.Spec {
	return f.Paths.FindSpec(name, path)
}
