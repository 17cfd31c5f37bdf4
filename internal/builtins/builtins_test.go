package builtins

import (
	"context"
	"reflect"
	"testing"

	"github.com/kingrea/modimport/internal/importer"
	"github.com/kingrea/modimport/internal/importtest"
	"github.com/kingrea/modimport/internal/loader"
	"github.com/kingrea/modimport/internal/module"
)

func newImporter(t *testing.T) *importer.Importer {
	t.Helper()
	table := loader.NewBuiltinTable()
	imp := importer.New(
		importer.WithFS(importtest.NewFS()),
		importer.WithBuiltins(table),
		importer.WithSearchPath("/lib"),
	)
	RegisterBuiltins(table, imp)
	return imp
}

func call(t *testing.T, m *module.Module, name string, args ...module.Value) module.Value {
	t.Helper()
	fn, ok := m.Attr(name)
	if !ok {
		t.Fatalf("%s has no %s", m.Name(), name)
	}
	v, err := module.Call(context.Background(), fn, args...)
	if err != nil {
		t.Fatalf("%s.%s: %v", m.Name(), name, err)
	}
	return v
}

func TestSysModuleReflectsImporter(t *testing.T) {
	imp := newImporter(t)
	sys, err := imp.Import(context.Background(), "sys")
	if err != nil {
		t.Fatalf("import sys: %v", err)
	}
	if sys.Spec().Kind != module.KindBuiltin {
		t.Fatalf("sys should be a builtin, got %s", sys.Spec().Kind)
	}
	call(t, sys, "append_path", "/extra")
	if got := call(t, sys, "path"); !reflect.DeepEqual(got, []string{"/lib", "/extra"}) {
		t.Fatalf("sys.path() = %v", got)
	}
	if got := call(t, sys, "modules"); !reflect.DeepEqual(got, []string{"sys"}) {
		t.Fatalf("sys.modules() = %v", got)
	}
	call(t, sys, "invalidate_caches")
}

func TestStringsModule(t *testing.T) {
	imp := newImporter(t)
	s, err := imp.Import(context.Background(), "strings")
	if err != nil {
		t.Fatalf("import strings: %v", err)
	}
	if got := call(t, s, "upper", "go"); got != "GO" {
		t.Fatalf("upper = %v", got)
	}
	if got := call(t, s, "join", "-", "a", "b", "c"); got != "a-b-c" {
		t.Fatalf("join = %v", got)
	}
}

func TestSysWithoutHostFails(t *testing.T) {
	table := loader.NewBuiltinTable()
	RegisterBuiltins(table, nil)
	imp := importer.New(importer.WithFS(importtest.NewFS()), importer.WithBuiltins(table))
	if _, err := imp.Import(context.Background(), "sys"); err == nil {
		t.Fatalf("sys without a host should fail to initialize")
	}
}
