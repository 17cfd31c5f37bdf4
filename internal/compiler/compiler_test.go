package compiler

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kingrea/modimport/internal/lazy"
	"github.com/kingrea/modimport/internal/loader"
	"github.com/kingrea/modimport/internal/module"
)

type mapImporter map[string]*module.Module

func (m mapImporter) Import(_ context.Context, name string) (*module.Module, error) {
	if mod, ok := m[name]; ok {
		return mod, nil
	}
	return nil, &module.NotFoundError{Name: name}
}

func newEnv(name string, imp loader.Importer) *loader.Env {
	return &loader.Env{
		Context:  context.Background(),
		Module:   module.New(&module.Spec{Name: name, Kind: module.KindSource}),
		Importer: imp,
	}
}

func TestCompileReportsSyntaxErrors(t *testing.T) {
	_, err := New().Compile([]byte("package broken\nfunc {"), "broken.go")
	if err == nil || !strings.Contains(err.Error(), "broken.go") {
		t.Fatalf("expected syntax error naming the file, got %v", err)
	}
}

func TestCompileCollectsExports(t *testing.T) {
	src := `package greet

const Greeting = "hello"

var Answer, hidden = 42, 0

func Hello(name string) string { return Greeting + " " + name }

func helper() {}

func Init() error { return nil }
`
	u, err := New().Compile([]byte(src), "greet.go")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	unit := u.(*Unit)
	if unit.Package != "greet" || !unit.HasInit {
		t.Fatalf("unexpected unit %+v", unit)
	}
	if got := strings.Join(unit.Exports, ","); got != "Greeting,Answer,Hello" {
		t.Fatalf("exports = %s", got)
	}
}

func TestExecBindsExportsAndRunsInit(t *testing.T) {
	src := `package greet

import (
	"strings"

	"modimport/rt"
)

var Answer = 42

func Hello(name string) string { return "hello " + strings.ToUpper(name) }

func Init() error {
	dep, err := rt.Import("dep")
	if err != nil {
		return err
	}
	rt.Set("copied", dep["value"])
	return nil
}
`
	dep := module.New(&module.Spec{Name: "dep"})
	dep.Namespace().Set("value", "from dep")
	dep.SetState(module.StateReady)

	u, err := New().Compile([]byte(src), "greet.go")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	env := newEnv("greet", mapImporter{"dep": dep})
	if err := u.Exec(env); err != nil {
		t.Fatalf("exec: %v", err)
	}
	ns := env.Namespace()
	if v, _ := ns.Lookup("Answer"); v != 42 {
		t.Fatalf("Answer = %v", v)
	}
	if v, _ := ns.Lookup("copied"); v != "from dep" {
		t.Fatalf("copied = %v", v)
	}
	hello, _ := ns.Lookup("Hello")
	got, err := module.Call(context.Background(), hello, "go")
	if err != nil || got != "hello GO" {
		t.Fatalf("Hello(go) = %v, %v", got, err)
	}
}

func TestExecSurfacesInitError(t *testing.T) {
	src := `package bad

import "errors"

func Init() error { return errors.New("refusing to start") }
`
	u, err := New().Compile([]byte(src), "bad.go")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	err = u.Exec(newEnv("bad", mapImporter{}))
	if err == nil || !strings.Contains(err.Error(), "refusing to start") {
		t.Fatalf("expected init error, got %v", err)
	}
}

func TestDecodedUnitExecutes(t *testing.T) {
	c := New()
	u, err := c.Compile([]byte("package k\n\nvar Name = \"k\"\n"), "k.go")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	data, err := c.EncodeUnit(u)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := c.DecodeUnit(data, "k.gobc")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	env := newEnv("k", mapImporter{})
	if err := decoded.Exec(env); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if v, _ := env.Namespace().Lookup("Name"); fmt.Sprint(v) != "k" {
		t.Fatalf("Name = %v", v)
	}
	if _, err := c.DecodeUnit([]byte{0xc1}, "junk.gobc"); err == nil {
		t.Fatalf("junk should not decode")
	}
}

type countingImporter struct {
	mapImporter
	calls int
}

func (c *countingImporter) Import(ctx context.Context, name string) (*module.Module, error) {
	c.calls++
	return c.mapImporter.Import(ctx, name)
}

func TestExecLazyImportBindsProxyUntilUsed(t *testing.T) {
	src := `package user

import "modimport/rt"

func Init() error {
	if err := rt.LazyImport("dep"); err != nil {
		return err
	}
	return rt.LazyImportAs("dep", "v", "value")
}
`
	dep := module.New(&module.Spec{Name: "dep"})
	dep.Namespace().Set("value", "from dep")
	dep.SetState(module.StateReady)
	imp := &countingImporter{mapImporter: mapImporter{"dep": dep}}

	var seen []string
	filter := func(importer, imported string, _ []string) bool {
		seen = append(seen, importer+"->"+imported)
		return false
	}
	u, err := New().Compile([]byte(src), "user.go")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	env := newEnv("user", imp)
	env.Binder = lazy.NewBinder(imp, lazy.WithPrivateFilter(filter))
	if err := u.Exec(env); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if imp.calls != 0 {
		t.Fatalf("lazy statements imported %d times", imp.calls)
	}
	if len(seen) != 2 || seen[0] != "user->dep" {
		t.Fatalf("filter saw %v", seen)
	}
	raw, _ := env.Namespace().Lookup("dep")
	if _, ok := raw.(*lazy.Proxy); !ok {
		t.Fatalf("dep should be a proxy, got %T", raw)
	}

	v, _, err := env.Namespace().Load(context.Background(), "v")
	if err != nil || v != "from dep" {
		t.Fatalf("v = %v, %v", v, err)
	}
	if imp.calls != 1 {
		t.Fatalf("using v should import once, got %d", imp.calls)
	}
}
