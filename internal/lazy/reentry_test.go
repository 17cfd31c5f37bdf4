package lazy_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/modimport/internal/importer"
	"github.com/kingrea/modimport/internal/importtest"
	"github.com/kingrea/modimport/internal/lazy"
	"github.com/kingrea/modimport/internal/loader"
	"github.com/kingrea/modimport/internal/module"
)

// builtinWorld is an importer over builtin modules whose initializers use
// lazy bindings.
type builtinWorld struct {
	table  *loader.BuiltinTable
	imp    *importer.Importer
	binder *lazy.Binder
}

func newBuiltinWorld(globalLock bool) *builtinWorld {
	w := &builtinWorld{table: loader.NewBuiltinTable()}
	w.imp = importer.New(
		importer.WithFS(importtest.NewFS()),
		importer.WithBuiltins(w.table),
		importer.WithGlobalLock(globalLock),
	)
	w.binder = lazy.NewBinder(w.imp, lazy.WithPrivateFilter(nil))
	return w
}

// bindLazy binds target lazily in env's namespace and returns the proxy.
func (w *builtinWorld) bindLazy(env *loader.Env, target string) (*lazy.Proxy, error) {
	st := lazy.Statement{Importer: env.Module.Name(), Target: target}
	if err := w.binder.Bind(env.Context, env.Namespace(), st); err != nil {
		return nil, err
	}
	raw, _ := env.Namespace().Lookup(module.TopName(target))
	p, ok := raw.(*lazy.Proxy)
	if !ok {
		return nil, fmt.Errorf("%s bound as %T", target, raw)
	}
	return p, nil
}

// importWithin fails the test when the import does not finish in time.
func importWithin(t *testing.T, imp *importer.Importer, name string) *module.Module {
	t.Helper()
	type outcome struct {
		m   *module.Module
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		m, err := imp.Import(context.Background(), name)
		done <- outcome{m, err}
	}()
	select {
	case o := <-done:
		if o.err != nil {
			t.Fatalf("import %s: %v", name, o.err)
		}
		return o.m
	case <-time.After(5 * time.Second):
		t.Fatalf("import %s did not finish", name)
		return nil
	}
}

func forEachLockMode(t *testing.T, run func(t *testing.T, globalLock bool)) {
	for _, mode := range []struct {
		name   string
		global bool
	}{{"per-name", false}, {"global", true}} {
		mode := mode
		t.Run(mode.name, func(t *testing.T) { run(t, mode.global) })
	}
}

func TestProxyUsedInsideTargetsCircularImport(t *testing.T) {
	forEachLockMode(t, func(t *testing.T, globalLock bool) {
		w := newBuiltinWorld(globalLock)
		w.table.Register("a", func(env *loader.Env) error {
			p, err := w.bindLazy(env, "b")
			if err != nil {
				return err
			}
			x, err := p.Attr(env.Context, "x")
			if err != nil {
				return err
			}
			env.Set("bx", x)
			return nil
		})
		w.table.Register("b", func(env *loader.Env) error {
			env.Set("x", 1)
			a, err := env.Import("a")
			if err != nil {
				return err
			}
			// a.b is still the proxy a is materializing right now.
			seen, _, err := a.Namespace().Load(env.Context, "b")
			if err != nil {
				return err
			}
			env.Set("seen", seen)
			return nil
		})

		a := importWithin(t, w.imp, "a")
		b, ok := w.imp.Registry().Get("b")
		if !ok {
			t.Fatalf("b should be registered")
		}
		if v, _ := a.Attr("bx"); v != 1 {
			t.Fatalf("a.bx = %v", v)
		}
		if v, _ := b.Attr("seen"); v != module.Value(b) {
			t.Fatalf("b should see itself through a's proxy, got %v", v)
		}
		if v, _ := a.Namespace().Lookup("b"); v != module.Value(b) {
			t.Fatalf("a.b should be rebound to b, got %T", v)
		}
		if a.State() != module.StateReady || b.State() != module.StateReady {
			t.Fatalf("states = %s, %s", a.State(), b.State())
		}
	})
}

func TestProxyStringInsideInitializer(t *testing.T) {
	forEachLockMode(t, func(t *testing.T, globalLock bool) {
		w := newBuiltinWorld(globalLock)
		w.table.Register("a", func(env *loader.Env) error {
			p, err := w.bindLazy(env, "b")
			if err != nil {
				return err
			}
			env.Set("desc", fmt.Sprint(p))
			return nil
		})
		w.table.Register("b", func(env *loader.Env) error {
			_, err := env.Import("a")
			return err
		})

		a := importWithin(t, w.imp, "a")
		b, _ := w.imp.Registry().Get("b")
		if v, _ := a.Attr("desc"); v != b.String() {
			t.Fatalf("desc = %v, want %s", v, b)
		}
	})
}

func TestLazyCycleReadsPreCycleNames(t *testing.T) {
	forEachLockMode(t, func(t *testing.T, globalLock bool) {
		w := newBuiltinWorld(globalLock)
		w.table.Register("a", func(env *loader.Env) error {
			env.Set("x", "from a")
			p, err := w.bindLazy(env, "b")
			if err != nil {
				return err
			}
			_, err = p.Materialize(env.Context)
			return err
		})
		w.table.Register("b", func(env *loader.Env) error {
			p, err := w.bindLazy(env, "a")
			if err != nil {
				return err
			}
			x, err := p.Attr(env.Context, "x")
			if err != nil {
				return err
			}
			env.Set("ax", x)
			return nil
		})

		importWithin(t, w.imp, "a")
		b, _ := w.imp.Registry().Get("b")
		if v, _ := b.Attr("ax"); v != "from a" {
			t.Fatalf("b.ax = %v", v)
		}
	})
}

func TestConcurrentLazyCycleTerminates(t *testing.T) {
	forEachLockMode(t, func(t *testing.T, globalLock bool) {
		w := newBuiltinWorld(globalLock)
		peer := map[string]string{"a": "b", "b": "a"}
		for name, other := range peer {
			name, other := name, other
			w.table.Register(name, func(env *loader.Env) error {
				env.Set("x", name)
				p, err := w.bindLazy(env, other)
				if err != nil {
					return err
				}
				// Give the other importer time to enter its own cycle.
				time.Sleep(5 * time.Millisecond)
				x, err := p.Attr(env.Context, "x")
				if err != nil {
					return err
				}
				env.Set("peer_x", x)
				return nil
			})
		}

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			name := "a"
			if i%2 == 1 {
				name = "b"
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := w.imp.Import(context.Background(), name); err != nil {
					errs <- err
				}
			}()
		}
		finished := make(chan struct{})
		go func() {
			wg.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-time.After(10 * time.Second):
			t.Fatalf("concurrent lazy cycle did not terminate")
		}
		close(errs)
		for err := range errs {
			t.Fatalf("import: %v", err)
		}
		for name, other := range peer {
			m, ok := w.imp.Registry().Get(name)
			if !ok || m.State() != module.StateReady {
				t.Fatalf("%s not ready", name)
			}
			if v, _ := m.Attr("peer_x"); v != other {
				t.Fatalf("%s.peer_x = %v, want %s", name, v, other)
			}
		}
		if n := w.imp.Registry().LockCount(); n != 0 {
			t.Fatalf("%d import locks left behind", n)
		}
	})
}

// reentrantEager hides the importer's locking so proxies fall back to their
// own serialization.
type reentrantEager struct{ imp *importer.Importer }

func (e reentrantEager) Import(ctx context.Context, name string) (*module.Module, error) {
	return e.imp.Import(ctx, name)
}

func TestProxyReentryWithoutCoordinator(t *testing.T) {
	w := newBuiltinWorld(false)
	w.binder = lazy.NewBinder(reentrantEager{w.imp}, lazy.WithPrivateFilter(nil))
	w.table.Register("a", func(env *loader.Env) error {
		p, err := w.bindLazy(env, "b")
		if err != nil {
			return err
		}
		_, err = p.Materialize(env.Context)
		return err
	})
	w.table.Register("b", func(env *loader.Env) error {
		a, err := env.Import("a")
		if err != nil {
			return err
		}
		_, _, err = a.Namespace().Load(env.Context, "b")
		return err
	})
	importWithin(t, w.imp, "a")
}
