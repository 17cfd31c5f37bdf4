package lazy

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kingrea/modimport/internal/module"
)

// Proxy stands in for a lazily imported module or attribute. Every method
// except Introspect and Describe materializes it first; after a successful
// materialization the binding site holds the real value and the proxy only
// forwards.
type Proxy struct {
	eager  Eager
	site   *module.Namespace
	slot   string
	target string
	attr   string
	top    bool
	owner  module.Owner // owner of the Bind call, zero at top level

	mu    sync.Mutex    // serializes first uses when eager is not a coordinator
	busy  atomic.Uint64 // owner holding mu
	memo  sync.Mutex    // guards the store of value
	done  atomic.Bool
	value module.Value
}

// coordinator is implemented by import pipelines that expose their locking.
// A proxy over a coordinator holds the target's import lock for the whole
// materialize-and-rebind sequence, so waiting on a proxy takes part in
// deadlock detection and the owner already importing the target passes
// straight through.
type coordinator interface {
	LockImport(ctx context.Context, name string) (release func(), err error)
	OwnerActive(owner module.Owner) bool
}

// Info is the non-materializing view of a proxy.
type Info struct {
	Slot         string
	Target       string
	Attr         string
	Materialized bool
}

// Introspect reports what the proxy stands for without importing anything.
// It does not wait for a materialization in progress.
func (p *Proxy) Introspect() Info {
	return Info{Slot: p.slot, Target: p.target, Attr: p.attr, Materialized: p.done.Load()}
}

// Describe renders the proxy without importing anything.
func (p *Proxy) Describe() string {
	if p.attr != "" {
		return fmt.Sprintf("<lazy %s from %s>", p.attr, p.target)
	}
	return fmt.Sprintf("<lazy module %s>", p.target)
}

// Materialize runs the import once and rebinds the binding site. A failed
// materialization is not memoized; the next use retries. The first
// successful result wins.
func (p *Proxy) Materialize(ctx context.Context) (module.Value, error) {
	if p.done.Load() {
		return p.value, nil
	}
	ctx, owner := module.EnsureOwner(p.withOwner(ctx))
	if c, ok := p.eager.(coordinator); ok {
		release, err := c.LockImport(ctx, p.target)
		switch {
		case err == nil:
			defer release()
		case !errors.Is(err, module.ErrDeadlock):
			return nil, err
		}
		// On ErrDeadlock the import below returns the partial module.
		return p.finish(ctx)
	}
	if module.Owner(p.busy.Load()) == owner {
		// Re-entered from our own materialization: the import returns the
		// partially initialized target.
		return p.finish(ctx)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy.Store(uint64(owner))
	defer p.busy.Store(0)
	return p.finish(ctx)
}

// withOwner gives ctx the owner that bound the proxy when ctx carries none
// and that owner is still inside an import. Uses without a context (String)
// made from a running initializer then continue its import chain instead of
// queuing behind it.
func (p *Proxy) withOwner(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.owner == 0 || module.OwnerFrom(ctx) != 0 {
		return ctx
	}
	if c, ok := p.eager.(coordinator); ok && c.OwnerActive(p.owner) {
		return module.WithOwner(ctx, p.owner)
	}
	return ctx
}

func (p *Proxy) finish(ctx context.Context) (module.Value, error) {
	if p.done.Load() {
		return p.value, nil
	}
	v, err := p.resolve(ctx)
	if err != nil {
		return nil, err
	}
	p.memo.Lock()
	defer p.memo.Unlock()
	if p.done.Load() {
		return p.value, nil
	}
	p.value = v
	p.done.Store(true)
	p.site.CompareAndSwap(p.slot, p, v)
	return v, nil
}

func (p *Proxy) resolve(ctx context.Context) (module.Value, error) {
	m, err := p.eager.Import(ctx, p.target)
	if err != nil {
		return nil, err
	}
	if p.attr == "" {
		if p.top && module.TopName(p.target) != p.target {
			return p.eager.Import(ctx, module.TopName(p.target))
		}
		return m, nil
	}
	v, ok, err := m.Namespace().Load(ctx, p.attr)
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}
	sub, err := p.eager.Import(ctx, p.target+"."+p.attr)
	if err != nil {
		return nil, fmt.Errorf("lazy: cannot import name %q from %s: %w", p.attr, p.target, err)
	}
	return sub, nil
}

// Attr materializes the proxy and returns attribute name of the result.
func (p *Proxy) Attr(ctx context.Context, name string) (module.Value, error) {
	v, err := p.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	return attrOf(ctx, v, name)
}

func attrOf(ctx context.Context, v module.Value, name string) (module.Value, error) {
	switch t := v.(type) {
	case *module.Module:
		got, ok, err := t.Namespace().Load(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("lazy: module %s has no attribute %s", t.Name(), name)
		}
		return got, nil
	case map[string]any:
		got, ok := t[name]
		if !ok {
			return nil, fmt.Errorf("lazy: no attribute %s", name)
		}
		return got, nil
	default:
		return nil, fmt.Errorf("lazy: %T has no attributes", v)
	}
}

// Call materializes the proxy and calls the result. Proxy implements
// module.Callable, so module.Call on a bound proxy lands here.
func (p *Proxy) Call(ctx context.Context, args ...module.Value) (module.Value, error) {
	v, err := p.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	return module.Call(ctx, v, args...)
}

// Keys materializes the proxy and lists the result's names: a module's
// bindings in order, or a map's keys sorted.
func (p *Proxy) Keys(ctx context.Context) ([]string, error) {
	v, err := p.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case *module.Module:
		return t.Namespace().Keys(), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys, nil
	default:
		return nil, fmt.Errorf("lazy: %T is not iterable", v)
	}
}

// Equal materializes the proxy (and other, when it is a proxy too) and
// compares the results.
func (p *Proxy) Equal(ctx context.Context, other module.Value) (bool, error) {
	v, err := p.Materialize(ctx)
	if err != nil {
		return false, err
	}
	if op, ok := other.(*Proxy); ok {
		if other, err = op.Materialize(ctx); err != nil {
			return false, err
		}
	}
	return same(v, other), nil
}

func same(a, b module.Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// String materializes the proxy and formats the result. A failed import
// renders as an error marker. Called from a running initializer it uses the
// owner that bound the proxy.
func (p *Proxy) String() string {
	v, err := p.Materialize(context.Background())
	if err != nil {
		return fmt.Sprintf("<lazy %s: %v>", p.target, err)
	}
	return fmt.Sprint(v)
}
