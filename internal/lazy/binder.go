// Package lazy defers imports until first use. Binder.Bind installs a Proxy
// in the importing namespace instead of loading the target; the first use of
// the proxy runs the ordinary import and rebinds the name to the real value.
package lazy

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/kingrea/modimport/internal/module"
)

// Filter decides per import statement whether to load eagerly. importer is
// the importing module's name, imported the target, fromList the names of a
// from-import (nil otherwise). Returning true means eager.
type Filter func(importer, imported string, fromList []string) bool

// Eager is the import pipeline proxies run when they materialize.
type Eager interface {
	Import(ctx context.Context, name string) (*module.Module, error)
}

// Statement is one import statement.
//
//	import Target              binds TopName(Target) to the top package
//	import Target as As        binds As to Target
//	from Target import F...    binds each F
//	from Target import F as As binds As (single name only)
type Statement struct {
	Importer string
	Target   string
	FromList []string
	As       string
}

type filterSlot struct {
	p atomic.Pointer[Filter]
}

func (s *filterSlot) set(f Filter) {
	if f == nil {
		s.p.Store(nil)
		return
	}
	s.p.Store(&f)
}

func (s *filterSlot) get() Filter {
	if f := s.p.Load(); f != nil {
		return *f
	}
	return nil
}

var processFilter filterSlot

// SetFilter installs the process-wide filter used by binders without a
// private slot.
func SetFilter(f Filter) { processFilter.set(f) }

// CurrentFilter returns the process-wide filter, or nil.
func CurrentFilter() Filter { return processFilter.get() }

// ClearFilter removes the process-wide filter; every import becomes lazy.
func ClearFilter() { processFilter.set(nil) }

// Binder binds import statements into namespaces.
type Binder struct {
	eager Eager
	slot  *filterSlot
}

// BinderOption customizes a Binder.
type BinderOption func(*Binder)

// WithPrivateFilter gives the binder its own filter slot, starting with f,
// instead of the process-wide one.
func WithPrivateFilter(f Filter) BinderOption {
	return func(b *Binder) {
		b.slot = &filterSlot{}
		b.slot.set(f)
	}
}

// NewBinder returns a binder that materializes through eager.
func NewBinder(eager Eager, opts ...BinderOption) *Binder {
	b := &Binder{eager: eager, slot: &processFilter}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// SetFilter replaces the binder's filter.
func (b *Binder) SetFilter(f Filter) { b.slot.set(f) }

// Filter returns the binder's filter, or nil.
func (b *Binder) Filter() Filter { return b.slot.get() }

// ClearFilter removes the binder's filter.
func (b *Binder) ClearFilter() { b.slot.set(nil) }

// Bind executes st against ns. Without a filter, or when the filter says
// false, proxies are bound and nothing is imported. Otherwise the import runs
// now and the real values are bound.
func (b *Binder) Bind(ctx context.Context, ns *module.Namespace, st Statement) error {
	if err := module.ValidateName(st.Target); err != nil {
		return fmt.Errorf("lazy: %w", err)
	}
	if st.As != "" && len(st.FromList) > 1 {
		return fmt.Errorf("lazy: %s: alias %q needs a single from-name", st.Target, st.As)
	}
	eager := false
	if f := b.Filter(); f != nil {
		eager = f(st.Importer, st.Target, st.FromList)
	}

	var proxies []*Proxy
	if len(st.FromList) == 0 {
		slot := st.As
		if slot == "" {
			slot = module.TopName(st.Target)
		}
		proxies = append(proxies, b.proxy(ctx, ns, slot, st.Target, "", st.As == ""))
	} else {
		for _, name := range st.FromList {
			slot := name
			if st.As != "" {
				slot = st.As
			}
			proxies = append(proxies, b.proxy(ctx, ns, slot, st.Target, name, false))
		}
	}

	for _, p := range proxies {
		if !eager {
			ns.Set(p.slot, p)
			continue
		}
		v, err := p.resolve(ctx)
		if err != nil {
			return err
		}
		ns.Set(p.slot, v)
	}
	return nil
}

func (b *Binder) proxy(ctx context.Context, ns *module.Namespace, slot, target, attr string, top bool) *Proxy {
	return &Proxy{
		eager:  b.eager,
		site:   ns,
		slot:   slot,
		target: target,
		attr:   attr,
		top:    top,
		owner:  module.OwnerFrom(ctx),
	}
}
