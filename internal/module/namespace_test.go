package module

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type stubPlaceholder struct {
	value Value
	err   error
	calls int
}

func (s *stubPlaceholder) Materialize(context.Context) (Value, error) {
	s.calls++
	return s.value, s.err
}

func TestNamespaceKeepsInsertionOrder(t *testing.T) {
	ns := NewNamespace()
	ns.Set("zeta", 1)
	ns.Set("alpha", 2)
	ns.Set("mid", 3)
	ns.Set("zeta", 4)
	want := []string{"zeta", "alpha", "mid"}
	if got := ns.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	if v, _ := ns.Lookup("zeta"); v != 4 {
		t.Fatalf("rebind should replace value, got %v", v)
	}
	if !ns.Delete("alpha") {
		t.Fatalf("delete alpha should report true")
	}
	if got := ns.Keys(); !reflect.DeepEqual(got, []string{"zeta", "mid"}) {
		t.Fatalf("keys after delete = %v", got)
	}
}

func TestNamespaceLoadMaterializesButSnapshotDoesNot(t *testing.T) {
	ns := NewNamespace()
	p := &stubPlaceholder{value: "real"}
	ns.Set("lazy", p)

	snap := ns.Snapshot()
	if len(snap) != 1 || snap[0].Value != Value(p) {
		t.Fatalf("snapshot should expose the placeholder itself, got %+v", snap)
	}
	if raw, _ := ns.Lookup("lazy"); raw != Value(p) {
		t.Fatalf("lookup should return the placeholder")
	}
	if p.calls != 0 {
		t.Fatalf("reflection materialized the placeholder %d times", p.calls)
	}

	v, ok, err := ns.Load(context.Background(), "lazy")
	if err != nil || !ok || v != "real" {
		t.Fatalf("load = %v, %v, %v", v, ok, err)
	}
	if p.calls != 1 {
		t.Fatalf("expected one materialization, got %d", p.calls)
	}
}

func TestNamespaceLoadPropagatesPlaceholderError(t *testing.T) {
	ns := NewNamespace()
	boom := errors.New("boom")
	ns.Set("lazy", &stubPlaceholder{err: boom})
	if _, ok, err := ns.Load(context.Background(), "lazy"); !ok || !errors.Is(err, boom) {
		t.Fatalf("expected boom, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := ns.Load(context.Background(), "missing"); ok || err != nil {
		t.Fatalf("missing name should be (false, nil), got %v %v", ok, err)
	}
}

func TestNamespaceCompareAndSwap(t *testing.T) {
	ns := NewNamespace()
	p := &stubPlaceholder{}
	ns.Set("x", p)
	if ns.CompareAndSwap("x", &stubPlaceholder{}, 1) {
		t.Fatalf("swap against a different placeholder must fail")
	}
	if !ns.CompareAndSwap("x", p, 1) {
		t.Fatalf("swap against the bound placeholder must succeed")
	}
	if ns.CompareAndSwap("x", p, 2) {
		t.Fatalf("second swap must fail once rebound")
	}
	if v, _ := ns.Lookup("x"); v != 1 {
		t.Fatalf("x = %v, want 1", v)
	}
}

func TestCallDispatch(t *testing.T) {
	ctx := context.Background()
	f := Func(func(_ context.Context, args ...Value) (Value, error) { return len(args), nil })
	if v, err := Call(ctx, f, 1, 2); err != nil || v != 2 {
		t.Fatalf("Func call = %v, %v", v, err)
	}
	if v, err := Call(ctx, func(a, b int) int { return a + b }, 2, 3); err != nil || v != 5 {
		t.Fatalf("reflect call = %v, %v", v, err)
	}
	boom := errors.New("boom")
	if _, err := Call(ctx, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("trailing error should surface, got %v", err)
	}
	join := func(sep string, parts ...string) string { return strings.Join(parts, sep) }
	if v, err := Call(ctx, join, "-", "a", "b"); err != nil || v != "a-b" {
		t.Fatalf("variadic call = %v, %v", v, err)
	}
	if v, err := Call(ctx, join, ","); err != nil || v != "" {
		t.Fatalf("variadic call without extras = %v, %v", v, err)
	}
	if _, err := Call(ctx, join); err == nil || !strings.Contains(err.Error(), "at least 1") {
		t.Fatalf("variadic call missing a fixed arg should fail, got %v", err)
	}
	if _, err := Call(ctx, 42); !errors.Is(err, ErrNotCallable) {
		t.Fatalf("expected ErrNotCallable, got %v", err)
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"a", "pkg.sub", "_x.y_2"} {
		if err := ValidateName(name); err != nil {
			t.Fatalf("%q should be valid: %v", name, err)
		}
	}
	for _, name := range []string{"", ".a", "a.", "a..b", "1a", "a-b"} {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("%q should be invalid, got %v", name, err)
		}
	}
	if ParentName("a.b.c") != "a.b" || TailName("a.b.c") != "c" || TopName("a.b.c") != "a" {
		t.Fatalf("name helpers disagree")
	}
}
