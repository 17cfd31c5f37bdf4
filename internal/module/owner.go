package module

import (
	"context"
	"sync/atomic"
)

// Owner identifies one logical importer (a chain of nested imports running
// on behalf of the same caller). Zero means "no owner".
type Owner uint64

type ownerKey struct{}

var lastOwner atomic.Uint64

// NewOwner allocates a fresh owner token.
func NewOwner() Owner {
	return Owner(lastOwner.Add(1))
}

// WithOwner returns ctx carrying owner.
func WithOwner(ctx context.Context, owner Owner) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the owner carried by ctx, or zero.
func OwnerFrom(ctx context.Context) Owner {
	if ctx == nil {
		return 0
	}
	if o, ok := ctx.Value(ownerKey{}).(Owner); ok {
		return o
	}
	return 0
}

// EnsureOwner returns ctx and its owner, attaching a new owner when ctx has
// none. Top-level import calls start a new owner; nested calls made with the
// context handed to a running unit keep the existing one.
func EnsureOwner(ctx context.Context) (context.Context, Owner) {
	if ctx == nil {
		ctx = context.Background()
	}
	if o := OwnerFrom(ctx); o != 0 {
		return ctx, o
	}
	o := NewOwner()
	return WithOwner(ctx, o), o
}
