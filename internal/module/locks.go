package module

import (
	"fmt"
	"sync"
)

// importLock serializes importers of one name. It is re-entrant for the
// owner holding it and lives in Registry.locks; every field is guarded by
// Registry.mu, which is also the condition variable's locker.
type importLock struct {
	name  string
	owner Owner
	depth int
	refs  int
	cond  *sync.Cond
}

// ImportLock is a held per-name import lock.
type ImportLock struct {
	reg      *Registry
	lock     *importLock
	owner    Owner
	released bool
}

// AcquireImportLock blocks until owner holds the import lock for name.
// Importers of different names never contend here. If the current holder is
// (transitively) waiting for a lock owner already holds, blocking would
// deadlock; AcquireImportLock then returns ErrDeadlock without the lock and
// the caller is expected to use the partially initialized module instead.
func (r *Registry) AcquireImportLock(name string, owner Owner) (*ImportLock, error) {
	if owner == 0 {
		return nil, fmt.Errorf("module: import lock for %s needs an owner", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[name]
	if !ok {
		l = &importLock{name: name, cond: sync.NewCond(&r.mu)}
		r.locks[name] = l
	}
	l.refs++
	for {
		if l.owner == 0 || l.owner == owner {
			l.owner = owner
			l.depth++
			return &ImportLock{reg: r, lock: l, owner: owner}, nil
		}
		if r.wouldDeadlock(l, owner) {
			l.refs--
			r.dropLocked(l)
			return nil, fmt.Errorf("module: %s held by importer %d: %w", name, l.owner, ErrDeadlock)
		}
		r.waiting[owner] = l
		l.cond.Wait()
		delete(r.waiting, owner)
	}
}

// wouldDeadlock follows the wait-for chain starting at l's holder and reports
// whether it leads back to owner.
func (r *Registry) wouldDeadlock(l *importLock, owner Owner) bool {
	seen := map[*importLock]bool{}
	for cur := l; cur != nil && !seen[cur]; {
		seen[cur] = true
		if cur.owner == owner {
			return true
		}
		next, waiting := r.waiting[cur.owner]
		if !waiting {
			return false
		}
		cur = next
	}
	return false
}

// dropLocked removes l from the table once nobody holds or waits on it.
func (r *Registry) dropLocked(l *importLock) {
	if r.retain || l.refs > 0 || l.owner != 0 {
		return
	}
	if current, ok := r.locks[l.name]; ok && current == l {
		delete(r.locks, l.name)
	}
}

// Release gives the lock up. Extra calls are no-ops.
func (h *ImportLock) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true
	r := h.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	l := h.lock
	l.depth--
	if l.depth <= 0 {
		l.depth = 0
		l.owner = 0
		l.cond.Broadcast()
	}
	l.refs--
	r.dropLocked(l)
}

// Name returns the name the lock guards.
func (h *ImportLock) Name() string { return h.lock.name }

// LockCount returns how many per-name import locks are currently tabled.
func (r *Registry) LockCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// OwnerActive reports whether owner currently holds any import lock, that is
// whether it is somewhere inside an import.
func (r *Registry) OwnerActive(owner Owner) bool {
	if owner == 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.locks {
		if l.owner == owner {
			return true
		}
	}
	return false
}
