package module

import "sync"

var (
	globalRegistry *Registry
	globalOnce     sync.Once
)

// Global returns the process-wide registry, creating it on first use.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// ResetGlobal drops the process-wide registry. Tests only; not safe while
// imports are running.
func ResetGlobal() {
	globalOnce = sync.Once{}
	globalRegistry = nil
}
