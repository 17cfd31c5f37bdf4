package importer

import (
	"time"

	"github.com/kingrea/modimport/internal/module"
)

// EventKind classifies import events.
type EventKind int

const (
	// EventStart fires when a module is about to be resolved and loaded.
	EventStart EventKind = iota
	// EventReady fires after a module finished initializing.
	EventReady
	// EventFailed fires when resolution or initialization failed.
	EventFailed
	// EventPartial fires when a circular import receives a partially
	// initialized module.
	EventPartial
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventReady:
		return "ready"
	case EventFailed:
		return "failed"
	case EventPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// Event describes one step of an import.
type Event struct {
	Kind     EventKind
	Name     string
	Origin   string
	Loader   module.LoaderKind
	Owner    module.Owner
	Err      error
	Duration time.Duration
}

// Observer receives import events. Observe runs on the importing goroutine
// and must not import.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }
