package module

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModuleNotFound is returned when no finder in the chain produced a spec.
	ErrModuleNotFound = errors.New("module not found")
	// ErrParentPackageMissing is returned for a dotted name whose parent is
	// not a ready package.
	ErrParentPackageMissing = errors.New("no parent package")
	// ErrInitialization marks failures raised while a module's unit executed.
	ErrInitialization = errors.New("module initialization failed")
	// ErrInvalidName is returned for names that are not dotted identifiers.
	ErrInvalidName = errors.New("invalid module name")
	// ErrDeadlock is returned by AcquireImportLock when waiting would close a
	// cycle of import owners waiting on each other.
	ErrDeadlock = errors.New("import lock deadlock")
)

// NotFoundError reports a name no finder could resolve.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("importer: no module named %q", e.Name)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return ErrModuleNotFound }

// ParentPackageMissingError reports a submodule import whose parent is absent,
// not a package, or not ready.
type ParentPackageMissingError struct {
	Name   string
	Parent string
	Reason string
	Err    error
}

func (e *ParentPackageMissingError) Error() string {
	msg := fmt.Sprintf("importer: %q: no parent package %q", e.Name, e.Parent)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParentPackageMissingError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParentPackageMissing}
	}
	return []error{ErrParentPackageMissing, e.Err}
}

// InitializationError wraps a failure raised while building or executing a
// module's unit. The partial module has already been evicted when callers
// see this error.
type InitializationError struct {
	Name   string
	Origin string
	Err    error
}

func (e *InitializationError) Error() string {
	if e.Origin != "" {
		return fmt.Sprintf("loader: initialize %s (%s): %v", e.Name, e.Origin, e.Err)
	}
	return fmt.Sprintf("loader: initialize %s: %v", e.Name, e.Err)
}

func (e *InitializationError) Unwrap() []error {
	return []error{ErrInitialization, e.Err}
}
