package module

import (
	"fmt"
	"strings"
	"unicode"
)

// LoaderKind enumerates the strategies that can turn a Spec into a module.
type LoaderKind int

const (
	KindBuiltin LoaderKind = iota + 1
	KindFrozen
	KindExtension
	KindSource
	KindBytecode
)

func (k LoaderKind) String() string {
	switch k {
	case KindBuiltin:
		return "builtin"
	case KindFrozen:
		return "frozen"
	case KindExtension:
		return "extension"
	case KindSource:
		return "source"
	case KindBytecode:
		return "bytecode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Origin labels used for specs that do not come from a file.
const (
	OriginBuiltin = "built-in"
	OriginFrozen  = "frozen"
)

// Spec describes how to obtain and initialize one module. Finders create a
// fresh Spec per resolution attempt and a loader consumes it once; nothing
// mutates it afterwards.
type Spec struct {
	Name   string
	Origin string
	Kind   LoaderKind

	// SubmoduleSearchLocations is non-nil exactly when the spec describes a
	// package. Frozen packages carry an empty, non-nil slice.
	SubmoduleSearchLocations []string

	// Cached reports whether the loader may read and write a compiled-unit
	// cache at CachePath.
	Cached    bool
	CachePath string
}

// IsPackage reports whether the spec describes a package.
func (s *Spec) IsPackage() bool {
	return s != nil && s.SubmoduleSearchLocations != nil
}

// Parent returns the dotted parent of the spec name, or "" for top-level names.
func (s *Spec) Parent() string {
	if s == nil {
		return ""
	}
	return ParentName(s.Name)
}

// ValidateName checks that name is a non-empty dotted identifier.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	for _, part := range strings.Split(name, ".") {
		if !isIdentifier(part) {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// ParentName returns everything before the last dot, or "".
func ParentName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}

// TailName returns the last dotted component of name.
func TailName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// TopName returns the first dotted component of name.
func TopName(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}
