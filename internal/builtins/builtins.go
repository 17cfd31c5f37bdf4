// Package builtins holds the modules compiled into the binary.
package builtins

import (
	"github.com/kingrea/modimport/internal/loader"
	"github.com/kingrea/modimport/internal/module"
)

// Version is reported by sys.version.
const Version = "0.1.0"

// Host is the importer surface the sys module exposes.
type Host interface {
	SearchPath() []string
	AppendPath(dirs ...string)
	Registry() *module.Registry
	InvalidateCaches()
}

// RegisterBuiltins installs every builtin module into table. host backs the
// sys module and may be wired after registration, before the first import.
func RegisterBuiltins(table *loader.BuiltinTable, host Host) {
	if table == nil {
		return
	}
	table.Register("sys", sysModule(host))
	table.Register("strings", stringsModule())
}
