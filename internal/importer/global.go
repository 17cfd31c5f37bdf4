package importer

import (
	"sync"

	"github.com/kingrea/modimport/internal/compiler"
	"github.com/kingrea/modimport/internal/config"
	"github.com/kingrea/modimport/internal/module"
)

var (
	globalImporter *Importer
	globalOnce     sync.Once
)

// Global returns the process-wide importer. It publishes into module.Global(),
// compiles Go source with yaegi and searches MODIMPORT_PATH followed by the
// working directory.
func Global() *Importer {
	globalOnce.Do(func() {
		globalImporter = New(
			WithRegistry(module.Global()),
			WithCompiler(compiler.New()),
			WithSearchPath(append(config.EnvSearchPath(), ".")...),
		)
	})
	return globalImporter
}

// ResetGlobal drops the process-wide importer. Tests only.
func ResetGlobal() {
	globalOnce = sync.Once{}
	globalImporter = nil
}
