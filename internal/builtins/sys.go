package builtins

import (
	"errors"

	"github.com/kingrea/modimport/internal/loader"
)

func sysModule(host Host) loader.InitFunc {
	return func(env *loader.Env) error {
		if host == nil {
			return errors.New("builtins: sys needs an importer")
		}
		env.Set("version", Version)
		env.Set("path", func() []string { return host.SearchPath() })
		env.Set("append_path", func(dir string) { host.AppendPath(dir) })
		env.Set("modules", func() []string { return host.Registry().Names() })
		env.Set("invalidate_caches", func() { host.InvalidateCaches() })
		return nil
	}
}
