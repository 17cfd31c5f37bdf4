package builtins

import (
	"strings"

	"github.com/kingrea/modimport/internal/loader"
)

func stringsModule() loader.InitFunc {
	return func(env *loader.Env) error {
		env.Set("upper", strings.ToUpper)
		env.Set("lower", strings.ToLower)
		env.Set("trim", strings.TrimSpace)
		env.Set("split", func(s, sep string) []string { return strings.Split(s, sep) })
		env.Set("join", func(sep string, parts ...string) string { return strings.Join(parts, sep) })
		return nil
	}
}
