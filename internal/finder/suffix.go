package finder

import (
	"strings"

	"github.com/kingrea/modimport/internal/module"
)

// DefaultMarker is the base name of a package's initializer file.
const DefaultMarker = "__init__"

// SuffixTable lists the file suffixes each file-backed loader kind accepts.
type SuffixTable struct {
	Extension []string
	Source    []string
	Bytecode  []string
}

// DefaultSuffixes returns the stock suffix table.
func DefaultSuffixes() SuffixTable {
	return SuffixTable{
		Extension: []string{".so"},
		Source:    []string{".go"},
		Bytecode:  []string{".gobc"},
	}
}

// SuffixGroup ties suffixes to the loader kind that handles them.
type SuffixGroup struct {
	Kind     module.LoaderKind
	Suffixes []string
}

// Groups returns the suffix groups in lookup precedence order: extension,
// then source, then bytecode. The first match in a directory wins.
func (t SuffixTable) Groups() []SuffixGroup {
	return []SuffixGroup{
		{Kind: module.KindExtension, Suffixes: normalize(t.Extension)},
		{Kind: module.KindSource, Suffixes: normalize(t.Source)},
		{Kind: module.KindBytecode, Suffixes: normalize(t.Bytecode)},
	}
}

func normalize(suffixes []string) []string {
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		out = append(out, s)
	}
	return out
}
