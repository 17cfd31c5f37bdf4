// Package finder locates modules on disk. A FileFinder answers lookups for
// one directory from a cached listing; a PathFinder walks a search path and
// keeps one FileFinder per directory.
package finder

import (
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kingrea/modimport/internal/fsys"
	"github.com/kingrea/modimport/internal/module"
)

// CacheConfig controls where source specs place their compiled-unit cache.
// A relative Dir is resolved next to the source file; an absolute Dir holds
// one flat file per fully qualified module name.
type CacheConfig struct {
	Enabled bool
	Dir     string
	Suffix  string
}

// DefaultCache returns the stock cache layout: a __cache__ directory beside
// each source file.
func DefaultCache() CacheConfig {
	return CacheConfig{Enabled: true, Dir: "__cache__", Suffix: ".gobc"}
}

// DefaultCacheDisabled is DefaultCache turned off.
func DefaultCacheDisabled() CacheConfig {
	c := DefaultCache()
	c.Enabled = false
	return c
}

type dirState struct {
	mtime   time.Time
	entries map[string]struct{}

	// packages memoizes marker lookups per subdirectory for this listing:
	// tail -> packageMarker. It is dropped with the listing.
	packages sync.Map
}

// packageMarker is the outcome of looking for a marker in one subdirectory.
type packageMarker struct {
	marker string
	kind   module.LoaderKind
	found  bool
}

// FileFinder resolves modules inside one directory.
type FileFinder struct {
	dir      string
	fs       fsys.FS
	groups   []SuffixGroup
	marker   string
	cache    CacheConfig
	logger   *log.Logger
	state    atomic.Pointer[dirState]
	listings atomic.Int64
}

// FileOption customizes a FileFinder.
type FileOption func(*FileFinder)

// WithSuffixes overrides the suffix table.
func WithSuffixes(t SuffixTable) FileOption {
	return func(f *FileFinder) { f.groups = t.Groups() }
}

// WithMarker overrides the package marker base name.
func WithMarker(marker string) FileOption {
	return func(f *FileFinder) {
		if marker != "" {
			f.marker = marker
		}
	}
}

// WithCache sets the compiled-unit cache layout for source specs.
func WithCache(c CacheConfig) FileOption {
	return func(f *FileFinder) { f.cache = c }
}

// WithLogger sets the debug logger.
func WithLogger(logger *log.Logger) FileOption {
	return func(f *FileFinder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFileFinder returns a finder for dir.
func NewFileFinder(dir string, fs fsys.FS, opts ...FileOption) *FileFinder {
	f := &FileFinder{
		dir:    dir,
		fs:     fs,
		groups: DefaultSuffixes().Groups(),
		marker: DefaultMarker,
		cache:  DefaultCacheDisabled(),
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Dir returns the directory the finder serves.
func (f *FileFinder) Dir() string { return f.dir }

// Listings returns how many times the directory has been listed.
func (f *FileFinder) Listings() int64 { return f.listings.Load() }

// Invalidate drops the cached listing.
func (f *FileFinder) Invalidate() { f.state.Store(nil) }

// FindSpec returns a spec for fullname if its last component names a package
// or module file in the directory, or nil. Filesystem errors (including the
// directory vanishing mid-lookup) yield nil.
func (f *FileFinder) FindSpec(fullname string) *module.Spec {
	state, ok := f.refresh()
	if !ok {
		return nil
	}
	entries := state.entries
	tail := module.TailName(fullname)

	if _, present := entries[tail]; present {
		if pkg := f.lookupPackage(state, tail); pkg.found {
			return f.spec(fullname, pkg.marker, pkg.kind, []string{filepath.Join(f.dir, tail)})
		}
	}
	for _, group := range f.groups {
		for _, suffix := range group.Suffixes {
			if _, present := entries[tail+suffix]; present {
				return f.spec(fullname, filepath.Join(f.dir, tail+suffix), group.Kind, nil)
			}
		}
	}
	return nil
}

// lookupPackage looks for a package marker in the subdirectory tail. The
// result is kept with the listing, so a marker added to an existing
// subdirectory is seen after the parent changes or caches are invalidated.
func (f *FileFinder) lookupPackage(state *dirState, tail string) packageMarker {
	if cached, ok := state.packages.Load(tail); ok {
		return cached.(packageMarker)
	}
	pkgDir := filepath.Join(f.dir, tail)
	pkg := packageMarker{}
	for _, group := range f.groups {
		for _, suffix := range group.Suffixes {
			marker := filepath.Join(pkgDir, f.marker+suffix)
			info, err := f.fs.Stat(marker)
			if err != nil || info.IsDir {
				continue
			}
			pkg = packageMarker{marker: marker, kind: group.Kind, found: true}
			break
		}
		if pkg.found {
			break
		}
	}
	state.packages.Store(tail, pkg)
	return pkg
}

// refresh stats the directory and relists it only when its mtime moved.
func (f *FileFinder) refresh() (*dirState, bool) {
	info, err := f.fs.Stat(f.dir)
	if err != nil || !info.IsDir {
		f.state.Store(nil)
		return nil, false
	}
	if cur := f.state.Load(); cur != nil && cur.mtime.Equal(info.ModTime) {
		return cur, true
	}
	names, err := f.fs.ReadDir(f.dir)
	if err != nil {
		f.state.Store(nil)
		return nil, false
	}
	f.listings.Add(1)
	f.logger.Debug("relisted directory", "dir", f.dir, "entries", len(names))
	entries := make(map[string]struct{}, len(names))
	for _, name := range names {
		entries[name] = struct{}{}
	}
	state := &dirState{mtime: info.ModTime, entries: entries}
	f.state.Store(state)
	return state, true
}

func (f *FileFinder) spec(name, origin string, kind module.LoaderKind, locations []string) *module.Spec {
	s := &module.Spec{
		Name:                     name,
		Origin:                   origin,
		Kind:                     kind,
		SubmoduleSearchLocations: locations,
	}
	if kind == module.KindSource && f.cache.Enabled {
		s.Cached = true
		s.CachePath = f.cachePath(name, origin)
	}
	return s
}

func (f *FileFinder) cachePath(name, origin string) string {
	suffix := f.cache.Suffix
	if suffix == "" {
		suffix = ".gobc"
	}
	dir := f.cache.Dir
	if dir == "" {
		dir = "__cache__"
	}
	if filepath.IsAbs(dir) {
		return filepath.Join(dir, name+suffix)
	}
	base := filepath.Base(origin)
	base = base[:len(base)-len(filepath.Ext(base))]
	return filepath.Join(filepath.Dir(origin), dir, base+suffix)
}
