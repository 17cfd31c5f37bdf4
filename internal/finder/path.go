package finder

import (
	"io"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/kingrea/modimport/internal/fsys"
	"github.com/kingrea/modimport/internal/module"
)

// PathFinder searches a list of directories, keeping one FileFinder per
// directory in its path importer cache. Entries that are not directories are
// cached as a nil "not a directory" sentinel until InvalidateCaches.
type PathFinder struct {
	fs     fsys.FS
	opts   []FileOption
	logger *log.Logger

	mu    sync.Mutex
	cache map[string]*FileFinder
}

// NewPathFinder returns a PathFinder over fs. opts apply to every FileFinder
// it creates.
func NewPathFinder(fs fsys.FS, opts ...FileOption) *PathFinder {
	p := &PathFinder{
		fs:     fs,
		opts:   opts,
		logger: log.New(io.Discard),
		cache:  map[string]*FileFinder{},
	}
	base := &FileFinder{logger: p.logger}
	for _, opt := range opts {
		if opt != nil {
			opt(base)
		}
	}
	p.logger = base.logger
	return p
}

// FindSpec returns the first spec any directory of path yields for name.
func (p *PathFinder) FindSpec(name string, path []string) *module.Spec {
	for _, entry := range path {
		ff := p.finderFor(entry)
		if ff == nil {
			continue
		}
		if spec := ff.FindSpec(name); spec != nil {
			return spec
		}
	}
	return nil
}

// finderFor returns the cached FileFinder for entry, creating it on first
// use. The first inserted finder wins when two goroutines race.
func (p *PathFinder) finderFor(entry string) *FileFinder {
	if entry == "" {
		entry = "."
	}
	p.mu.Lock()
	ff, ok := p.cache[entry]
	p.mu.Unlock()
	if ok {
		return ff
	}

	var created *FileFinder
	if info, err := p.fs.Stat(entry); err == nil && info.IsDir {
		created = NewFileFinder(entry, p.fs, p.opts...)
	} else {
		p.logger.Debug("path entry is not a directory", "entry", entry)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.cache[entry]; ok {
		return existing
	}
	p.cache[entry] = created
	return created
}

// CachedDirs returns the cached entries and whether each has a finder.
func (p *PathFinder) CachedDirs() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]bool, len(p.cache))
	for dir, ff := range p.cache {
		out[dir] = ff != nil
	}
	return out
}

// CachedDirNames returns the cached entries, sorted.
func (p *PathFinder) CachedDirNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.cache))
	for dir := range p.cache {
		names = append(names, dir)
	}
	sort.Strings(names)
	return names
}

// Finder returns the cached FileFinder for dir, if any.
func (p *PathFinder) Finder(dir string) (*FileFinder, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ff, ok := p.cache[dir]
	return ff, ok && ff != nil
}

// InvalidateCaches drops the not-a-directory sentinels and every finder's
// cached listing. Finders themselves stay cached.
func (p *PathFinder) InvalidateCaches() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for dir, ff := range p.cache {
		if ff == nil {
			delete(p.cache, dir)
			continue
		}
		ff.Invalidate()
	}
}

// Forget removes dir from the path importer cache.
func (p *PathFinder) Forget(dir string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, dir)
}
