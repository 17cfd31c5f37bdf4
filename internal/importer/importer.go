// Package importer ties finders, loaders and the registry together. Import is
// the single entry point: registry fast path, per-name lock, parent package,
// finder chain, loader, registry.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sahilm/fuzzy"

	"github.com/kingrea/modimport/internal/finder"
	"github.com/kingrea/modimport/internal/fsys"
	"github.com/kingrea/modimport/internal/loader"
	"github.com/kingrea/modimport/internal/module"
)

// globalLockName is not a valid module name, so it never collides with a
// per-name lock.
const globalLockName = "<global import lock>"

const maxSuggestions = 3

// Importer imports modules into a registry.
type Importer struct {
	reg        *module.Registry
	loader     *loader.Loader
	paths      *finder.PathFinder
	logger     *log.Logger
	observers  []Observer
	globalLock bool

	mu         sync.RWMutex
	searchPath []string
	metaPath   []MetaFinder
}

type settings struct {
	reg        *module.Registry
	fs         fsys.FS
	compiler   loader.Compiler
	codec      loader.Codec
	builtins   *loader.BuiltinTable
	frozen     *loader.FrozenTable
	opener     loader.ExtensionOpener
	searchPath []string
	suffixes   *finder.SuffixTable
	marker     string
	cache      finder.CacheConfig
	logger     *log.Logger
	observers  []Observer
	globalLock bool
}

// Option customizes an Importer.
type Option func(*settings)

// WithRegistry sets the registry. Defaults to a fresh one.
func WithRegistry(reg *module.Registry) Option { return func(s *settings) { s.reg = reg } }

// WithFS sets the filesystem. Defaults to the OS.
func WithFS(fs fsys.FS) Option { return func(s *settings) { s.fs = fs } }

// WithCompiler sets the source compiler.
func WithCompiler(c loader.Compiler) Option { return func(s *settings) { s.compiler = c } }

// WithCodec sets the unit codec.
func WithCodec(c loader.Codec) Option { return func(s *settings) { s.codec = c } }

// WithBuiltins sets the builtin table.
func WithBuiltins(t *loader.BuiltinTable) Option { return func(s *settings) { s.builtins = t } }

// WithFrozen sets the frozen table.
func WithFrozen(t *loader.FrozenTable) Option { return func(s *settings) { s.frozen = t } }

// WithExtensionOpener sets how native extensions are opened.
func WithExtensionOpener(o loader.ExtensionOpener) Option { return func(s *settings) { s.opener = o } }

// WithSearchPath sets the top-level search path.
func WithSearchPath(dirs ...string) Option {
	return func(s *settings) { s.searchPath = append([]string(nil), dirs...) }
}

// WithSuffixes overrides the file suffix table.
func WithSuffixes(t finder.SuffixTable) Option { return func(s *settings) { s.suffixes = &t } }

// WithMarker overrides the package marker base name.
func WithMarker(marker string) Option { return func(s *settings) { s.marker = marker } }

// WithBytecodeCache sets the compiled-unit cache layout for source modules.
func WithBytecodeCache(c finder.CacheConfig) Option { return func(s *settings) { s.cache = c } }

// WithLogger sets the debug logger shared by every component.
func WithLogger(logger *log.Logger) Option { return func(s *settings) { s.logger = logger } }

// WithObserver adds an import event observer.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithGlobalLock replaces per-name import locks with one coarse re-entrant
// lock. Imports never run in parallel in this mode.
func WithGlobalLock(on bool) Option { return func(s *settings) { s.globalLock = on } }

// New builds an Importer with the default finder chain: builtins, frozen
// modules, then the search path.
func New(opts ...Option) *Importer {
	s := settings{cache: finder.DefaultCacheDisabled()}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.reg == nil {
		s.reg = module.NewRegistry()
	}
	if s.fs == nil {
		s.fs = fsys.OS()
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}

	ld := loader.New(
		loader.WithFS(s.fs),
		loader.WithCompiler(s.compiler),
		loader.WithCodec(s.codec),
		loader.WithBuiltins(s.builtins),
		loader.WithFrozen(s.frozen),
		loader.WithExtensionOpener(s.opener),
		loader.WithLogger(s.logger),
	)
	fileOpts := []finder.FileOption{
		finder.WithMarker(s.marker),
		finder.WithCache(s.cache),
		finder.WithLogger(s.logger),
	}
	if s.suffixes != nil {
		fileOpts = append(fileOpts, finder.WithSuffixes(*s.suffixes))
	}
	paths := finder.NewPathFinder(s.fs, fileOpts...)

	imp := &Importer{
		reg:        s.reg,
		loader:     ld,
		paths:      paths,
		logger:     s.logger,
		observers:  s.observers,
		globalLock: s.globalLock,
		searchPath: s.searchPath,
	}
	imp.metaPath = []MetaFinder{
		BuiltinFinder{Table: ld.Builtins()},
		FrozenFinder{Table: ld.Frozen()},
		PathEntryFinder{Paths: paths},
	}
	return imp
}

// Registry returns the registry the importer publishes into.
func (imp *Importer) Registry() *module.Registry { return imp.reg }

// Loader returns the loader.
func (imp *Importer) Loader() *loader.Loader { return imp.loader }

// PathFinder returns the path importer cache.
func (imp *Importer) PathFinder() *finder.PathFinder { return imp.paths }

// SearchPath returns a copy of the top-level search path.
func (imp *Importer) SearchPath() []string {
	imp.mu.RLock()
	defer imp.mu.RUnlock()
	return append([]string(nil), imp.searchPath...)
}

// SetSearchPath replaces the top-level search path.
func (imp *Importer) SetSearchPath(dirs []string) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	imp.searchPath = append([]string(nil), dirs...)
}

// AppendPath adds dirs to the end of the search path.
func (imp *Importer) AppendPath(dirs ...string) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	imp.searchPath = append(imp.searchPath, dirs...)
}

// MetaPath returns a copy of the finder chain.
func (imp *Importer) MetaPath() []MetaFinder {
	imp.mu.RLock()
	defer imp.mu.RUnlock()
	return append([]MetaFinder(nil), imp.metaPath...)
}

// SetMetaPath replaces the finder chain.
func (imp *Importer) SetMetaPath(finders []MetaFinder) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	imp.metaPath = append([]MetaFinder(nil), finders...)
}

// InvalidateCaches drops cached directory listings and not-a-directory
// entries so the next lookup sees the filesystem as it is now.
func (imp *Importer) InvalidateCaches() {
	imp.paths.InvalidateCaches()
	imp.logger.Debug("invalidated finder caches")
}

// Import returns the module called name, loading it if needed. Concurrent
// importers of one name observe one module object. A circular import on the
// same owner (or a cross-owner cycle that would otherwise deadlock) returns
// the partially initialized module.
func (imp *Importer) Import(ctx context.Context, name string) (*module.Module, error) {
	if err := module.ValidateName(name); err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}
	ctx, owner := module.EnsureOwner(ctx)
	if m, ok := imp.cached(name, owner); ok {
		return m, nil
	}

	if parent := module.ParentName(name); parent != "" {
		if _, err := imp.Import(ctx, parent); err != nil {
			if errors.Is(err, module.ErrModuleNotFound) {
				return nil, &module.ParentPackageMissingError{Name: name, Parent: parent, Reason: "not found", Err: err}
			}
			return nil, err
		}
		// The parent's initializer may have imported name already.
		if m, ok := imp.cached(name, owner); ok {
			return m, nil
		}
	}

	lock, err := imp.reg.AcquireImportLock(imp.lockName(name), owner)
	if err != nil {
		if errors.Is(err, module.ErrDeadlock) {
			if m, ok := imp.reg.Get(name); ok && m.Usable() {
				imp.logger.Debug("import cycle across owners, returning partial module", "module", name, "owner", owner)
				imp.emit(Event{Kind: EventPartial, Name: name, Owner: owner, Origin: m.Spec().Origin})
				return m, nil
			}
		}
		return nil, fmt.Errorf("importer: %s: %w", name, err)
	}
	defer lock.Release()

	if m, ok := imp.reg.Get(name); ok && m.Usable() {
		return m, nil
	}
	return imp.load(ctx, name, owner)
}

func (imp *Importer) lockName(name string) string {
	if imp.globalLock {
		return globalLockName
	}
	return name
}

// LockImport takes the lock importers of name serialize on and returns its
// release. The parent package is imported first, as Import does, so a holder
// never waits on a parent. Lazy proxies hold this lock while they
// materialize.
func (imp *Importer) LockImport(ctx context.Context, name string) (func(), error) {
	ctx, owner := module.EnsureOwner(ctx)
	if parent := module.ParentName(name); parent != "" {
		if _, err := imp.Import(ctx, parent); err != nil {
			// Import(name) reports the failure with the right error kind.
			return func() {}, nil
		}
	}
	lock, err := imp.reg.AcquireImportLock(imp.lockName(name), owner)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

// OwnerActive reports whether owner is inside an import.
func (imp *Importer) OwnerActive(owner module.Owner) bool {
	return imp.reg.OwnerActive(owner)
}

// cached is the registry fast path.
func (imp *Importer) cached(name string, owner module.Owner) (*module.Module, bool) {
	m, ok := imp.reg.Get(name)
	if !ok || !m.Usable() {
		return nil, false
	}
	if m.State() != module.StateInitializing {
		return m, true
	}
	switch m.Owner() {
	case owner:
		imp.emit(Event{Kind: EventPartial, Name: name, Owner: owner, Origin: m.Spec().Origin})
		return m, true
	case 0:
		// Injected by hand; nobody will finish it.
		return m, true
	default:
		return nil, false
	}
}

func (imp *Importer) load(ctx context.Context, name string, owner module.Owner) (*module.Module, error) {
	start := time.Now()
	imp.emit(Event{Kind: EventStart, Name: name, Owner: owner})
	spec, err := imp.Resolve(ctx, name)
	if err != nil {
		imp.emit(Event{Kind: EventFailed, Name: name, Owner: owner, Err: err, Duration: time.Since(start)})
		return nil, err
	}
	m, err := imp.loader.CreateAndExec(ctx, imp.reg, spec, imp)
	if err != nil {
		imp.logger.Debug("import failed", "module", name, "origin", spec.Origin, "err", err)
		imp.emit(Event{Kind: EventFailed, Name: name, Origin: spec.Origin, Loader: spec.Kind, Owner: owner, Err: err, Duration: time.Since(start)})
		return nil, err
	}
	if parent := spec.Parent(); parent != "" {
		if pm, ok := imp.reg.Get(parent); ok && pm.Namespace() != nil {
			pm.Namespace().Set(module.TailName(name), m)
		}
	}
	imp.logger.Debug("imported", "module", name, "origin", spec.Origin, "kind", spec.Kind)
	imp.emit(Event{Kind: EventReady, Name: name, Origin: spec.Origin, Loader: spec.Kind, Owner: owner, Duration: time.Since(start)})
	return m, nil
}

// Resolve runs the finder chain for name without loading anything. A dotted
// name needs its parent registered as a package that is ready, or that is
// being initialized by the caller's own owner.
func (imp *Importer) Resolve(ctx context.Context, name string) (*module.Spec, error) {
	if err := module.ValidateName(name); err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}
	_, owner := module.EnsureOwner(ctx)
	path := imp.SearchPath()
	if parent := module.ParentName(name); parent != "" {
		pm, ok := imp.reg.Get(parent)
		if !ok {
			return nil, &module.ParentPackageMissingError{Name: name, Parent: parent, Reason: "not imported"}
		}
		if err := parentUsable(pm, owner); err != nil {
			return nil, &module.ParentPackageMissingError{Name: name, Parent: parent, Reason: err.Error()}
		}
		path = pm.Spec().SubmoduleSearchLocations
	}
	for _, f := range imp.MetaPath() {
		if spec := f.FindSpec(name, path); spec != nil {
			return spec, nil
		}
	}
	return nil, &module.NotFoundError{Name: name, Suggestions: imp.suggest(name)}
}

func parentUsable(pm *module.Module, owner module.Owner) error {
	if !pm.IsPackage() {
		return errors.New("not a package")
	}
	if !pm.Usable() {
		return fmt.Errorf("parent is %s", pm.State())
	}
	if pm.State() == module.StateInitializing && pm.Owner() != owner && pm.Owner() != 0 {
		return errors.New("parent is initializing in another importer")
	}
	return nil
}

// suggest offers close names from the registry and the builtin and frozen
// tables.
func (imp *Importer) suggest(name string) []string {
	seen := map[string]bool{}
	var candidates []string
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] && n != name {
				seen[n] = true
				candidates = append(candidates, n)
			}
		}
	}
	add(imp.reg.Names())
	add(imp.loader.Builtins().Names())
	add(imp.loader.Frozen().Names())
	matches := fuzzy.Find(name, candidates)
	out := make([]string, 0, maxSuggestions)
	for _, match := range matches {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, match.Str)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (imp *Importer) emit(e Event) {
	for _, o := range imp.observers {
		o.Observe(e)
	}
}
