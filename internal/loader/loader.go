package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/charmbracelet/log"

	"github.com/kingrea/modimport/internal/fsys"
	"github.com/kingrea/modimport/internal/module"
)

// ErrNoCompiler is returned for source and bytecode specs when the Loader has
// no Compiler (or Codec) configured.
var ErrNoCompiler = errors.New("loader: no compiler configured")

// Loader executes specs of every LoaderKind.
type Loader struct {
	fs       fsys.FS
	compiler Compiler
	codec    Codec
	builtins *BuiltinTable
	frozen   *FrozenTable
	opener   ExtensionOpener
	logger   *log.Logger
}

// Option customizes a Loader.
type Option func(*Loader)

// WithFS sets the filesystem used for source, bytecode and cache files.
func WithFS(fs fsys.FS) Option { return func(l *Loader) { l.fs = fs } }

// WithCompiler sets the source compiler. A compiler that also implements
// Codec is used as the codec unless WithCodec overrides it.
func WithCompiler(c Compiler) Option { return func(l *Loader) { l.compiler = c } }

// WithCodec sets the unit codec.
func WithCodec(c Codec) Option { return func(l *Loader) { l.codec = c } }

// WithBuiltins sets the builtin table.
func WithBuiltins(t *BuiltinTable) Option { return func(l *Loader) { l.builtins = t } }

// WithFrozen sets the frozen table.
func WithFrozen(t *FrozenTable) Option { return func(l *Loader) { l.frozen = t } }

// WithExtensionOpener sets how native extensions are opened.
func WithExtensionOpener(o ExtensionOpener) Option { return func(l *Loader) { l.opener = o } }

// WithLogger sets the debug logger.
func WithLogger(logger *log.Logger) Option { return func(l *Loader) { l.logger = logger } }

// New builds a Loader. Defaults: OS filesystem, empty tables, plugin opener.
func New(opts ...Option) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.fs == nil {
		l.fs = fsys.OS()
	}
	if l.codec == nil {
		if c, ok := l.compiler.(Codec); ok {
			l.codec = c
		}
	}
	if l.builtins == nil {
		l.builtins = NewBuiltinTable()
	}
	if l.frozen == nil {
		l.frozen = NewFrozenTable()
	}
	if l.opener == nil {
		l.opener = PluginOpener{}
	}
	if l.logger == nil {
		l.logger = log.New(io.Discard)
	}
	return l
}

// Builtins returns the builtin table.
func (l *Loader) Builtins() *BuiltinTable { return l.builtins }

// Frozen returns the frozen table.
func (l *Loader) Frozen() *FrozenTable { return l.frozen }

// CreateAndExec builds the unit for spec, publishes a fresh module in reg and
// runs the unit with the module namespace as its execution namespace. On
// failure the module is evicted (if reg still holds it), marked failed and an
// *module.InitializationError is returned. ctx must carry the import owner.
func (l *Loader) CreateAndExec(ctx context.Context, reg *module.Registry, spec *module.Spec, imp Importer) (*module.Module, error) {
	unit, err := l.unitFor(spec)
	if err != nil {
		return nil, &module.InitializationError{Name: spec.Name, Origin: spec.Origin, Err: err}
	}
	m := module.New(spec)
	m.BeginInit(module.OwnerFrom(ctx))
	reg.Publish(m)

	env := &Env{Context: ctx, Module: m, Importer: imp}
	if err := run(unit, env); err != nil {
		if reg.Evict(spec.Name, m) {
			l.logger.Debug("evicted failed module", "module", spec.Name)
		}
		m.SetState(module.StateFailed)
		return nil, &module.InitializationError{Name: spec.Name, Origin: spec.Origin, Err: err}
	}
	m.SetState(module.StateReady)
	return m, nil
}

func run(unit Unit, env *Env) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return unit.Exec(env)
}

func (l *Loader) unitFor(spec *module.Spec) (Unit, error) {
	switch spec.Kind {
	case module.KindBuiltin:
		init, ok := l.builtins.Lookup(spec.Name)
		if !ok {
			return nil, fmt.Errorf("loader: no builtin %s", spec.Name)
		}
		return init, nil
	case module.KindFrozen:
		fm, ok := l.frozen.Lookup(spec.Name)
		if !ok {
			return nil, fmt.Errorf("loader: no frozen module %s", spec.Name)
		}
		if fm.Unit != nil {
			return fm.Unit, nil
		}
		if l.codec == nil {
			return nil, ErrNoCompiler
		}
		return l.codec.DecodeUnit(fm.Code, "<frozen "+spec.Name+">")
	case module.KindExtension:
		init, err := l.opener.Open(spec.Origin)
		if err != nil {
			return nil, err
		}
		return init, nil
	case module.KindSource:
		return l.sourceUnit(spec)
	case module.KindBytecode:
		return l.bytecodeUnit(spec)
	default:
		return nil, fmt.Errorf("loader: %s: unsupported loader kind %s", spec.Name, spec.Kind)
	}
}

func (l *Loader) bytecodeUnit(spec *module.Spec) (Unit, error) {
	if l.codec == nil {
		return nil, ErrNoCompiler
	}
	data, err := l.fs.ReadFile(spec.Origin)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", spec.Origin, err)
	}
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	return l.codec.DecodeUnit(env.Unit, spec.Origin)
}

func (l *Loader) sourceUnit(spec *module.Spec) (Unit, error) {
	if l.compiler == nil {
		return nil, ErrNoCompiler
	}
	useCache := spec.Cached && spec.CachePath != "" && l.codec != nil
	var info fsys.FileInfo
	if useCache {
		var err error
		info, err = l.fs.Stat(spec.Origin)
		if err != nil {
			return nil, fmt.Errorf("loader: stat %s: %w", spec.Origin, err)
		}
		if unit, ok := l.readCache(spec, info); ok {
			return unit, nil
		}
	}
	source, err := l.fs.ReadFile(spec.Origin)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", spec.Origin, err)
	}
	unit, err := l.compiler.Compile(source, spec.Origin)
	if err != nil {
		return nil, err
	}
	if useCache {
		l.writeCache(spec, info, unit)
	}
	return unit, nil
}

// readCache returns the cached unit when the cache is fresh: the source is
// not newer than the cache file and matches the mtime recorded inside it.
func (l *Loader) readCache(spec *module.Spec, source fsys.FileInfo) (Unit, bool) {
	cacheInfo, err := l.fs.Stat(spec.CachePath)
	if err != nil {
		l.logger.Debug("cache miss", "module", spec.Name, "path", spec.CachePath)
		return nil, false
	}
	if source.ModTime.After(cacheInfo.ModTime) {
		l.logger.Debug("cache stale", "module", spec.Name, "reason", "source newer than cache")
		return nil, false
	}
	data, err := l.fs.ReadFile(spec.CachePath)
	if err != nil {
		return nil, false
	}
	env, err := DecodeEnvelope(data)
	if err != nil {
		l.logger.Debug("cache unreadable", "module", spec.Name, "err", err)
		return nil, false
	}
	if env.Name != spec.Name || env.SourceMTime != source.ModTime.UnixNano() {
		l.logger.Debug("cache stale", "module", spec.Name, "reason", "recorded mtime differs")
		return nil, false
	}
	unit, err := l.codec.DecodeUnit(env.Unit, spec.Origin)
	if err != nil {
		l.logger.Debug("cache undecodable", "module", spec.Name, "err", err)
		return nil, false
	}
	l.logger.Debug("cache hit", "module", spec.Name)
	return unit, true
}

// writeCache is best effort; a failed write only costs a recompile later.
func (l *Loader) writeCache(spec *module.Spec, source fsys.FileInfo, unit Unit) {
	encoded, err := l.codec.EncodeUnit(unit)
	if err != nil {
		l.logger.Debug("cache encode failed", "module", spec.Name, "err", err)
		return
	}
	data, err := EncodeEnvelope(spec.Name, source.ModTime, encoded)
	if err != nil {
		return
	}
	if err := l.fs.WriteFile(spec.CachePath, data); err != nil {
		l.logger.Debug("cache write failed", "module", spec.Name, "err", err)
	}
}
