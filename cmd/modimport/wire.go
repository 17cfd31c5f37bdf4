package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kingrea/modimport/internal/builtins"
	"github.com/kingrea/modimport/internal/compiler"
	"github.com/kingrea/modimport/internal/config"
	"github.com/kingrea/modimport/internal/finder"
	"github.com/kingrea/modimport/internal/fsys"
	"github.com/kingrea/modimport/internal/importer"
	"github.com/kingrea/modimport/internal/lazy"
	"github.com/kingrea/modimport/internal/loader"
	"github.com/kingrea/modimport/internal/logbook"
	"github.com/kingrea/modimport/internal/logging"
	"github.com/kingrea/modimport/internal/module"
)

// mainModule is the namespace command-line imports are bound into.
const mainModule = "__main__"

// session is a fully wired import system for one project.
type session struct {
	cfg    *config.Config
	logger *logging.Logger
	book   *logbook.Logbook
	imp    *importer.Importer
	binder *lazy.Binder
	main   *module.Module
}

// result describes one command-line import.
type result struct {
	name   string
	module *module.Module
	err    error
}

func openSession(projectDir string, extraPaths []string) (*session, error) {
	if err := config.InitStateDir(projectDir); err != nil {
		return nil, err
	}
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.StateDir, cfg.Project.Log.Level)
	if err != nil {
		return nil, err
	}
	book, err := logbook.New(cfg.JournalPath())
	if err != nil {
		logger.Close()
		return nil, err
	}

	cc := compiler.New()
	frozen, err := loadFrozen(cc, cfg.Project.Frozen)
	if err != nil {
		logger.Close()
		return nil, err
	}
	table := loader.NewBuiltinTable()

	searchPath := cfg.SearchPath()
	for _, dir := range extraPaths {
		if dir = strings.TrimSpace(dir); dir != "" {
			searchPath = append(searchPath, dir)
		}
	}

	imp := importer.New(
		importer.WithFS(fsys.OS()),
		importer.WithCompiler(cc),
		importer.WithBuiltins(table),
		importer.WithFrozen(frozen),
		importer.WithExtensionOpener(loader.PluginOpener{}),
		importer.WithSearchPath(searchPath...),
		importer.WithSuffixes(finder.SuffixTable{
			Extension: cfg.Project.Suffixes.Extension,
			Source:    cfg.Project.Suffixes.Source,
			Bytecode:  cfg.Project.Suffixes.Bytecode,
		}),
		importer.WithMarker(cfg.Project.PackageMarker),
		importer.WithBytecodeCache(finder.CacheConfig{
			Enabled: cfg.Project.BytecodeCache.Enabled,
			Dir:     cfg.Project.BytecodeCache.Dir,
			Suffix:  firstOr(cfg.Project.Suffixes.Bytecode, ".gobc"),
		}),
		importer.WithLogger(logger.Logger),
		importer.WithObserver(book),
	)
	builtins.RegisterBuiltins(table, imp)

	lazy.SetFilter(cfg.EagerFilter())
	top := module.NewWithState(mainModule, module.NewNamespace(), module.StateReady)
	if err := imp.Registry().Set(mainModule, top); err != nil {
		logger.Close()
		return nil, err
	}

	logger.Info("session ready", "project", cfg.ProjectDir, "path", strings.Join(searchPath, string(os.PathListSeparator)))
	return &session{
		cfg:    cfg,
		logger: logger,
		book:   book,
		imp:    imp,
		binder: lazy.NewBinder(imp),
		main:   top,
	}, nil
}

// loadFrozen compiles the configured frozen sources and stores their encoded
// units.
func loadFrozen(cc *compiler.GoCompiler, refs []config.FrozenRef) (*loader.FrozenTable, error) {
	table := loader.NewFrozenTable()
	for _, ref := range refs {
		src, err := os.ReadFile(ref.Path)
		if err != nil {
			return nil, fmt.Errorf("frozen %s: %w", ref.Name, err)
		}
		unit, err := cc.Compile(src, ref.Path)
		if err != nil {
			return nil, fmt.Errorf("frozen %s: %w", ref.Name, err)
		}
		code, err := cc.EncodeUnit(unit)
		if err != nil {
			return nil, fmt.Errorf("frozen %s: %w", ref.Name, err)
		}
		table.Register(ref.Name, loader.FrozenModule{Code: code, Package: ref.Package})
	}
	return table, nil
}

// bind binds each name into __main__ under its slot. Eager filters import
// right away; otherwise proxies are bound.
func (s *session) bind(ctx context.Context, names []string) []error {
	errs := make([]error, len(names))
	for i, name := range names {
		st := lazy.Statement{Importer: mainModule, Target: name, As: slotName(name)}
		errs[i] = s.binder.Bind(ctx, s.main.Namespace(), st)
	}
	return errs
}

// resolveAll binds and materializes every name.
func (s *session) resolveAll(ctx context.Context, names []string) []result {
	bindErrs := s.bind(ctx, names)
	out := make([]result, len(names))
	for i, name := range names {
		out[i].name = name
		if bindErrs[i] != nil {
			out[i].err = bindErrs[i]
			continue
		}
		v, _, err := s.main.Namespace().Load(ctx, slotName(name))
		if err != nil {
			out[i].err = err
			continue
		}
		if m, ok := v.(*module.Module); ok {
			out[i].module = m
		}
	}
	return out
}

func (s *session) Close() error {
	return s.logger.Close()
}

// slotName maps a dotted module name to a binding name in __main__.
func slotName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 && values[0] != "" {
		return values[0]
	}
	return fallback
}

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, string(os.PathListSeparator))
}

func (l *stringList) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("empty path")
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return err
	}
	*l = append(*l, abs)
	return nil
}
