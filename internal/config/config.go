// internal/config/config.go
//
// This package handles configuration and the .modimport directory structure.
// A project that uses modimport keeps its settings in .modimport/config.yaml.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/modimport/internal/lazy"
)

const (
	// StateDirName is the name of the directory we create in each project.
	StateDirName = ".modimport"

	// EnvPath lists extra search directories, separated like PATH. They are
	// searched before the configured search_path.
	EnvPath = "MODIMPORT_PATH"

	defaultMarker   = "__init__"
	defaultCacheDir = "__cache__"
)

const defaultProjectConfigYAML = `# modimport project configuration
version: 1

# Directories searched for top-level modules, in order. Relative entries are
# resolved against the project directory.
search_path:
  - .

suffixes:
  extension: [".so"]
  source: [".go"]
  bytecode: [".gobc"]

package_marker: __init__

# Compiled units are cached beside their source unless dir is absolute.
bytecode_cache:
  enabled: true
  dir: __cache__

# Modules compiled into the binary at startup.
# frozen:
#   - name: settings
#     path: frozen/settings.go
#     package: false

lazy:
  enabled: true
  # Imports matching a rule load eagerly. Patterns use path.Match syntax.
  # eager:
  #   - importer: "*"
  #     imported: "sys"

log:
  level: info
`

// SuffixConfig lists the suffixes per file-backed loader kind.
type SuffixConfig struct {
	Extension []string `yaml:"extension"`
	Source    []string `yaml:"source"`
	Bytecode  []string `yaml:"bytecode"`
}

// CacheConfig controls the compiled-unit cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// FrozenRef declares a source file compiled into the frozen table at startup.
type FrozenRef struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
	Package bool   `yaml:"package,omitempty"`
}

// EagerRule forces eager loading for matching import statements.
type EagerRule struct {
	Importer string `yaml:"importer"`
	Imported string `yaml:"imported"`
}

// LazyConfig controls lazy binding.
type LazyConfig struct {
	Enabled bool        `yaml:"enabled"`
	Eager   []EagerRule `yaml:"eager,omitempty"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ProjectConfig models .modimport/config.yaml.
type ProjectConfig struct {
	Version       int          `yaml:"version"`
	SearchPath    []string     `yaml:"search_path"`
	Suffixes      SuffixConfig `yaml:"suffixes"`
	PackageMarker string       `yaml:"package_marker"`
	BytecodeCache CacheConfig  `yaml:"bytecode_cache"`
	Frozen        []FrozenRef  `yaml:"frozen,omitempty"`
	Lazy          LazyConfig   `yaml:"lazy"`
	Log           LogConfig    `yaml:"log"`
}

// Config holds the runtime configuration.
type Config struct {
	// ProjectDir is the directory modimport was started from.
	ProjectDir string

	// StateDir is ProjectDir/.modimport.
	StateDir string

	Project ProjectConfig
}

// InitStateDir creates the .modimport directory structure in projectDir and
// writes a default config.yaml when none exists.
//
// Structure created:
// .modimport/
// ├── config.yaml
// ├── logs/     <- modimport.log and the import journal
// └── cache/    <- absolute-mode compiled-unit cache
func InitStateDir(projectDir string) error {
	stateDir := filepath.Join(projectDir, StateDirName)
	dirs := []string{
		filepath.Join(stateDir, "logs"),
		filepath.Join(stateDir, "cache"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return ensureProjectConfig(filepath.Join(stateDir, "config.yaml"))
}

// Load reads the configuration for projectDir. A missing config file yields
// the defaults.
func Load(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", projectDir, err)
	}
	cfg := &Config{
		ProjectDir: abs,
		StateDir:   filepath.Join(abs, StateDirName),
		Project:    defaultProjectConfig(),
	}
	cfg.Project.normalize(abs)
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// CacheDir returns the path to the shared cache directory.
func (c *Config) CacheDir() string {
	return filepath.Join(c.StateDir, "cache")
}

// JournalPath returns the import journal file.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "imports.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// SearchPath returns MODIMPORT_PATH entries followed by the configured
// search path.
func (c *Config) SearchPath() []string {
	out := EnvSearchPath()
	for _, dir := range c.Project.SearchPath {
		if !contains(out, dir) {
			out = append(out, dir)
		}
	}
	return out
}

// EnvSearchPath splits MODIMPORT_PATH.
func EnvSearchPath() []string {
	raw := os.Getenv(EnvPath)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, dir := range filepath.SplitList(raw) {
		if dir = strings.TrimSpace(dir); dir != "" {
			out = append(out, filepath.Clean(dir))
		}
	}
	return out
}

// EagerFilter compiles the eager rules into a lazy filter. It returns nil
// when lazy binding is on and no rules exist, and a filter that always says
// "eager" when lazy binding is disabled.
func (c *Config) EagerFilter() lazy.Filter {
	if !c.Project.Lazy.Enabled {
		return func(string, string, []string) bool { return true }
	}
	rules := append([]EagerRule(nil), c.Project.Lazy.Eager...)
	if len(rules) == 0 {
		return nil
	}
	return func(importer, imported string, _ []string) bool {
		for _, rule := range rules {
			if match(rule.Importer, importer) && match(rule.Imported, imported) {
				return true
			}
		}
		return false
	}
}

func match(pattern, name string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	// Dots become slashes so "*" stops at package boundaries.
	ok, err := path.Match(strings.ReplaceAll(pattern, ".", "/"), strings.ReplaceAll(name, ".", "/"))
	return err == nil && ok
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:    1,
		SearchPath: []string{"."},
		Suffixes: SuffixConfig{
			Extension: []string{".so"},
			Source:    []string{".go"},
			Bytecode:  []string{".gobc"},
		},
		PackageMarker: defaultMarker,
		BytecodeCache: CacheConfig{Enabled: true, Dir: defaultCacheDir},
		Lazy:          LazyConfig{Enabled: true},
		Log:           LogConfig{Level: "info"},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if len(pc.SearchPath) == 0 {
		pc.SearchPath = []string{"."}
	}
	if strings.TrimSpace(pc.PackageMarker) == "" {
		pc.PackageMarker = defaultMarker
	}
	if strings.TrimSpace(pc.BytecodeCache.Dir) == "" {
		pc.BytecodeCache.Dir = defaultCacheDir
	}
	if strings.TrimSpace(pc.Log.Level) == "" {
		pc.Log.Level = "info"
	}
}

func (pc *ProjectConfig) normalize(base string) {
	for i, dir := range pc.SearchPath {
		pc.SearchPath[i] = resolvePath(base, dir)
	}
	for i := range pc.Frozen {
		pc.Frozen[i].Name = strings.TrimSpace(pc.Frozen[i].Name)
		pc.Frozen[i].Path = resolvePath(base, pc.Frozen[i].Path)
	}
	pc.PackageMarker = strings.TrimSpace(pc.PackageMarker)
	pc.Log.Level = strings.ToLower(strings.TrimSpace(pc.Log.Level))
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if len(pc.Suffixes.Extension)+len(pc.Suffixes.Source)+len(pc.Suffixes.Bytecode) == 0 {
		return fmt.Errorf("suffixes: at least one suffix is required")
	}
	if strings.ContainsAny(pc.PackageMarker, `/\.`) {
		return fmt.Errorf("package_marker must be a bare file name, got %q", pc.PackageMarker)
	}
	for i, ref := range pc.Frozen {
		if ref.Name == "" {
			return fmt.Errorf("frozen[%d]: name is required", i)
		}
		if ref.Path == "" {
			return fmt.Errorf("frozen[%d]: path is required", i)
		}
	}
	for i, rule := range pc.Lazy.Eager {
		for _, pattern := range []string{rule.Importer, rule.Imported} {
			if _, err := path.Match(pattern, ""); err != nil {
				return fmt.Errorf("lazy.eager[%d]: bad pattern %q: %w", i, pattern, err)
			}
		}
	}
	switch pc.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	return nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

// Save writes the project config back to .modimport/config.yaml.
func (c *Config) Save() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure state dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
