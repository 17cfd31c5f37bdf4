package importtest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/modimport/internal/loader"
	"github.com/kingrea/modimport/internal/module"
)

// ScriptCompiler compiles a line-oriented module language:
//
//	set NAME VALUE          bind NAME (integers become int)
//	func NAME RESULT        bind a callable returning RESULT
//	import MOD [as ALIAS]   import MOD; bind its top package, or ALIAS to MOD
//	copy MOD.ATTR DEST      bind DEST to attribute ATTR of module MOD
//	sleep DURATION          pause
//	fail MESSAGE            abort initialization
//
// Lines starting with # are comments. It also serves as the Codec by
// round-tripping the script text.
type ScriptCompiler struct {
	mu       sync.Mutex
	compiles map[string]int
	decodes  map[string]int
	execs    map[string]int
}

// NewScriptCompiler returns a compiler with zeroed counters.
func NewScriptCompiler() *ScriptCompiler {
	return &ScriptCompiler{
		compiles: map[string]int{},
		decodes:  map[string]int{},
		execs:    map[string]int{},
	}
}

// Script is a compiled unit.
type Script struct {
	File  string
	Lines []string
	owner *ScriptCompiler
}

// Compile implements loader.Compiler.
func (c *ScriptCompiler) Compile(source []byte, filename string) (loader.Unit, error) {
	s, err := parse(source, filename, c)
	if err != nil {
		return nil, err
	}
	c.count(c.compiles, filename)
	return s, nil
}

// EncodeUnit implements loader.Codec.
func (c *ScriptCompiler) EncodeUnit(u loader.Unit) ([]byte, error) {
	s, ok := u.(*Script)
	if !ok {
		return nil, fmt.Errorf("importtest: cannot encode %T", u)
	}
	return []byte(strings.Join(s.Lines, "\n")), nil
}

// DecodeUnit implements loader.Codec.
func (c *ScriptCompiler) DecodeUnit(data []byte, filename string) (loader.Unit, error) {
	s, err := parse(data, filename, c)
	if err != nil {
		return nil, err
	}
	c.count(c.decodes, filename)
	return s, nil
}

// Compiles returns how often the file was compiled from source.
func (c *ScriptCompiler) Compiles(file string) int { return c.get(c.compiles, file) }

// Decodes returns how often the file was decoded from an encoded unit.
func (c *ScriptCompiler) Decodes(file string) int { return c.get(c.decodes, file) }

// Execs returns how often a unit of the file ran.
func (c *ScriptCompiler) Execs(file string) int { return c.get(c.execs, file) }

// TotalExecs returns how many units ran in total.
func (c *ScriptCompiler) TotalExecs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.execs {
		total += n
	}
	return total
}

func (c *ScriptCompiler) count(m map[string]int, file string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m[file]++
}

func (c *ScriptCompiler) get(m map[string]int, file string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return m[file]
}

var directives = map[string][2]int{
	"set":    {2, 2},
	"func":   {2, 2},
	"import": {1, 3},
	"copy":   {2, 2},
	"sleep":  {1, 1},
	"fail":   {0, -1},
}

func parse(source []byte, filename string, owner *ScriptCompiler) (*Script, error) {
	s := &Script{File: filename, owner: owner}
	for i, raw := range strings.Split(string(source), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		arity, ok := directives[fields[0]]
		if !ok {
			return nil, fmt.Errorf("%s:%d: syntax error: unknown directive %q", filename, i+1, fields[0])
		}
		n := len(fields) - 1
		if n < arity[0] || (arity[1] >= 0 && n > arity[1]) {
			return nil, fmt.Errorf("%s:%d: syntax error: %s takes %d arguments", filename, i+1, fields[0], arity[0])
		}
		if fields[0] == "import" && n > 1 && (n != 3 || fields[2] != "as") {
			return nil, fmt.Errorf("%s:%d: syntax error: want import MOD [as ALIAS]", filename, i+1)
		}
		if fields[0] == "sleep" {
			if _, err := time.ParseDuration(fields[1]); err != nil {
				return nil, fmt.Errorf("%s:%d: syntax error: %v", filename, i+1, err)
			}
		}
		s.Lines = append(s.Lines, line)
	}
	return s, nil
}

// Exec implements loader.Unit.
func (s *Script) Exec(env *loader.Env) error {
	if s.owner != nil {
		s.owner.count(s.owner.execs, s.File)
	}
	for _, line := range s.Lines {
		if err := s.step(env, strings.Fields(line), line); err != nil {
			return err
		}
	}
	return nil
}

func (s *Script) step(env *loader.Env, f []string, line string) error {
	switch f[0] {
	case "set":
		env.Set(f[1], literal(f[2]))
	case "func":
		result := literal(f[2])
		env.Set(f[1], module.Func(func(context.Context, ...module.Value) (module.Value, error) {
			return result, nil
		}))
	case "import":
		m, err := env.Import(f[1])
		if err != nil {
			return err
		}
		if len(f) == 4 {
			env.Set(f[3], m)
			return nil
		}
		top := module.TopName(f[1])
		if top == f[1] {
			env.Set(top, m)
			return nil
		}
		topModule, err := env.Import(top)
		if err != nil {
			return err
		}
		env.Set(top, topModule)
	case "copy":
		mod, attr := module.ParentName(f[1]), module.TailName(f[1])
		if mod == "" {
			return fmt.Errorf("%s: copy needs MOD.ATTR, got %q", s.File, f[1])
		}
		m, err := env.Import(mod)
		if err != nil {
			return err
		}
		v, ok := m.Attr(attr)
		if !ok {
			return fmt.Errorf("cannot import name %q from %s (%s)", attr, mod, m.State())
		}
		env.Set(f[2], v)
	case "sleep":
		d, _ := time.ParseDuration(f[1])
		time.Sleep(d)
	case "fail":
		return fmt.Errorf("%s", strings.TrimSpace(strings.TrimPrefix(line, "fail")))
	}
	return nil
}

func literal(s string) module.Value {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return strings.Trim(s, `"`)
}
