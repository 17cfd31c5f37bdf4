package tui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/modimport/internal/importer"
	"github.com/kingrea/modimport/internal/importtest"
	"github.com/kingrea/modimport/internal/lazy"
	"github.com/kingrea/modimport/internal/logbook"
)

type testEnv struct {
	fs   *importtest.FS
	imp  *importer.Importer
	book *logbook.Logbook
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := importtest.NewFS()
	fs.Mkdir(t, "/lib")
	book, err := logbook.New(filepath.Join(t.TempDir(), "logs", "imports.log"))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	imp := importer.New(
		importer.WithFS(fs),
		importer.WithCompiler(importtest.NewScriptCompiler()),
		importer.WithSearchPath("/lib"),
		importer.WithObserver(book),
	)
	return &testEnv{fs: fs, imp: imp, book: book}
}

func newTestApp(t *testing.T, env *testEnv) *App {
	t.Helper()
	app := NewApp(env.imp, WithLogbook(env.book), WithContext(context.Background()))
	model, _ := app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return model.(*App)
}

// runCommand executes cmd once and feeds its message back into the app.
func runCommand(t *testing.T, model tea.Model, cmd tea.Cmd) *App {
	t.Helper()
	app, ok := model.(*App)
	if !ok {
		t.Fatalf("unexpected model type %T", model)
	}
	if cmd == nil {
		return app
	}
	next, _ := app.Update(cmd())
	return next.(*App)
}

func press(t *testing.T, app *App, key tea.KeyMsg) (*App, tea.Cmd) {
	t.Helper()
	model, cmd := app.Update(key)
	return model.(*App), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModuleListShowsRegistry(t *testing.T) {
	env := newTestEnv(t)
	env.fs.Write(t, "/lib/alpha.go", "set x 1")
	if _, err := env.imp.Import(context.Background(), "alpha"); err != nil {
		t.Fatalf("import alpha: %v", err)
	}
	app := newTestApp(t, env)
	items := app.modules.Items()
	if len(items) != 1 {
		t.Fatalf("expected one module, got %d", len(items))
	}
	item := items[0].(moduleItem)
	if item.name != "alpha" || !strings.Contains(item.Description(), "ready") {
		t.Fatalf("unexpected item %+v (%s)", item, item.Description())
	}
	if !strings.Contains(app.View(), "alpha") {
		t.Fatalf("view should list alpha")
	}
}

func TestImportPromptImportsModule(t *testing.T) {
	env := newTestEnv(t)
	env.fs.Write(t, "/lib/beta.go", "set y 2")
	app := newTestApp(t, env)

	app, _ = press(t, app, runes("i"))
	if app.state != stateImport {
		t.Fatalf("i should open the import prompt")
	}
	app, _ = press(t, app, runes("beta"))
	app, cmd := press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("enter should start the import")
	}
	app = runCommand(t, app, cmd)
	if app.err != nil {
		t.Fatalf("import failed: %v", app.err)
	}
	if _, ok := env.imp.Registry().Get("beta"); !ok {
		t.Fatalf("beta should be registered")
	}
	if len(app.modules.Items()) != 1 {
		t.Fatalf("list should refresh after import")
	}
	if !strings.Contains(app.View(), "beta") {
		t.Fatalf("view should mention beta")
	}
}

func TestImportPromptReportsFailure(t *testing.T) {
	env := newTestEnv(t)
	app := newTestApp(t, env)
	app, _ = press(t, app, runes("i"))
	app, _ = press(t, app, runes("nosuch"))
	app, cmd := press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	app = runCommand(t, app, cmd)
	if app.err == nil {
		t.Fatalf("expected an import error")
	}
	if !strings.Contains(app.View(), "nosuch") {
		t.Fatalf("error should be rendered")
	}
	lines, _ := env.book.Tail(4)
	if len(lines) == 0 || !strings.Contains(lines[len(lines)-1], "nosuch") {
		t.Fatalf("journal should record the failure, got %v", lines)
	}
}

func TestImportPromptEscCancels(t *testing.T) {
	env := newTestEnv(t)
	app := newTestApp(t, env)
	app, _ = press(t, app, runes("i"))
	app, cmd := press(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	if app.state != stateModules || cmd != nil {
		t.Fatalf("esc should close the prompt without importing")
	}
}

func TestDetailDoesNotMaterializeProxies(t *testing.T) {
	env := newTestEnv(t)
	env.fs.Write(t, "/lib/host.go", "set n 7")
	env.fs.Write(t, "/lib/heavy.go", "set big 1")
	host, err := env.imp.Import(context.Background(), "host")
	if err != nil {
		t.Fatalf("import host: %v", err)
	}
	binder := lazy.NewBinder(env.imp, lazy.WithPrivateFilter(nil))
	st := lazy.Statement{Importer: "host", Target: "heavy"}
	if err := binder.Bind(context.Background(), host.Namespace(), st); err != nil {
		t.Fatalf("bind: %v", err)
	}

	app := newTestApp(t, env)
	app, _ = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if app.state != stateDetail || app.selected != "host" {
		t.Fatalf("enter should open host, state=%v selected=%q", app.state, app.selected)
	}
	view := app.View()
	if !strings.Contains(view, "<lazy module heavy>") {
		t.Fatalf("detail should describe the proxy:\n%s", view)
	}
	if !strings.Contains(view, "7") {
		t.Fatalf("detail should show host's bindings:\n%s", view)
	}
	if _, ok := env.imp.Registry().Get("heavy"); ok {
		t.Fatalf("rendering the namespace imported heavy")
	}

	app, _ = press(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	if app.state != stateModules {
		t.Fatalf("esc should return to the module list")
	}
}

func TestInvalidateCachesKey(t *testing.T) {
	env := newTestEnv(t)
	env.imp.SetSearchPath([]string{"/missing", "/lib"})
	env.fs.Write(t, "/lib/gamma.go", "set z 3")
	if _, err := env.imp.Import(context.Background(), "gamma"); err != nil {
		t.Fatalf("import gamma: %v", err)
	}
	if _, ok := env.imp.PathFinder().CachedDirs()["/missing"]; !ok {
		t.Fatalf("missing dir should be cached as a sentinel")
	}
	app := newTestApp(t, env)
	if !strings.Contains(app.View(), "✗ /missing") {
		t.Fatalf("path panel should mark the missing dir")
	}
	app, _ = press(t, app, runes("c"))
	if _, ok := env.imp.PathFinder().CachedDirs()["/missing"]; ok {
		t.Fatalf("c should drop the sentinel")
	}
	if !strings.Contains(app.statusMsg, "Invalidated") {
		t.Fatalf("status = %q", app.statusMsg)
	}
}

func TestQuitKeys(t *testing.T) {
	env := newTestEnv(t)
	app := newTestApp(t, env)
	if _, cmd := press(t, app, runes("q")); cmd == nil {
		t.Fatalf("q on the module list should quit")
	}
	if _, cmd := press(t, app, tea.KeyMsg{Type: tea.KeyCtrlC}); cmd == nil {
		t.Fatalf("ctrl+c should quit")
	}
}
