// internal/tui/app.go
//
// This is the registry browser. It uses bubbletea, which follows The Elm
// Architecture:
//
// 1. Model: the registry snapshot and the current screen
// 2. Update: handles key presses and import results
// 3. View: renders the module list, a namespace or the import prompt
//
// Rendering never materializes lazy proxies: namespaces are read through
// Snapshot and proxies are shown with Describe.

package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/modimport/internal/importer"
	"github.com/kingrea/modimport/internal/lazy"
	"github.com/kingrea/modimport/internal/logbook"
	"github.com/kingrea/modimport/internal/module"
)

// appState represents which "screen" we're on
type appState int

const (
	stateModules appState = iota // Registry listing
	stateDetail                  // Namespace of one module
	stateImport                  // Prompt for a module name
)

const (
	logPanelLines = 8
	maxValueWidth = 60
)

// App is the bubbletea model of the browser.
type App struct {
	state    appState
	ctx      context.Context
	importer *importer.Importer
	logbook  *logbook.Logbook

	modules  list.Model
	input    textinput.Model
	selected string

	statusMsg string
	err       error

	width  int
	height int
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithContext sets the context imports started from the browser run with.
func WithContext(ctx context.Context) AppOption {
	return func(a *App) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

// WithLogbook shows the import journal in a side panel.
func WithLogbook(book *logbook.Logbook) AppOption {
	return func(a *App) { a.logbook = book }
}

// moduleItem implements list.Item for registry entries
type moduleItem struct {
	name   string
	state  module.State
	kind   module.LoaderKind
	origin string
	pkg    bool
}

func (i moduleItem) Title() string {
	if i.pkg {
		return i.name + "/"
	}
	return i.name
}

func (i moduleItem) Description() string {
	origin := i.origin
	if origin == "" {
		origin = "injected"
	}
	if i.kind == 0 {
		return fmt.Sprintf("%s · %s", i.state, origin)
	}
	return fmt.Sprintf("%s · %s · %s", i.state, i.kind, origin)
}

func (i moduleItem) FilterValue() string { return i.name }

// NewApp creates a browser over imp's registry.
func NewApp(imp *importer.Importer, opts ...AppOption) *App {
	modules := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	modules.Title = "⬡ MODULES"
	modules.SetShowStatusBar(false)
	modules.SetFilteringEnabled(false)

	input := textinput.New()
	input.Placeholder = "pkg.module"
	input.Prompt = "import › "
	input.CharLimit = 256

	app := &App{
		state:    stateModules,
		ctx:      context.Background(),
		importer: imp,
		modules:  modules,
		input:    input,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	app.refresh()
	return app
}

// importDoneMsg reports the result of an import started from the browser.
type importDoneMsg struct {
	name string
	err  error
}

func (a *App) importCmd(name string) tea.Cmd {
	ctx := a.ctx
	imp := a.importer
	return func() tea.Msg {
		_, err := imp.Import(ctx, name)
		return importDoneMsg{name: name, err: err}
	}
}

// refresh rebuilds the module list from the registry.
func (a *App) refresh() {
	snapshot := a.importer.Registry().Snapshot()
	items := make([]list.Item, 0, len(snapshot))
	for _, m := range snapshot {
		item := moduleItem{name: m.Name(), state: m.State(), pkg: m.IsPackage()}
		if spec := m.Spec(); spec != nil {
			item.kind = spec.Kind
			item.origin = spec.Origin
		}
		items = append(items, item)
	}
	a.modules.SetItems(items)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.modules.SetSize(max(0, msg.Width-6), max(0, msg.Height-10))
		return a, nil

	case importDoneMsg:
		if msg.err != nil {
			a.err = msg.err
			a.statusMsg = ""
		} else {
			a.err = nil
			a.statusMsg = fmt.Sprintf("imported %s", msg.name)
		}
		a.refresh()
		return a, nil

	case tea.KeyMsg:
		if a.state == stateImport {
			return a.updateImportPrompt(msg)
		}
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "q":
			if a.state == stateModules {
				return a, tea.Quit
			}
			a.state = stateModules
			return a, nil
		case "esc":
			a.state = stateModules
			return a, nil
		case "r":
			a.refresh()
			a.statusMsg = "Refreshed registry"
			return a, nil
		case "c":
			a.importer.InvalidateCaches()
			a.statusMsg = "Invalidated finder caches"
			return a, nil
		case "i":
			a.state = stateImport
			a.input.SetValue("")
			return a, a.input.Focus()
		case "enter":
			if a.state == stateModules {
				if item, ok := a.modules.SelectedItem().(moduleItem); ok {
					a.selected = item.name
					a.state = stateDetail
				}
				return a, nil
			}
		}
	}

	var cmd tea.Cmd
	if a.state == stateModules {
		a.modules, cmd = a.modules.Update(msg)
	}
	return a, cmd
}

func (a *App) updateImportPrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit
	case "esc":
		a.input.Blur()
		a.state = stateModules
		return a, nil
	case "enter":
		name := strings.TrimSpace(a.input.Value())
		a.input.Blur()
		a.state = stateModules
		if name == "" {
			return a, nil
		}
		a.statusMsg = fmt.Sprintf("importing %s...", name)
		return a, a.importCmd(name)
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	rightWidth := max(32, width/3)
	leftWidth := width - rightWidth - 4
	if leftWidth < 40 {
		leftWidth = width - 4
		rightWidth = 0
	}

	var content string
	switch a.state {
	case stateModules:
		a.modules.SetSize(max(20, leftWidth-4), max(10, a.height-10))
		content = a.modules.View()
	case stateDetail:
		content = a.renderNamespace(a.selected)
	case stateImport:
		content = lipgloss.JoinVertical(lipgloss.Left, a.modules.View(), "", a.input.View())
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ MODIMPORT")
	left := lipgloss.JoinVertical(lipgloss.Left, header, content, "", a.renderStatus(), a.renderHelp())
	left = lipgloss.NewStyle().Width(leftWidth).Render(left)
	if rightWidth == 0 {
		return left
	}
	right := lipgloss.NewStyle().Width(rightWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, a.renderPathPanel(), "", a.renderLogPanel()),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
}

// renderNamespace lists the bindings of name without materializing anything.
func (a *App) renderNamespace(name string) string {
	m, ok := a.importer.Registry().Get(name)
	if !ok {
		return fmt.Sprintf("%s is no longer registered", name)
	}
	title := lipgloss.NewStyle().Bold(true).Render(m.String())
	ns := m.Namespace()
	if ns == nil {
		return title + "\n(no namespace)"
	}
	bindings := ns.Snapshot()
	if len(bindings) == 0 {
		return title + "\n(empty namespace)"
	}
	nameWidth := 0
	for _, b := range bindings {
		nameWidth = max(nameWidth, len(b.Name))
	}
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	lazyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F4B942"))
	rows := []string{title, ""}
	for _, b := range bindings {
		value, isLazy := describeValue(b.Value)
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
		if isLazy {
			style = lazyStyle
		}
		rows = append(rows, fmt.Sprintf("%s  %s", keyStyle.Render(fmt.Sprintf("%-*s", nameWidth, b.Name)), style.Render(value)))
	}
	return strings.Join(rows, "\n")
}

// describeValue renders a binding for display. Proxies are described, never
// used, and values are never formatted through a Stringer that could reach
// one.
func describeValue(v module.Value) (string, bool) {
	switch t := v.(type) {
	case *lazy.Proxy:
		if t.Introspect().Materialized {
			return t.Describe() + " (materialized)", true
		}
		return t.Describe(), true
	case *module.Module:
		return t.String(), false
	case nil:
		return "nil", false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		return rv.Type().String(), false
	case reflect.Map, reflect.Slice, reflect.Array:
		return fmt.Sprintf("%s (len %d)", rv.Type(), rv.Len()), false
	case reflect.String, reflect.Bool, reflect.Int, reflect.Int64, reflect.Float64:
		return truncate(fmt.Sprintf("%#v", v), maxValueWidth), false
	default:
		return rv.Type().String(), false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func (a *App) renderStatus() string {
	if a.err != nil {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Render(a.err.Error())
	}
	if a.statusMsg == "" {
		return ""
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77")).Render(a.statusMsg)
}

func (a *App) renderHelp() string {
	help := "enter: open · i: import · r: refresh · c: invalidate caches · q: quit"
	switch a.state {
	case stateDetail:
		help = "esc: back · q: back"
	case stateImport:
		help = "enter: import · esc: cancel"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")).Render(help)
}

func (a *App) renderPathPanel() string {
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render("SEARCH PATH")
	var rows []string
	cached := a.importer.PathFinder().CachedDirs()
	for _, dir := range a.importer.SearchPath() {
		marker := " "
		if hasFinder, ok := cached[dir]; ok {
			marker = "✓"
			if !hasFinder {
				marker = "✗"
			}
		}
		rows = append(rows, fmt.Sprintf("%s %s", marker, dir))
	}
	if len(rows) == 0 {
		rows = append(rows, "(empty)")
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(head + "\n" + strings.Join(rows, "\n"))
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(logPanelLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s (%d)", fileName, total))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}
