// cmd/modimport/main.go
//
// This is the entry point for the modimport CLI.
//
// Flow:
// 1. Load .modimport/config.yaml from the project directory
// 2. Wire the finders, loaders and registry into one importer
// 3. Bind each module named on the command line into __main__
// 4. Either import them all and print a report, or open the browser

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kingrea/modimport/internal/tui"
)

func main() {
	projectDir := flag.String("project", "", "path to the project directory (defaults to cwd)")
	browse := flag.Bool("tui", false, "open the registry browser instead of printing a report")
	var paths stringList
	flag.Var(&paths, "path", "extra search directory appended to the search path (repeatable)")
	flag.Parse()

	project := *projectDir
	if project == "" {
		var err error
		project, err = os.Getwd()
		if err != nil {
			die("determine working directory: %v", err)
		}
	}
	absoluteProject, err := filepath.Abs(project)
	if err != nil {
		die("resolve project dir: %v", err)
	}

	s, err := openSession(absoluteProject, paths)
	if err != nil {
		die("start: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	names := flag.Args()

	if *browse {
		for i, err := range s.bind(ctx, names) {
			if err != nil {
				s.logger.Warn("bind failed", "module", names[i], "err", err)
			}
		}
		p := tea.NewProgram(
			tui.NewApp(s.imp, tui.WithLogbook(s.book), tui.WithContext(ctx)),
			tea.WithAltScreen(),
		)
		if _, err := p.Run(); err != nil {
			die("run browser: %v", err)
		}
		return
	}

	if len(names) == 0 {
		die("usage: modimport [-project dir] [-path dir]... [-tui] module...")
	}
	results := s.resolveAll(ctx, names)
	writeReport(os.Stdout, results)
	for _, r := range results {
		if r.err != nil {
			s.Close()
			os.Exit(1)
		}
	}
}

func writeReport(w io.Writer, results []result) {
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	failed := cell.Foreground(lipgloss.Color("#FF6B6B"))

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, reportRow(r))
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))).
		Headers("MODULE", "STATE", "LOADER", "ORIGIN").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if row >= 0 && row < len(results) && results[row].err != nil {
				return failed
			}
			return cell
		})
	fmt.Fprintln(w, t.String())
}

func reportRow(r result) []string {
	if r.err != nil {
		return []string{r.name, "error", "-", r.err.Error()}
	}
	if r.module == nil {
		return []string{r.name, "bound", "-", "-"}
	}
	kind, origin := "-", "-"
	if spec := r.module.Spec(); spec != nil {
		kind = spec.Kind.String()
		if spec.Origin != "" {
			origin = spec.Origin
		}
	}
	return []string{r.name, r.module.State().String(), kind, origin}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
