package logging

import (
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNewWritesToStateDir(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, "debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("relisted directory", "dir", "/lib")
	l.Printf("imported %s\n", "a")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "relisted directory") || !strings.Contains(text, "imported a") {
		t.Fatalf("log missing lines:\n%s", text)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != log.DebugLevel || ParseLevel("bogus") != log.InfoLevel {
		t.Fatalf("unexpected level mapping")
	}
	if Discard().Path() != "" {
		t.Fatalf("discard logger has no file")
	}
}
