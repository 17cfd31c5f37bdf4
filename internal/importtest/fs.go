// Package importtest provides fixtures for exercising the import machinery:
// an instrumented in-memory filesystem and a tiny line-oriented compiler.
package importtest

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/modimport/internal/fsys"
)

// FS is an in-memory filesystem whose reads are counted. Setup helpers write
// straight to the backing store and advance a fake clock so every change
// produces a distinct mtime on the file and its ancestor directories.
type FS struct {
	*fsys.Counting

	mem   *fsys.Afero
	mu    sync.Mutex
	clock time.Time
}

// NewFS returns an empty instrumented filesystem.
func NewFS() *FS {
	mem := fsys.Memory()
	return &FS{
		Counting: fsys.NewCounting(mem),
		mem:      mem,
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *FS) tick() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

// Mkdir creates dir and its parents.
func (f *FS) Mkdir(t testing.TB, dir string) {
	t.Helper()
	if err := f.mem.MkdirAll(dir); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	f.bump(t, dir)
}

// Write creates or replaces path with content.
func (f *FS) Write(t testing.TB, path, content string) {
	t.Helper()
	if err := f.mem.WriteFile(path, []byte(content)); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	f.bump(t, path)
}

// Touch advances the mtime of path without touching its directory.
func (f *FS) Touch(t testing.TB, path string) time.Time {
	t.Helper()
	when := f.tick()
	if err := f.mem.Chtimes(path, when); err != nil {
		t.Fatalf("touch %s: %v", path, err)
	}
	return when
}

// Remove deletes path and marks its directory as changed.
func (f *FS) Remove(t testing.TB, path string) {
	t.Helper()
	if err := f.mem.Remove(path); err != nil {
		t.Fatalf("remove %s: %v", path, err)
	}
	f.bump(t, filepath.Dir(path))
}

// bump stamps path and every ancestor with a fresh mtime.
func (f *FS) bump(t testing.TB, path string) {
	t.Helper()
	when := f.tick()
	path = filepath.Clean(path)
	if err := f.mem.Chtimes(path, when); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
	for p := path; ; p = filepath.Dir(p) {
		_ = f.mem.Chtimes(p, when)
		if parent := filepath.Dir(p); parent == p {
			return
		}
	}
}
