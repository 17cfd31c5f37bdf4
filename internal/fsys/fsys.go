// Package fsys is the filesystem collaborator of the import machinery. Finders
// and loaders only see the FS interface; the afero adapter backs it with the
// real OS filesystem or an in-memory one.
package fsys

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
)

// FileInfo is the subset of stat data the import machinery consumes.
type FileInfo struct {
	ModTime time.Time
	IsDir   bool
	Size    int64
}

// FS is what finders and loaders need from a filesystem.
type FS interface {
	Stat(path string) (FileInfo, error)
	// ReadDir returns the entry names of a directory in lexical order.
	ReadDir(path string) ([]string, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	MkdirAll(path string) error
}

// Afero adapts an afero.Fs.
type Afero struct {
	fs afero.Fs
}

// NewAfero wraps fs. A nil fs means the OS filesystem.
func NewAfero(fs afero.Fs) *Afero {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Afero{fs: fs}
}

// OS returns an FS backed by the operating system.
func OS() *Afero { return NewAfero(afero.NewOsFs()) }

// Memory returns an empty in-memory FS.
func Memory() *Afero { return NewAfero(afero.NewMemMapFs()) }

// Underlying exposes the wrapped afero filesystem.
func (a *Afero) Underlying() afero.Fs { return a.fs }

func (a *Afero) Stat(path string) (FileInfo, error) {
	info, err := a.fs.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{ModTime: info.ModTime(), IsDir: info.IsDir(), Size: info.Size()}, nil
}

func (a *Afero) ReadDir(path string) ([]string, error) {
	infos, err := afero.ReadDir(a.fs, path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (a *Afero) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(a.fs, path)
}

// WriteFile writes through a temp file and a rename so concurrent readers
// never observe a torn cache file.
func (a *Afero) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsys: create %s: %w", dir, err)
	}
	tmp := fmt.Sprintf("%s.%d.tmp", path, time.Now().UnixNano())
	if err := afero.WriteFile(a.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("fsys: write %s: %w", path, err)
	}
	if err := a.fs.Rename(tmp, path); err != nil {
		_ = a.fs.Remove(tmp)
		return fmt.Errorf("fsys: rename %s: %w", path, err)
	}
	return nil
}

func (a *Afero) MkdirAll(path string) error {
	return a.fs.MkdirAll(path, 0o755)
}

// Chtimes sets the modification time of path. Tests use it to simulate edits.
func (a *Afero) Chtimes(path string, mtime time.Time) error {
	return a.fs.Chtimes(path, mtime, mtime)
}

// Remove deletes path and everything below it.
func (a *Afero) Remove(path string) error {
	return a.fs.RemoveAll(path)
}

// IsNotExist reports whether err means the path is missing.
func IsNotExist(err error) bool {
	return os.IsNotExist(err)
}
