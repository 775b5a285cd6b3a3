package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrReadOnly is returned by writes against a workspace with no disk root.
var ErrReadOnly = errors.New("workspace is read-only")

// Entry is one regular file found in a directory listing.
type Entry struct {
	Name    string
	Path    string // slash-separated, relative to the workspace root
	Size    int64
	ModTime time.Time
}

// Lister is the read surface the pipeline needs from a filesystem.
type Lister interface {
	List(dir string) ([]Entry, error)
	ReadFile(name string) ([]byte, error)
}

// Workspace is the artifact tree of one project. Reads go through an
// fs.FS so tests can inject fstest.MapFS; writes require a disk root.
// ⭐ SSOT: 파일시스템 접근은 이 타입을 통해서만
type Workspace struct {
	fsys fs.FS
	root string
}

// New returns a disk-backed workspace rooted at root.
func New(root string) *Workspace {
	return &Workspace{fsys: os.DirFS(root), root: root}
}

// FromFS returns a read-only workspace over fsys.
func FromFS(fsys fs.FS) *Workspace {
	return &Workspace{fsys: fsys}
}

// Abs returns the on-disk path of name, or name itself when not disk-backed.
func (w *Workspace) Abs(name string) string {
	if w.root == "" {
		return name
	}
	return filepath.Join(w.root, filepath.FromSlash(name))
}

// ReadFile reads one file.
func (w *Workspace) ReadFile(name string) ([]byte, error) {
	return fs.ReadFile(w.fsys, clean(name))
}

// Stat returns file info for name.
func (w *Workspace) Stat(name string) (fs.FileInfo, error) {
	return fs.Stat(w.fsys, clean(name))
}

// List returns the regular files directly under dir, sorted by name.
// A missing directory is created when disk-backed and reads as empty.
func (w *Workspace) List(dir string) ([]Entry, error) {
	dir = clean(dir)
	dirEntries, err := fs.ReadDir(w.fsys, dir)
	if errors.Is(err, fs.ErrNotExist) {
		if w.root != "" {
			if mkErr := os.MkdirAll(w.Abs(dir), 0o755); mkErr != nil {
				return nil, fmt.Errorf("create %s: %w", dir, mkErr)
			}
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Path:    path.Join(dir, de.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Glob matches a doublestar pattern (e.g. "dist/**/*.{js,css}").
func (w *Workspace) Glob(pattern string) ([]string, error) {
	matches, err := doublestar.Glob(w.fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// SizeByExtension walks dir recursively and sums file sizes per extension
// for the given extensions (without dot). Missing dir reads as no files.
func (w *Workspace) SizeByExtension(dir string, exts ...string) (map[string]int64, error) {
	totals := make(map[string]int64, len(exts))
	if len(exts) == 0 {
		return totals, nil
	}

	dir = clean(dir)
	pattern := path.Join(dir, "**", "*.{"+strings.Join(exts, ",")+"}")
	matches, err := w.Glob(pattern)
	if err != nil {
		return nil, err
	}

	for _, m := range matches {
		info, err := fs.Stat(w.fsys, m)
		if err != nil {
			continue
		}
		ext := strings.TrimPrefix(path.Ext(m), ".")
		totals[ext] += info.Size()
	}
	return totals, nil
}

// WriteFile atomically replaces name with data (temp file + rename).
func (w *Workspace) WriteFile(name string, data []byte) error {
	if w.root == "" {
		return ErrReadOnly
	}

	target := w.Abs(clean(name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func clean(name string) string {
	name = path.Clean(filepath.ToSlash(name))
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "."
	}
	return name
}
