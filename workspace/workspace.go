// Package workspace provides file access scoped to a workspace root
// directory. All paths are resolved relative to that root. Paths are not
// checked for traversal outside the root; callers that expose tools to
// untrusted input accept that risk.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Entry describes one directory entry.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

// FileAccess performs file operations relative to a root directory.
type FileAccess struct {
	root string
}

// New creates a FileAccess rooted at dir. The directory is created if it
// does not exist.
func New(dir string) (*FileAccess, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &FileAccess{root: abs}, nil
}

// Root returns the absolute workspace root.
func (f *FileAccess) Root() string { return f.root }

func (f *FileAccess) resolve(path string) string {
	return filepath.Join(f.root, path)
}

// Read returns the content of the file at path.
func (f *FileAccess) Read(path string) (string, error) {
	data, err := os.ReadFile(f.resolve(path))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// Write stores content at path, creating parent directories as needed.
func (f *FileAccess) Write(path string, content string) error {
	full := f.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create parent directories for %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// List returns the entries of the directory at dir.
func (f *FileAccess) List(dir string) ([]Entry, error) {
	entries, err := os.ReadDir(f.resolve(dir))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	result := make([]Entry, 0, len(entries))
	for _, e := range entries {
		result = append(result, Entry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return result, nil
}

// Exists reports whether a file or directory exists at path.
func (f *FileAccess) Exists(path string) bool {
	_, err := os.Stat(f.resolve(path))
	return err == nil
}
