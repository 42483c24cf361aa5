package cluster

import (
	"fmt"
	"os"
	"path/filepath"
)

// Filesystem stores blob data under a data directory. Master and Data nodes
// each own a disjoint Filesystem rooted at their own --dir-data.
type Filesystem struct {
	dir string
}

// OpenFilesystem creates dir (and any missing parents) and returns a
// Filesystem rooted there. Failure to create the directory is fatal at
// startup, per the propagation policy for misconfiguration.
func OpenFilesystem(dir string) (*Filesystem, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cluster: create data directory %q: %w", dir, err)
	}
	return &Filesystem{dir: dir}, nil
}

// SaveFile writes (overwriting) dir/name with b.
func (f *Filesystem) SaveFile(name string, b []byte) error {
	p, err := f.path(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return fmt.Errorf("cluster: save file %q: %w", name, err)
	}
	return nil
}

// ReadFile reads back dir/name in full.
func (f *Filesystem) ReadFile(name string) ([]byte, error) {
	p, err := f.path(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("cluster: read file %q: %w", name, err)
	}
	return b, nil
}

// path resolves name to a path under f.dir, rejecting any name
// that would escape it (there is no sub-directory layout for blobs).
func (f *Filesystem) path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("cluster: invalid filename %q", name)
	}
	return filepath.Join(f.dir, name), nil
}
