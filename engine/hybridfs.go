package engine

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// HybridFS implements fs.FS over the views directory on disk and falls back
// to an embedded fs.FS, so a binary can ship its views while a checkout can
// still override them.
type HybridFS struct {
	baseDir  string
	embedded fs.FS
}

// NewHybridFS creates a HybridFS rooted at baseDir. If embedded is nil, it behaves like disk FS.
func NewHybridFS(baseDir string, embedded fs.FS) *HybridFS {
	return &HybridFS{baseDir: baseDir, embedded: embedded}
}

// Open tries disk first, then embedded.
func (h *HybridFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	f, err := os.Open(filepath.Join(h.baseDir, filepath.FromSlash(name)))
	if err == nil {
		return f, nil
	}
	if h.embedded != nil && errors.Is(err, fs.ErrNotExist) {
		return h.embedded.Open(name)
	}
	return nil, err
}
