package engine

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// BuildCache owns the artifact files under the build directory.
type BuildCache struct {
	dir   string
	ext   string
	paths PathResolver
}

func newBuildCache(dir, ext string, paths PathResolver) *BuildCache {
	return &BuildCache{dir: dir, ext: ext, paths: paths}
}

// Dir returns the absolute build directory.
func (b *BuildCache) Dir() (string, error) {
	return b.paths.Resolve("/" + b.dir)
}

// ArtifactPath returns where the artifact of a normalized view lives.
func (b *BuildCache) ArtifactPath(view string) (string, error) {
	return b.paths.Resolve("/" + b.dir + "/" + view + b.ext)
}

// Persist writes the artifact unless the file already holds exactly this
// content. It reports whether a write happened.
func (b *BuildCache) Persist(path, artifact string) (bool, error) {
	have, err := hashFile(path)
	switch {
	case err == nil && have == hashString(artifact):
		return false, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return false, &ArtifactError{Op: "hash", Path: path, Err: err}
	}
	if err := b.paths.EnsureDir(filepath.Dir(path)); err != nil {
		return false, &ArtifactError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	if err := atomic.WriteFile(path, strings.NewReader(artifact)); err != nil {
		return false, &ArtifactError{Op: "write", Path: path, Err: err}
	}
	_ = os.Chmod(path, 0o644)
	return true, nil
}

// Read returns the artifact stored at path.
func (b *BuildCache) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ArtifactError{Op: "read", Path: path, Err: err}
	}
	return string(data), nil
}

// Remove deletes the artifact of a view if present.
func (b *BuildCache) Remove(view string) error {
	path, err := b.ArtifactPath(view)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &ArtifactError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// Clean deletes the whole build directory.
func (b *BuildCache) Clean() error {
	dir, err := b.Dir()
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return &ArtifactError{Op: "clean", Path: dir, Err: err}
	}
	return nil
}

func hashString(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hashBytes(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
