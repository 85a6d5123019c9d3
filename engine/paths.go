package engine

import (
	"os"
	"path/filepath"
	"strings"
)

// PathResolver maps project-relative paths to the filesystem.
type PathResolver interface {
	// Resolve returns the absolute path of a logical path such as
	// "/resources/pages/home.template.html".
	Resolve(logical string) (string, error)
	// EnsureDir creates dir and its parents if needed.
	EnsureDir(dir string) error
}

// ProjectPaths resolves logical paths against a project root directory.
type ProjectPaths struct {
	Root string
}

func (p ProjectPaths) Resolve(logical string) (string, error) {
	root, err := filepath.Abs(p.Root)
	if err != nil {
		return "", err
	}
	rel := filepath.FromSlash(strings.TrimPrefix(logical, "/"))
	return filepath.Join(root, filepath.Clean(string(filepath.Separator)+rel)), nil
}

func (p ProjectPaths) EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// normalizeView turns a logical view name into slash-separated segments.
// Dots and backslashes separate directories, so "pages.home" and
// "pages/home" name the same view.
func normalizeView(view, sourceExt string) (string, error) {
	v := strings.TrimSpace(view)
	v = strings.TrimSuffix(v, sourceExt)
	v = strings.ReplaceAll(v, "\\", "/")
	for strings.HasPrefix(v, "./") {
		v = v[2:]
	}
	if strings.Contains(v, "..") {
		return "", &InvalidPathError{View: view, Reason: "parent directory reference"}
	}
	v = strings.ReplaceAll(v, ".", "/")

	var segments []string
	for _, seg := range strings.Split(v, "/") {
		if seg == "" {
			continue
		}
		for _, r := range seg {
			if !(r == '_' || r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
				return "", &InvalidPathError{View: view, Reason: "segment " + seg + " contains " + string(r)}
			}
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return "", &InvalidPathError{View: view, Reason: "empty view name"}
	}
	return strings.Join(segments, "/"), nil
}
