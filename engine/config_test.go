package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dlview.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
views_dir         = "views"
cache_mode        = "source"
max_include_depth = 8
development       = true
csrf_field        = "_token"
`), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "views", cfg.ViewsDir)
	assert.Equal(t, CacheSource, cfg.CacheMode)
	assert.Equal(t, 8, cfg.MaxIncludeDepth)
	assert.True(t, cfg.Development)
	assert.Equal(t, "_token", cfg.CSRFField)

	// Unset attributes keep their defaults.
	assert.Equal(t, ".build", cfg.BuildDir)
	assert.Equal(t, ".template.html", cfg.SourceExt)
	assert.Equal(t, 100, cfg.CacheMaxSizeMB)
}

func TestLoadConfigFileRejectsUnknownAttributes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dlview.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`template_dir = "x"`), 0o644))

	_, err := LoadConfigFile(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DLVIEW_BUILD_DIR", "out")
	t.Setenv("DLVIEW_CACHE_MODE", "source")
	t.Setenv("DLVIEW_DEVELOPMENT", "true")
	t.Setenv("DLVIEW_MAX_INCLUDE_DEPTH", "4")
	t.Setenv("DLVIEW_VIEWS_DIR", "")

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, "out", cfg.BuildDir)
	assert.Equal(t, CacheSource, cfg.CacheMode)
	assert.True(t, cfg.Development)
	assert.Equal(t, 4, cfg.MaxIncludeDepth)
	assert.Equal(t, "resources", cfg.ViewsDir, "empty variables are ignored")
}

func TestNormalize(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.normalize())
	def := DefaultConfig()
	assert.Equal(t, def.ViewsDir, cfg.ViewsDir)
	assert.Equal(t, def.MaxIncludeDepth, cfg.MaxIncludeDepth)
	assert.Equal(t, CacheAlways, cfg.CacheMode)

	cfg = Config{CacheMode: " SOURCE "}
	require.NoError(t, cfg.normalize())
	assert.Equal(t, CacheSource, cfg.CacheMode)

	cfg = Config{CacheMode: "sometimes"}
	assert.ErrorContains(t, cfg.normalize(), "unknown cache mode")

	_, err := NewEngine(Config{CacheMode: "sometimes"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}
