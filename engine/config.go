package engine

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Cache modes.
const (
	// CacheAlways compiles the source on every load. The artifact on disk is
	// only rewritten when its content changes.
	CacheAlways = "always"
	// CacheSource skips compiling while the source hash is unchanged and
	// keeps parsed artifacts in memory.
	CacheSource = "source"
)

// Config configures an Engine. Fields with an hcl tag can be set from a
// configuration file; the rest are wired in code.
type Config struct {
	Root               string `hcl:"root,optional"`
	ViewsDir           string `hcl:"views_dir,optional"`
	BuildDir           string `hcl:"build_dir,optional"`
	SourceExt          string `hcl:"source_ext,optional"`
	ArtifactExt        string `hcl:"artifact_ext,optional"`
	CacheMode          string `hcl:"cache_mode,optional"`
	CacheMaxSizeMB     int    `hcl:"cache_max_size_mb,optional"`
	CacheTTLMinutes    int    `hcl:"cache_ttl_minutes,optional"`
	Development        bool   `hcl:"development,optional"`
	CollapseWhitespace bool   `hcl:"collapse_whitespace,optional"`
	MaxIncludeDepth    int    `hcl:"max_include_depth,optional"`
	CSRFField          string `hcl:"csrf_field,optional"`
	LogLevel           string `hcl:"log_level,optional"`

	// EmbeddedFS is consulted for sources missing from ViewsDir on disk.
	EmbeddedFS fs.FS
	Paths      PathResolver
	Tokens     TokenSource
	Markdown   MarkdownRenderer
	Logger     *slog.Logger
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Root:            ".",
		ViewsDir:        "resources",
		BuildDir:        ".build",
		SourceExt:       ".template.html",
		ArtifactExt:     ".tmpl",
		CacheMode:       CacheAlways,
		CacheMaxSizeMB:  100,
		CacheTTLMinutes: 60,
		MaxIncludeDepth: 32,
		CSRFField:       defaultCSRFField,
		LogLevel:        "info",
	}
}

// LoadConfigFile reads an HCL file over the defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DLVIEW_* environment variables.
func (c *Config) ApplyEnv() {
	str := map[string]*string{
		"DLVIEW_ROOT":       &c.Root,
		"DLVIEW_VIEWS_DIR":  &c.ViewsDir,
		"DLVIEW_BUILD_DIR":  &c.BuildDir,
		"DLVIEW_CACHE_MODE": &c.CacheMode,
		"DLVIEW_CSRF_FIELD": &c.CSRFField,
		"DLVIEW_LOG_LEVEL":  &c.LogLevel,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	if v, err := strconv.ParseBool(os.Getenv("DLVIEW_DEVELOPMENT")); err == nil {
		c.Development = v
	}
	if v, err := strconv.Atoi(os.Getenv("DLVIEW_MAX_INCLUDE_DEPTH")); err == nil {
		c.MaxIncludeDepth = v
	}
}

// normalize fills zero fields with defaults and checks the rest.
func (c *Config) normalize() error {
	def := DefaultConfig()
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	fill(&c.Root, def.Root)
	fill(&c.ViewsDir, def.ViewsDir)
	fill(&c.BuildDir, def.BuildDir)
	fill(&c.SourceExt, def.SourceExt)
	fill(&c.ArtifactExt, def.ArtifactExt)
	fill(&c.CacheMode, def.CacheMode)
	fill(&c.CSRFField, def.CSRFField)
	fill(&c.LogLevel, def.LogLevel)
	if c.CacheMaxSizeMB <= 0 {
		c.CacheMaxSizeMB = def.CacheMaxSizeMB
	}
	if c.CacheTTLMinutes <= 0 {
		c.CacheTTLMinutes = def.CacheTTLMinutes
	}
	if c.MaxIncludeDepth <= 0 {
		c.MaxIncludeDepth = def.MaxIncludeDepth
	}
	c.CacheMode = strings.ToLower(strings.TrimSpace(c.CacheMode))
	if c.CacheMode != CacheAlways && c.CacheMode != CacheSource {
		return fmt.Errorf("unknown cache mode %q", c.CacheMode)
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level; unknown names mean info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}
