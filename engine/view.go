package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"
)

// Engine loads views: it compiles sources into artifacts, keeps the build
// directory current and executes artifacts against a Render Context. An
// Engine is safe for concurrent use.
type Engine struct {
	config   Config
	compiler *Compiler
	paths    PathResolver
	sources  fs.FS
	builds   *BuildCache
	cache    *CacheManager // nil unless CacheMode is "source"
	tokens   TokenSource
	markdown MarkdownRenderer
	logger   *slog.Logger
	stats    *engineStats
	watcher  *FileWatcher
}

// Artifact locates a view's source and compiled artifact.
type Artifact struct {
	View       string // normalized id, e.g. "pages/home"
	Source     string // path of the source inside the views filesystem
	SourcePath string
	Path       string
}

// NewEngine creates an Engine. Zero fields of config take their defaults.
func NewEngine(config Config) (*Engine, error) {
	if err := config.normalize(); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Paths == nil {
		config.Paths = ProjectPaths{Root: config.Root}
	}
	if config.Tokens == nil {
		config.Tokens = NewRandomTokenSource()
	}
	if config.Markdown == nil {
		config.Markdown = NewGoldmarkRenderer()
	}

	viewsDir, err := config.Paths.Resolve("/" + config.ViewsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve views dir: %w", err)
	}

	e := &Engine{
		config: config,
		compiler: NewCompilerWithOptions(CompilerOptions{
			Logger:             config.Logger,
			CSRFField:          config.CSRFField,
			CollapseWhitespace: config.CollapseWhitespace,
		}),
		paths:    config.Paths,
		sources:  NewHybridFS(viewsDir, config.EmbeddedFS),
		builds:   newBuildCache(config.BuildDir, config.ArtifactExt, config.Paths),
		tokens:   config.Tokens,
		markdown: config.Markdown,
		logger:   config.Logger,
		stats:    &engineStats{},
	}
	if config.CacheMode == CacheSource {
		e.cache = NewCacheManager(config.CacheMaxSizeMB, config.CacheTTLMinutes, 5)
	}

	if config.Development {
		watcher, err := NewFileWatcher(e, viewsDir)
		if err != nil {
			e.logger.Warn("could not start file watcher", "dir", viewsDir, "error", err)
		} else {
			watcher.Start()
			e.watcher = watcher
		}
	}

	e.logger.Debug("view engine ready",
		"views", viewsDir, "build", config.BuildDir, "cache_mode", config.CacheMode, "development", config.Development)
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// WithTokens returns an Engine sharing everything with e except the token
// source, typically one bound to the current request.
func (e *Engine) WithTokens(tokens TokenSource) *Engine {
	cp := *e
	cp.tokens = tokens
	return &cp
}

// Load renders view with bindings into w. Bindings are validated before any
// file is touched. When the view or a @print binding is missing, an error
// panel is written to w after whatever output was already produced.
func (e *Engine) Load(w io.Writer, view string, bindings map[string]any) error {
	err := e.load(w, view, bindings, 0)
	if panel := errorPanel(err); panel != "" {
		_, _ = io.WriteString(w, panel)
	}
	if err != nil {
		e.logger.Debug("view failed", "view", view, "status", StatusCode(err), "error", err)
	}
	return err
}

// LoadString is Load into a string.
func (e *Engine) LoadString(view string, bindings map[string]any) (string, error) {
	var buf bytes.Buffer
	err := e.Load(&buf, view, bindings)
	return buf.String(), err
}

func (e *Engine) load(w io.Writer, view string, bindings map[string]any, depth int) error {
	if depth > e.config.MaxIncludeDepth {
		return fmt.Errorf("%w: %s at depth %d", ErrIncludeDepth, view, depth)
	}
	start := time.Now()

	ctx, err := NewContext(bindings)
	if err != nil {
		return err
	}
	art, err := e.Artifact(view)
	if err != nil {
		return err
	}
	if err := e.paths.EnsureDir(filepath.Dir(art.Path)); err != nil {
		return &ArtifactError{Op: "mkdir", Path: filepath.Dir(art.Path), Err: err}
	}

	unit, err := e.compileUnit(art)
	if err != nil {
		return err
	}

	r := &renderer{engine: e, out: w, depth: depth}
	tmpl, err := e.prepare(art, unit, r.funcMap())
	if err != nil {
		return err
	}
	r.tmpl = tmpl

	err = r.execute(ctx)
	e.stats.rendered(art.View)
	e.logger.Debug("view rendered",
		"view", art.View, "artifact", art.Path, "depth", depth, "duration", time.Since(start))
	if err != nil {
		return fmt.Errorf("render %s: %w", art.View, err)
	}
	return nil
}

// Artifact resolves the source and artifact paths of a view.
func (e *Engine) Artifact(view string) (Artifact, error) {
	id, err := normalizeView(view, e.config.SourceExt)
	if err != nil {
		return Artifact{}, err
	}
	source := id + e.config.SourceExt
	sourcePath, err := e.paths.Resolve("/" + e.config.ViewsDir + "/" + source)
	if err != nil {
		return Artifact{}, err
	}
	path, err := e.builds.ArtifactPath(id)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{View: id, Source: source, SourcePath: sourcePath, Path: path}, nil
}

func (e *Engine) readSource(art Artifact) ([]byte, error) {
	src, err := fs.ReadFile(e.sources, art.Source)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &TemplateNotFoundError{View: art.View, Path: art.SourcePath}
	}
	if err != nil {
		return nil, &ArtifactError{Op: "read", Path: art.SourcePath, Err: err}
	}
	return src, nil
}

// compileUnit compiles the source of art (unless the cache holds it for the
// same source hash) and makes sure the artifact on disk matches.
func (e *Engine) compileUnit(art Artifact) (*compiledUnit, error) {
	src, err := e.readSource(art)
	if err != nil {
		return nil, err
	}
	sum := hashBytes(src)

	var unit *compiledUnit
	if e.cache != nil {
		if cached, ok := e.cache.Get(art.View); ok && cached.SourceHash == sum {
			e.stats.hit()
			unit = cached
		}
	}
	if unit == nil {
		unit = &compiledUnit{SourceHash: sum, Artifact: e.compiler.Compile(string(src))}
		e.stats.compiled()
	}

	written, err := e.builds.Persist(art.Path, unit.Artifact)
	if err != nil {
		return nil, err
	}
	if written {
		e.stats.wrote()
		e.logger.Debug("artifact written", "view", art.View, "artifact", art.Path)
	}
	if unit.Template != nil {
		return unit, nil
	}

	stored, err := e.builds.Read(art.Path)
	if err != nil {
		return nil, err
	}
	unit.Artifact = stored
	return unit, nil
}

// prepare returns a template ready to execute with funcs bound. In source
// cache mode the parsed artifact is kept and cloned per render.
func (e *Engine) prepare(art Artifact, unit *compiledUnit, funcs template.FuncMap) (*template.Template, error) {
	if e.cache == nil {
		tmpl, err := parseArtifact(art.View, unit.Artifact, funcs)
		if err != nil {
			return nil, &CompileError{View: art.View, Artifact: art.Path, Err: err}
		}
		return tmpl, nil
	}
	if unit.Template == nil {
		tmpl, err := parseArtifact(art.View, unit.Artifact, (&renderer{}).funcMap())
		if err != nil {
			return nil, &CompileError{View: art.View, Artifact: art.Path, Err: err}
		}
		unit.Template = tmpl
		if err := e.cache.Set(art.View, unit); err != nil {
			e.logger.Warn("could not cache view", "view", art.View, "error", err)
		}
	}
	tmpl, err := unit.Template.Clone()
	if err != nil {
		return nil, &CompileError{View: art.View, Artifact: art.Path, Err: err}
	}
	return tmpl.Funcs(funcs), nil
}

// Template returns the artifact a view compiles to without writing it.
func (e *Engine) Template(view string) (string, error) {
	return e.Trace(view, nil)
}

// Trace compiles a view and reports every intermediate stage to fn.
func (e *Engine) Trace(view string, fn func(stage, out string)) (string, error) {
	art, err := e.Artifact(view)
	if err != nil {
		return "", err
	}
	src, err := e.readSource(art)
	if err != nil {
		return "", err
	}
	if fn == nil {
		return e.compiler.Compile(string(src)), nil
	}
	return e.compiler.Trace(string(src), fn), nil
}

// Views lists the ids of every view source.
func (e *Engine) Views() ([]string, error) {
	var views []string
	err := fs.WalkDir(e.sources, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, e.config.SourceExt) {
			views = append(views, strings.TrimSuffix(path, e.config.SourceExt))
		}
		return nil
	})
	sort.Strings(views)
	return views, err
}

// ClearCacheFor forgets a view: its cache entry and its artifact.
func (e *Engine) ClearCacheFor(view string) {
	id, err := normalizeView(view, e.config.SourceExt)
	if err != nil {
		return
	}
	if e.cache != nil {
		e.cache.Remove(id)
	}
	if err := e.builds.Remove(id); err != nil {
		e.logger.Warn("could not remove artifact", "view", id, "error", err)
	}
}

// ClearCache empties the in-memory cache.
func (e *Engine) ClearCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

// Clean empties the in-memory cache and deletes the build directory.
func (e *Engine) Clean() error {
	e.ClearCache()
	return e.builds.Clean()
}

// CachedViews returns the views held by the in-memory cache.
func (e *Engine) CachedViews() []string {
	if e.cache != nil {
		return e.cache.GetKeys()
	}
	return []string{}
}

// Close stops the cache cleanup goroutine and the file watcher.
func (e *Engine) Close() error {
	if e.cache != nil {
		e.cache.Stop()
	}
	if e.watcher != nil {
		return e.watcher.Stop()
	}
	return nil
}

type engineStats struct {
	mu       sync.Mutex
	renders  int
	compiles int
	writes   int
	hits     int
	lastView string
}

func (s *engineStats) rendered(view string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renders++
	s.lastView = view
}

func (s *engineStats) compiled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compiles++
}

func (s *engineStats) wrote() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
}

func (s *engineStats) hit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits++
}

// Stats reports render counters and, in source cache mode, cache occupancy.
func (e *Engine) Stats() map[string]any {
	e.stats.mu.Lock()
	out := map[string]any{
		"renders":    e.stats.renders,
		"compiles":   e.stats.compiles,
		"writes":     e.stats.writes,
		"cache_hits": e.stats.hits,
		"last_view":  e.stats.lastView,
		"cache_mode": e.config.CacheMode,
	}
	e.stats.mu.Unlock()
	if e.cache != nil {
		for k, v := range e.cache.Stats() {
			out[k] = v
		}
	}
	return out
}
