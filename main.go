package main

import (
	"context"
	"crypto/rand"
	"embed"
	"fmt"
	fsys "io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"dlview/engine"

	"github.com/gorilla/csrf"
	"github.com/urfave/cli/v3"
)

// Views bundled into the binary; files under ./resources on disk win.
//
//go:embed resources
var embeddedViews embed.FS

var version = "v0.3.0"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "dlview",
		Usage:   "Compile and render directive templates",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "HCL configuration file",
				Sources: cli.EnvVars("DLVIEW_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "root",
				Usage: "Project root holding the views and build directories",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve views over HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Usage:   "Listen address",
						Value:   ":5004",
						Sources: cli.EnvVars("DLVIEW_ADDR"),
					},
					&cli.BoolFlag{
						Name:  "dev",
						Usage: "Watch sources and forget changed views",
					},
				},
				Action: serveAction,
			},
			{
				Name:      "compile",
				Usage:     "Print the artifact a view compiles to",
				ArgsUsage: "<view>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "trace",
						Usage: "Print every compilation stage",
					},
				},
				Action: compileAction,
			},
			{
				Name:      "render",
				Usage:     "Render a view to stdout",
				ArgsUsage: "<view>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "set",
						Aliases: []string{"s"},
						Usage:   "Binding as name=value (repeatable)",
					},
				},
				Action: renderAction,
			},
			{
				Name:   "check",
				Usage:  "Compile every view and report invalid artifacts",
				Action: checkAction,
			},
			{
				Name:   "clean",
				Usage:  "Delete the build directory",
				Action: cleanAction,
			},
		},
	}
}

// newEngine builds the engine from defaults, the config file, DLVIEW_*
// variables and flags, in that order.
func newEngine(cmd *cli.Command, development bool) (*engine.Engine, error) {
	cfg := engine.DefaultConfig()
	if path := cmd.String("config"); path != "" {
		var err error
		if cfg, err = engine.LoadConfigFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if cmd.IsSet("root") {
		cfg.Root = cmd.String("root")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if development {
		cfg.Development = true
	}

	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: engine.ParseLevel(cfg.LogLevel)}))
	if sub, err := fsys.Sub(embeddedViews, "resources"); err == nil {
		cfg.EmbeddedFS = sub
	}
	return engine.NewEngine(cfg)
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	eng, err := newEngine(cmd, cmd.Bool("dev"))
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.ValidateAllTemplates(); err != nil {
		slog.Warn("template validation errors", "error", err)
	}
	if err := eng.PreloadTemplates(); err != nil {
		slog.Warn("preload warnings", "error", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", eng.Handler("pages.home", func(r *http.Request) map[string]any {
		return map[string]any{
			"title": "dlview",
			"user":  map[string]any{"name": "John Doe", "admin": true},
			"items": []map[string]any{
				{"name": "Item 1", "price": 10, "html": "<strong>Item 1</strong>"},
				{"name": "Item 2", "price": 20, "html": "<em>Item 2</em>"},
			},
			"notes": "Rendered at **" + time.Now().Format(time.Kitchen) + "**.",
		}
	}))
	mux.HandleFunc("GET /view/{name...}", func(w http.ResponseWriter, r *http.Request) {
		bindings := make(map[string]any)
		for k, v := range r.URL.Query() {
			bindings[k] = strings.Join(v, ",")
		}
		eng.ServeView(w, r, r.PathValue("name"), bindings)
	})
	mux.HandleFunc("GET /stats", eng.StatsHandler())
	mux.HandleFunc("POST /clear-cache", func(w http.ResponseWriter, r *http.Request) {
		eng.ClearCache()
		fmt.Fprintln(w, "Cache cleared successfully")
	})

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	protect := csrf.Protect(key, csrf.Secure(false), csrf.FieldName(eng.Config().CSRFField))

	addr := cmd.String("addr")
	slog.Info("server running", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: protect(mux), ReadHeaderTimeout: 10 * time.Second}
	return srv.ListenAndServe()
}

func compileAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fmt.Errorf("usage: dlview compile [--trace] <view>")
	}
	eng, err := newEngine(cmd, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	w := cmd.Root().Writer
	if cmd.Bool("trace") {
		return eng.DebugTemplate(w, cmd.Args().First())
	}
	out, err := eng.Template(cmd.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintln(w, out)
	return nil
}

func renderAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fmt.Errorf("usage: dlview render [--set name=value ...] <view>")
	}
	bindings, err := parseBindings(cmd.StringSlice("set"))
	if err != nil {
		return err
	}
	eng, err := newEngine(cmd, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	return eng.Load(cmd.Root().Writer, cmd.Args().First(), bindings)
}

// parseBindings turns name=value pairs into render bindings.
func parseBindings(pairs []string) (map[string]any, error) {
	bindings := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("binding %q: want name=value", p)
		}
		bindings[strings.TrimSpace(name)] = value
	}
	return bindings, nil
}

func checkAction(ctx context.Context, cmd *cli.Command) error {
	eng, err := newEngine(cmd, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	views, err := eng.Views()
	if err != nil {
		return err
	}
	if err := eng.ValidateAllTemplates(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "%d views ok\n", len(views))
	return nil
}

func cleanAction(ctx context.Context, cmd *cli.Command) error {
	eng, err := newEngine(cmd, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	return eng.Clean()
}
