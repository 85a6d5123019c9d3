package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBindings(t *testing.T) {
	got, err := parseBindings([]string{"name=Ann", " title =a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ann", "title": "a=b", "empty": ""}, got)

	_, err = parseBindings([]string{"novalue"})
	assert.Error(t, err)
}

func writeView(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, "resources", filepath.FromSlash(name)+".template.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(context.Background(), append([]string{"dlview", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestRenderCommand(t *testing.T) {
	root := t.TempDir()
	writeView(t, root, "pages/hello", "Hello {{ $name }}")

	out, err := runApp(t, "--root", root, "render", "--set", "name=<Ann>", "pages.hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello &lt;Ann&gt;", out)
	assert.FileExists(t, filepath.Join(root, ".build", "pages", "hello.tmpl"))
}

func TestCompileCommand(t *testing.T) {
	root := t.TempDir()
	writeView(t, root, "pages/hello", "Hello {{ $name }}")

	out, err := runApp(t, "--root", root, "compile", "pages/hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello {% escape $.name %}\n", out)

	out, err = runApp(t, "--root", root, "compile", "--trace", "pages/hello")
	require.NoError(t, err)
	assert.Contains(t, out, "--- artifact ---")

	_, err = runApp(t, "--root", root, "compile")
	assert.Error(t, err)
}

func TestCheckAndCleanCommands(t *testing.T) {
	root := t.TempDir()
	writeView(t, root, "pages/hello", "hi")
	writeView(t, root, "pages/bye", "bye")

	out, err := runApp(t, "--root", root, "check")
	require.NoError(t, err)
	assert.Equal(t, "2 views ok\n", out)

	_, err = runApp(t, "--root", root, "render", "pages/hello")
	require.NoError(t, err)
	require.DirExists(t, filepath.Join(root, ".build"))

	_, err = runApp(t, "--root", root, "clean")
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(root, ".build"))

	writeView(t, root, "pages/broken", "@if($a) open")
	_, err = runApp(t, "--root", root, "check")
	assert.ErrorContains(t, err, "pages/broken")
}
