package engine

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFiberApp(t *testing.T, views map[string]string) (*fiber.App, *FiberViewsAdapter) {
	t.Helper()
	eng := newTestEngine(t, views)
	adapter := &FiberViewsAdapter{Engine: eng}
	app := fiber.New(fiber.Config{Views: adapter})
	return app, adapter
}

func fiberGet(t *testing.T, app *fiber.App, target string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = "example.local"
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

// Views rendered through RenderWithCtx get a SafeFiberCtx under "fiber".
func TestFiberAdapterInjection(t *testing.T) {
	app, adapter := newFiberApp(t, map[string]string{
		"pages/home": `Host: {{ $fiber.Header("Host") }}
Query foo: {{ $fiber.Query("foo") }}
Path: {{ $fiber.Path() }} x={{ $x }}`,
	})
	app.Get("/pages/home", func(c *fiber.Ctx) error {
		return adapter.RenderWithCtx(c, "pages.home", map[string]interface{}{"x": 1})
	})

	code, body := fiberGet(t, app, "/pages/home?foo=bar")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Host: example.local")
	assert.Contains(t, body, "Query foo: bar")
	assert.Contains(t, body, "Path: /pages/home x=1")
}

func TestFiberAdapterCSRFFromLocals(t *testing.T) {
	app, adapter := newFiberApp(t, map[string]string{"form": `@csrf`})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("csrf", "fiber-token")
		return c.Next()
	})
	app.Get("/", func(c *fiber.Ctx) error {
		return adapter.RenderWithCtx(c, "form", nil)
	})

	_, body := fiberGet(t, app, "/")
	assert.Contains(t, body, `value="fiber-token"`)
}

func TestFiberAdapterRenderViaCtx(t *testing.T) {
	app, _ := newFiberApp(t, map[string]string{"pages/about": `<h1>{{ $title }}</h1>`})
	app.Get("/about", func(c *fiber.Ctx) error {
		return c.Render("pages/about", fiber.Map{"title": "About"})
	})

	code, body := fiberGet(t, app, "/about")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "<h1>About</h1>", body)
}

func TestFiberAdapterStatus(t *testing.T) {
	app, adapter := newFiberApp(t, map[string]string{"pages/title": `<h1>@print('title')</h1>`})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return adapter.RenderWithCtx(c, "pages/none", nil)
	})
	app.Get("/title", func(c *fiber.Ctx) error {
		return adapter.RenderWithCtx(c, "pages/title", nil)
	})
	app.Get("/reserved", func(c *fiber.Ctx) error {
		return adapter.RenderWithCtx(c, "pages/title", fiber.Map{"_GET": 1})
	})

	code, body := fiberGet(t, app, "/missing")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, "does not exist")

	code, body = fiberGet(t, app, "/title")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, body, "<h1>")
	assert.Contains(t, body, "The section")

	code, _ = fiberGet(t, app, "/reserved")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestBindingsFrom(t *testing.T) {
	for _, data := range []interface{}{nil, map[string]interface{}{"a": 1}, fiber.Map{"a": 1}, Context{"a": 1}} {
		_, err := bindingsFrom(data)
		assert.NoError(t, err, "%T", data)
	}
	_, err := bindingsFrom(struct{ A int }{1})
	assert.Error(t, err)
}

func TestSafeFiberCtxNil(t *testing.T) {
	var s *SafeFiberCtx
	assert.Equal(t, "", s.Header("Host"))
	assert.Equal(t, "", s.Query("q"))
	assert.Nil(t, s.Local("k"))
}
