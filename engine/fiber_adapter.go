package engine

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"
)

// FiberContextKey is the binding under which RenderWithCtx exposes the
// request to views.
const FiberContextKey = "fiber"

// FiberViewsAdapter implements fiber.Views on top of an Engine.
type FiberViewsAdapter struct {
	Engine *Engine
	// CSRFContextKey is the Locals key the Fiber csrf middleware stores its
	// token under. Defaults to "csrf".
	CSRFContextKey string
}

// Render implements fiber.Views. Fiber's layout argument is ignored; views
// pick their parent with @base.
func (v *FiberViewsAdapter) Render(w io.Writer, name string, data interface{}, layout ...string) error {
	bindings, err := bindingsFrom(data)
	if err != nil {
		return err
	}
	return v.Engine.Load(w, name, bindings)
}

// Load implements fiber.Views by compiling every view up front.
func (v *FiberViewsAdapter) Load() error {
	return v.Engine.PreloadTemplates()
}

// WithFiberContext returns a copy of data with a SafeFiberCtx under the
// "fiber" key.
func WithFiberContext(c *fiber.Ctx, data interface{}) map[string]interface{} {
	bindings, err := bindingsFrom(data)
	if err != nil {
		bindings = map[string]interface{}{"data": data}
	}
	nm := make(map[string]interface{}, len(bindings)+1)
	for k, val := range bindings {
		nm[k] = val
	}
	nm[FiberContextKey] = NewSafeFiberCtx(c)
	return nm
}

// RenderWithCtx renders a view for a Fiber handler with the request context
// and the request's csrf token available. The response status follows
// StatusCode and the body is sent even on failure so error panels reach the
// client.
func (v *FiberViewsAdapter) RenderWithCtx(c *fiber.Ctx, name string, data interface{}) error {
	var buf bytes.Buffer
	eng := v.Engine.WithTokens(FiberTokens{Ctx: c, Key: v.CSRFContextKey})
	err := eng.Load(&buf, name, WithFiberContext(c, data))
	if err != nil {
		eng.logger.Error("render failed", "view", name, "path", c.Path(), "error", err)
		if buf.Len() == 0 {
			return fiber.NewError(StatusCode(err), err.Error())
		}
	}
	c.Status(StatusCode(err))
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

// bindingsFrom accepts the data shapes handlers pass to Render.
func bindingsFrom(data interface{}) (map[string]interface{}, error) {
	switch d := data.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return d, nil
	case fiber.Map:
		return d, nil
	case Context:
		return d, nil
	}
	return nil, fmt.Errorf("unsupported view data %T: want a map keyed by binding name", data)
}
