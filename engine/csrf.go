package engine

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gorilla/csrf"
)

// TokenSource supplies the token printed by @csrf.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken always returns itself.
type StaticToken string

func (t StaticToken) Token() (string, error) { return string(t), nil }

type randomTokens struct {
	once  sync.Once
	token string
}

// NewRandomTokenSource returns a source that generates one random token on
// first use and keeps returning it. It is the fallback when no request-bound
// source is configured.
func NewRandomTokenSource() TokenSource {
	return &randomTokens{}
}

func (r *randomTokens) Token() (string, error) {
	r.once.Do(func() { r.token = uuid.NewString() })
	return r.token, nil
}

var errNoToken = errors.New("no csrf token in request")

// RequestTokens reads the token gorilla/csrf stored in the request.
type RequestTokens struct {
	Request *http.Request
}

func (t RequestTokens) Token() (string, error) {
	if t.Request == nil {
		return "", errNoToken
	}
	if token := csrf.Token(t.Request); token != "" {
		return token, nil
	}
	return "", errNoToken
}

// FiberTokens reads the token the Fiber csrf middleware stored under Key in
// the request locals.
type FiberTokens struct {
	Ctx *fiber.Ctx
	Key string
}

func (t FiberTokens) Token() (string, error) {
	if t.Ctx == nil {
		return "", errNoToken
	}
	key := t.Key
	if key == "" {
		key = "csrf"
	}
	if token, ok := t.Ctx.Locals(key).(string); ok && token != "" {
		return token, nil
	}
	return "", errNoToken
}
