package ignis

import (
	"bufio"
	"context"
	"fmt"
	"net/http"

	"github.com/albertbausili/ignis/internal/h1"
	"github.com/albertbausili/ignis/internal/h2"
	"github.com/albertbausili/ignis/internal/transport"
)

// Context is a poolable request/response pair for a single cycle.
// It must not be retained after the pipeline returns.
type Context struct {
	Request  Request
	Response Response

	ctx    context.Context
	values map[string]any

	// One adapter per transport kind; the bound one is picked from the connection's tag.
	h1w h1.ResponseWriter
	h2w h2.ResponseWriter
}

func newContext() *Context {
	c := &Context{}
	c.Reset()
	return c
}

// Reset clears all per-cycle state. It is idempotent.
func (c *Context) Reset() {
	c.Request.reset()
	c.Response.reset()
	c.ctx = context.Background()
	clear(c.values)
	c.h1w.Reset()
	c.h2w.Reset()
}

// bindH1 selects the HTTP/1.1 adapter for this cycle.
func (c *Context) bindH1(bw *bufio.Writer) {
	c.h1w.Prepare(bw, c.Request.Method, c.Request.Version, c.Request.KeepAlive)
	c.bind(transport.KindH1)
}

// bindH2 selects the HTTP/2 adapter for this cycle.
func (c *Context) bindH2(w http.ResponseWriter) {
	c.h2w.Prepare(w, c.Request.Method)
	c.bind(transport.KindH2)
}

func (c *Context) bind(kind transport.Kind) {
	switch kind {
	case transport.KindH1:
		c.Response.transport = &c.h1w
	case transport.KindH2:
		c.Response.transport = &c.h2w
	}
}

// Kind reports the protocol the request arrived on.
func (c *Context) Kind() transport.Kind {
	return c.Response.Kind()
}

// Context returns the request scoped context.Context.
func (c *Context) Context() context.Context {
	return c.ctx
}

// SetContext replaces the request scoped context.Context.
func (c *Context) SetContext(ctx context.Context) {
	c.ctx = ctx
}

// Set stores a key-value pair in the context.
func (c *Context) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any, 8)
	}
	c.values[key] = value
}

// Get retrieves a value from the context by key.
func (c *Context) Get(key string) (any, bool) {
	val, ok := c.values[key]
	return val, ok
}

// MustGet retrieves a value from the context by key, panicking if not found.
func (c *Context) MustGet(key string) any {
	if val, ok := c.Get(key); ok {
		return val
	}
	panic(fmt.Sprintf("key %q not found in context", key))
}

// Param returns the value of a route parameter set by the Router.
func (c *Context) Param(name string) string {
	if val, ok := c.Get(paramPrefix + name); ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// String sends a formatted text response with the given status code.
func (c *Context) String(status int, format string, values ...any) error {
	return c.Response.String(status, format, values...)
}

// JSON sends a JSON response with the given status code.
func (c *Context) JSON(status int, v any) error {
	return c.Response.JSON(status, v)
}

// NoContent sends a response with no body content.
func (c *Context) NoContent(status int) error {
	return c.Response.NoContent(status)
}
