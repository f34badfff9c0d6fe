package ignis

import (
	"errors"
	"runtime/debug"
	"sync"
)

// Version is reported by the built-in middleware.
const Version = "0.1.0"

// Next invokes the rest of the pipeline.
type Next func() error

// Middleware is one unit of request handling. Instances are shared by concurrent
// requests and must not keep per-request state in their fields.
type Middleware interface {
	Name() string
	Version() string
	OnRequest(ctx *Context, next Next) error
}

// ErrorHandler is implemented by middleware that want to observe their own failures.
// OnError is called only for errors (and panics) that originate in that middleware.
type ErrorHandler interface {
	OnError(ctx *Context, err error)
}

// MiddlewareFunc is a function-based middleware body.
type MiddlewareFunc func(ctx *Context, next Next) error

type funcMiddleware struct {
	name    string
	version string
	fn      MiddlewareFunc
}

func (m *funcMiddleware) Name() string    { return m.name }
func (m *funcMiddleware) Version() string { return m.version }
func (m *funcMiddleware) OnRequest(ctx *Context, next Next) error {
	return m.fn(ctx, next)
}

type funcMiddlewareWithError struct {
	funcMiddleware
	onError func(ctx *Context, err error)
}

func (m *funcMiddlewareWithError) OnError(ctx *Context, err error) {
	m.onError(ctx, err)
}

// NewMiddleware wraps fn as a Middleware.
func NewMiddleware(name, version string, fn MiddlewareFunc) Middleware {
	return &funcMiddleware{name: name, version: version, fn: fn}
}

// NewMiddlewareWithErrorHandler wraps fn as a Middleware that also implements ErrorHandler.
func NewMiddlewareWithErrorHandler(name, version string, fn MiddlewareFunc, onError func(ctx *Context, err error)) Middleware {
	return &funcMiddlewareWithError{
		funcMiddleware: funcMiddleware{name: name, version: version, fn: fn},
		onError:        onError,
	}
}

// Pipeline is the ordered middleware chain of one sub-server.
type Pipeline struct {
	mu         sync.RWMutex
	middleware []Middleware
}

// NewPipeline creates a pipeline with the given middleware in invocation order.
func NewPipeline(middleware ...Middleware) *Pipeline {
	p := &Pipeline{}
	p.Use(middleware...)
	return p
}

// Use appends middleware. Registration order is invocation order.
func (p *Pipeline) Use(middleware ...Middleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range middleware {
		if m != nil {
			p.middleware = append(p.middleware, m)
		}
	}
}

// Len returns the number of registered middleware.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.middleware)
}

// Dispatch runs ctx through the chain. Calling next from the last middleware marks
// the response unhandled. A failing middleware stops the chain; the returned error
// is a *MiddlewareError naming it.
func (p *Pipeline) Dispatch(ctx *Context) error {
	p.mu.RLock()
	chain := p.middleware
	p.mu.RUnlock()

	var run func(i int) error
	run = func(i int) error {
		if i == len(chain) {
			ctx.Response.unhandled = true
			return nil
		}
		return invoke(chain[i], ctx, func() error { return run(i + 1) })
	}
	return run(0)
}

func invoke(m Middleware, ctx *Context, next Next) error {
	err := call(m, ctx, next)
	if err == nil {
		return nil
	}
	var me *MiddlewareError
	if errors.As(err, &me) {
		// Raised downstream and already attributed.
		return err
	}
	if eh, ok := m.(ErrorHandler); ok {
		eh.OnError(ctx, err)
	}
	return &MiddlewareError{Name: m.Name(), Err: err}
}

func call(m Middleware, ctx *Context, next Next) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return m.OnRequest(ctx, next)
}
