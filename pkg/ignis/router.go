package ignis

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// paramPrefix namespaces route parameters among the context values.
const paramPrefix = "ignis.param."

// HandlerFunc handles a routed request.
type HandlerFunc func(ctx *Context) error

// Router is a terminal middleware that dispatches requests to handlers by method and path.
// Paths support ":name" parameters and a trailing "*name" wildcard. Requests that match no
// route continue down the pipeline unless a NotFound handler is set.
type Router struct {
	routes       map[string]*routeNode
	middlewares  []Middleware
	notFound     HandlerFunc
	errorHandler func(ctx *Context, err error) error
}

type routeNode struct {
	path      string
	handler   HandlerFunc
	children  map[string]*routeNode
	isParam   bool
	paramName string
	isWild    bool
}

// NewRouter creates a new Router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]*routeNode)}
}

// Name implements Middleware.
func (r *Router) Name() string { return "router" }

// Version implements Middleware.
func (r *Router) Version() string { return Version }

// Use adds middleware that wraps every matched route handler.
func (r *Router) Use(middlewares ...Middleware) {
	r.middlewares = append(r.middlewares, middlewares...)
}

// NotFound sets the handler for requests that match no route. Without one, unmatched
// requests are passed to the next middleware.
func (r *Router) NotFound(handler HandlerFunc) {
	r.notFound = handler
}

// ErrorHandler sets a function that renders errors returned by route handlers.
// Errors it returns propagate to the pipeline.
func (r *Router) ErrorHandler(handler func(ctx *Context, err error) error) {
	r.errorHandler = handler
}

// DefaultErrorHandler renders HTTPError values as JSON or text depending on Accept.
func DefaultErrorHandler(ctx *Context, err error) error {
	code, message := statusOf(err)
	if message == "" {
		message = http.StatusText(code)
	}
	if strings.Contains(ctx.Request.Headers.Get("accept"), "application/json") {
		body := map[string]any{"error": message, "code": code}
		if he, ok := err.(*HTTPError); ok && he.Details != nil {
			body["details"] = he.Details
		}
		return ctx.JSON(code, body)
	}
	return ctx.String(code, "%s", message)
}

// GET registers a handler for GET requests.
func (r *Router) GET(path string, handler HandlerFunc) {
	r.addRoute(http.MethodGet, path, handler)
}

// POST registers a handler for POST requests.
func (r *Router) POST(path string, handler HandlerFunc) {
	r.addRoute(http.MethodPost, path, handler)
}

// PUT registers a handler for PUT requests.
func (r *Router) PUT(path string, handler HandlerFunc) {
	r.addRoute(http.MethodPut, path, handler)
}

// DELETE registers a handler for DELETE requests.
func (r *Router) DELETE(path string, handler HandlerFunc) {
	r.addRoute(http.MethodDelete, path, handler)
}

// PATCH registers a handler for PATCH requests.
func (r *Router) PATCH(path string, handler HandlerFunc) {
	r.addRoute(http.MethodPatch, path, handler)
}

// HEAD registers a handler for HEAD requests.
func (r *Router) HEAD(path string, handler HandlerFunc) {
	r.addRoute(http.MethodHead, path, handler)
}

// OPTIONS registers a handler for OPTIONS requests.
func (r *Router) OPTIONS(path string, handler HandlerFunc) {
	r.addRoute(http.MethodOptions, path, handler)
}

// Handle registers a handler for the specified HTTP method.
func (r *Router) Handle(method, path string, handler HandlerFunc) {
	r.addRoute(method, path, handler)
}

func (r *Router) addRoute(method, path string, handler HandlerFunc) {
	if path == "" || path[0] != '/' {
		panic("path must begin with '/'")
	}
	if handler == nil {
		panic(fmt.Sprintf("nil handler for %s %s", method, path))
	}

	root, ok := r.routes[method]
	if !ok {
		root = &routeNode{
			path:     "/",
			children: make(map[string]*routeNode),
		}
		r.routes[method] = root
	}

	current := root
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		if segment == "" {
			continue
		}

		isParam := strings.HasPrefix(segment, ":")
		isWild := strings.HasPrefix(segment, "*")

		key := segment
		if isParam || isWild {
			key = segment[0:1]
		}

		child, ok := current.children[key]
		if !ok {
			child = &routeNode{
				path:     segment,
				children: make(map[string]*routeNode),
				isParam:  isParam,
				isWild:   isWild,
			}
			if isParam || isWild {
				child.paramName = segment[1:]
			}
			current.children[key] = child
		}

		current = child
	}

	current.handler = handler
}

// OnRequest implements Middleware.
func (r *Router) OnRequest(ctx *Context, next Next) error {
	method := ctx.Request.Method
	path := ctx.Request.URLPath()

	handler := r.find(ctx, method, path)
	if handler == nil && method == http.MethodHead {
		handler = r.find(ctx, http.MethodGet, path)
	}
	if handler == nil {
		if allowed := r.allowed(path); len(allowed) > 0 {
			ctx.Response.SetHeader("allow", strings.Join(allowed, ", "))
			return ctx.String(http.StatusMethodNotAllowed, "Method Not Allowed")
		}
		if r.notFound == nil {
			return next()
		}
		handler = r.notFound
	}

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = wrap(r.middlewares[i], handler)
	}

	err := handler(ctx)
	if err != nil && r.errorHandler != nil && !ctx.Response.Committed() {
		return r.errorHandler(ctx, err)
	}
	return err
}

// find walks the trie for method and stores matched parameters on ctx.
func (r *Router) find(ctx *Context, method, path string) HandlerFunc {
	root, ok := r.routes[method]
	if !ok {
		return nil
	}

	trimmed := strings.Trim(path, "/")
	current := root
	start := 0
	for i := 0; i <= len(trimmed); i++ {
		if i < len(trimmed) && trimmed[i] != '/' {
			continue
		}
		segment := trimmed[start:i]
		segStart := start
		start = i + 1
		if segment == "" {
			continue
		}

		if child, ok := current.children[segment]; ok {
			current = child
			continue
		}

		if child, ok := current.children[":"]; ok {
			if ctx != nil {
				ctx.Set(paramPrefix+child.paramName, segment)
			}
			current = child
			continue
		}

		if child, ok := current.children["*"]; ok {
			// Wildcard consumes the rest of the path.
			if ctx != nil {
				ctx.Set(paramPrefix+child.paramName, trimmed[segStart:])
			}
			current = child
			break
		}

		return nil
	}

	if current.handler == nil {
		if wild, ok := current.children["*"]; ok && wild.handler != nil {
			if ctx != nil {
				ctx.Set(paramPrefix+wild.paramName, "")
			}
			return wild.handler
		}
	}
	return current.handler
}

// allowed lists the methods with a route matching path.
func (r *Router) allowed(path string) []string {
	var methods []string
	for method := range r.routes {
		if r.find(nil, method, path) != nil {
			methods = append(methods, method)
		}
	}
	sort.Strings(methods)
	return methods
}

func wrap(m Middleware, h HandlerFunc) HandlerFunc {
	return func(ctx *Context) error {
		return m.OnRequest(ctx, func() error { return h(ctx) })
	}
}

// Group allows organizing routes with a common path prefix and shared middleware stack.
type Group struct {
	router      *Router
	prefix      string
	middlewares []Middleware
}

// Group creates a new route group with the specified path prefix and optional middleware.
func (r *Router) Group(prefix string, middlewares ...Middleware) *Group {
	return &Group{
		router:      r,
		prefix:      prefix,
		middlewares: middlewares,
	}
}

// Use adds one or more middleware functions to the route group's middleware stack.
func (g *Group) Use(middlewares ...Middleware) {
	g.middlewares = append(g.middlewares, middlewares...)
}

// GET registers a handler for GET requests in the group.
func (g *Group) GET(path string, handler HandlerFunc) {
	g.Handle(http.MethodGet, path, handler)
}

// POST registers a handler for POST requests in the group.
func (g *Group) POST(path string, handler HandlerFunc) {
	g.Handle(http.MethodPost, path, handler)
}

// PUT registers a handler for PUT requests in the group.
func (g *Group) PUT(path string, handler HandlerFunc) {
	g.Handle(http.MethodPut, path, handler)
}

// DELETE registers a handler for DELETE requests in the group.
func (g *Group) DELETE(path string, handler HandlerFunc) {
	g.Handle(http.MethodDelete, path, handler)
}

// PATCH registers a handler for PATCH requests in the group.
func (g *Group) PATCH(path string, handler HandlerFunc) {
	g.Handle(http.MethodPatch, path, handler)
}

// Handle registers a handler for the specified HTTP method in the group.
func (g *Group) Handle(method, path string, handler HandlerFunc) {
	for i := len(g.middlewares) - 1; i >= 0; i-- {
		handler = wrap(g.middlewares[i], handler)
	}
	g.router.addRoute(method, g.prefix+path, handler)
}

// Group creates a nested group with combined prefixes and middleware.
func (g *Group) Group(prefix string, middlewares ...Middleware) *Group {
	combined := make([]Middleware, 0, len(g.middlewares)+len(middlewares))
	combined = append(combined, g.middlewares...)
	return &Group{
		router:      g.router,
		prefix:      g.prefix + prefix,
		middlewares: append(combined, middlewares...),
	}
}

// Param retrieves a route parameter by name.
func Param(ctx *Context, name string) string {
	return ctx.Param(name)
}

// MustParam retrieves a route parameter or panics if not found.
func MustParam(ctx *Context, name string) string {
	val := ctx.Param(name)
	if val == "" {
		panic(fmt.Sprintf("parameter %q not found", name))
	}
	return val
}
