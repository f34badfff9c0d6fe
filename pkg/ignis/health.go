package ignis

import (
	"net/http"
	"time"
)

// HealthConfig holds configuration for the Health middleware.
type HealthConfig struct {
	// Path is the endpoint path for health checks (default: "/health")
	Path string
	// Handler is a custom health check handler (optional)
	Handler func(ctx *Context) error
}

var startTime = time.Now()

// Health returns a middleware that answers health checks on config.Path.
func Health(config HealthConfig) Middleware {
	if config.Path == "" {
		config.Path = "/health"
	}
	if config.Handler == nil {
		config.Handler = func(ctx *Context) error {
			return ctx.JSON(http.StatusOK, map[string]any{
				"status":    "ok",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
				"uptime":    time.Since(startTime).String(),
				"protocol":  ctx.Kind().String(),
			})
		}
	}

	return NewMiddleware("health", Version, func(ctx *Context, next Next) error {
		if ctx.Request.URLPath() == config.Path {
			return config.Handler(ctx)
		}
		return next()
	})
}
