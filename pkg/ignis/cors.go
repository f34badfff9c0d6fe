package ignis

import (
	"net/http"
	"strconv"
)

// CORSConfig holds CORS middleware configuration.
type CORSConfig struct {
	AllowOrigin      string
	AllowMethods     string
	AllowHeaders     string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig returns sensible CORS defaults.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:      "*",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS, PATCH",
		AllowHeaders:     "Accept, Content-Type, Content-Length, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing.
// It sets appropriate CORS headers and answers preflight OPTIONS requests.
func CORS(config CORSConfig) Middleware {
	if config.AllowOrigin == "" {
		config.AllowOrigin = "*"
	}
	if config.AllowMethods == "" {
		config.AllowMethods = "GET, POST, PUT, DELETE, OPTIONS, PATCH"
	}
	if config.AllowHeaders == "" {
		config.AllowHeaders = "Accept, Content-Type, Content-Length, Authorization"
	}

	return NewMiddleware("cors", Version, func(ctx *Context, next Next) error {
		res := &ctx.Response
		res.SetHeader("Access-Control-Allow-Origin", config.AllowOrigin)
		res.SetHeader("Access-Control-Allow-Methods", config.AllowMethods)
		res.SetHeader("Access-Control-Allow-Headers", config.AllowHeaders)

		if config.AllowCredentials {
			res.SetHeader("Access-Control-Allow-Credentials", "true")
		}

		if config.MaxAge > 0 {
			res.SetHeader("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
		}

		if ctx.Request.Method == http.MethodOptions {
			return res.NoContent(http.StatusNoContent)
		}

		return next()
	})
}
