package ignis

import "github.com/google/uuid"

// RequestIDKey is the context key holding the request ID.
const RequestIDKey = "request-id"

// RequestID returns a middleware that adds a unique request ID to each request.
// An incoming X-Request-ID is kept; otherwise a UUIDv4 is generated.
// The ID is stored in the context and echoed in the response headers.
func RequestID() Middleware {
	return NewMiddleware("request-id", Version, func(ctx *Context, next Next) error {
		requestID := ctx.Request.Headers.Get("x-request-id")
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		ctx.Set(RequestIDKey, requestID)
		ctx.Response.SetHeader("X-Request-ID", requestID)

		return next()
	})
}
