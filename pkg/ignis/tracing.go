package ignis

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig defines the configuration options for the OpenTelemetry tracing middleware.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "ignis")
	TracerName string
	// TracerProvider creates the tracer (default: the global provider)
	TracerProvider trace.TracerProvider
	// SkipPaths lists paths to skip tracing (e.g., health checks)
	SkipPaths []string
	// Propagator is the propagation format (default: TraceContext)
	Propagator propagation.TextMapPropagator
}

// DefaultTracingConfig returns a TracingConfig with sensible defaults.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		TracerName: "ignis",
		SkipPaths:  []string{"/health", "/metrics"},
		Propagator: propagation.TraceContext{},
	}
}

// Tracing returns a middleware that adds OpenTelemetry tracing to HTTP requests.
// It uses default configuration settings and skips tracing for health and metrics endpoints.
func Tracing() Middleware {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig returns a middleware that adds OpenTelemetry tracing with custom configuration.
// It creates spans for incoming requests and propagates trace context through headers.
func TracingWithConfig(config TracingConfig) Middleware {
	if config.TracerName == "" {
		config.TracerName = "ignis"
	}
	if config.Propagator == nil {
		config.Propagator = propagation.TraceContext{}
	}
	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}

	skipMap := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}

	tracer := config.TracerProvider.Tracer(config.TracerName)

	return NewMiddleware("tracing", Version, func(ctx *Context, next Next) error {
		req := &ctx.Request
		if skipMap[req.URLPath()] {
			return next()
		}

		parentCtx := config.Propagator.Extract(ctx.Context(), headerCarrier{headers: &req.Headers})

		spanCtx, span := tracer.Start(
			parentCtx,
			req.Method+" "+req.URLPath(),
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		scheme := "http"
		if req.TLS != nil {
			scheme = "https"
		}
		span.SetAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.target", req.Path),
			attribute.String("http.scheme", scheme),
			attribute.String("http.host", req.Host),
			attribute.String("http.flavor", req.Version),
			attribute.Int64("http.request_content_length", max(req.ContentLength, 0)),
		)

		if reqID, ok := ctx.Get(RequestIDKey); ok {
			if reqIDStr, ok := reqID.(string); ok {
				span.SetAttributes(attribute.String("http.request_id", reqIDStr))
			}
		}

		originalCtx := ctx.Context()
		ctx.SetContext(spanCtx)
		err := next()
		ctx.SetContext(originalCtx)

		status := ctx.Response.Status()
		if err != nil && !ctx.Response.Committed() {
			status, _ = statusOf(err)
		}
		span.SetAttributes(attribute.Int("http.status_code", status))

		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case status >= 500:
			span.SetStatus(codes.Error, "HTTP error")
		default:
			span.SetStatus(codes.Ok, "")
		}

		return err
	})
}

// headerCarrier adapts request Headers to propagation.TextMapCarrier.
type headerCarrier struct {
	headers *Headers
}

func (hc headerCarrier) Get(key string) string {
	return hc.headers.Get(key)
}

func (hc headerCarrier) Set(key, value string) {
	hc.headers.Set(key, value)
}

func (hc headerCarrier) Keys() []string {
	keys := make([]string, 0, hc.headers.Len())
	for _, h := range hc.headers.All() {
		keys = append(keys, h[0])
	}
	return keys
}
