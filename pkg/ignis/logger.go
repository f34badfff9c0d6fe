package ignis

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig defines the configuration options for the Logger middleware.
type LoggerConfig struct {
	// Logger receives one entry per request (defaults to a production zap logger)
	Logger *zap.Logger
	// SkipPaths lists paths to skip logging (e.g., health checks)
	SkipPaths []string
	// CustomFields allows adding custom fields to each log entry
	CustomFields func(ctx *Context) []zap.Field
}

// Logger returns a middleware that writes one structured access log entry per request.
func Logger(config LoggerConfig) Middleware {
	if config.Logger == nil {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		config.Logger = l
	}
	log := config.Logger.Named("access")

	skipMap := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}

	return NewMiddleware("logger", Version, func(ctx *Context, next Next) error {
		if skipMap[ctx.Request.URLPath()] {
			return next()
		}

		start := time.Now()
		err := next()

		status := ctx.Response.Status()
		if err != nil && !ctx.Response.Committed() {
			status, _ = statusOf(err)
		}
		fields := []zap.Field{
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.Path),
			zap.String("proto", ctx.Kind().String()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Int64("bytes", ctx.Response.Written()),
			zap.String("remote", ctx.Request.RemoteAddr),
		}
		if reqID, ok := ctx.Get(RequestIDKey); ok {
			if s, ok := reqID.(string); ok {
				fields = append(fields, zap.String("request_id", s))
			}
		}
		if config.CustomFields != nil {
			fields = append(fields, config.CustomFields(ctx)...)
		}

		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		level := zapcore.InfoLevel
		switch {
		case status >= 500, err != nil && status < 400:
			level = zapcore.ErrorLevel
		case status >= 400:
			level = zapcore.WarnLevel
		}
		if ce := log.Check(level, "request"); ce != nil {
			ce.Write(fields...)
		}
		return err
	})
}
