package ignis

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		handler func(ctx *Context) error
		level   zapcore.Level
		status  int64
		logged  bool
	}{
		{"ok", "/ok", func(ctx *Context) error { return ctx.String(200, "fine") }, zapcore.InfoLevel, 200, true},
		{"client error", "/missing", func(ctx *Context) error { return ctx.String(404, "nope") }, zapcore.WarnLevel, 404, true},
		{"handler error", "/fail", func(*Context) error { return errors.New("broken") }, zapcore.ErrorLevel, 500, true},
		{"http error", "/teapot", func(*Context) error { return NewHTTPError(418, "teapot") }, zapcore.WarnLevel, 418, true},
		{"skipped", "/health", func(ctx *Context) error { return ctx.String(200, "ok") }, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			mw := Logger(LoggerConfig{
				Logger:    zap.New(core),
				SkipPaths: []string{"/health"},
				CustomFields: func(*Context) []zap.Field {
					return []zap.Field{zap.String("custom", "yes")}
				},
			})

			tc := newTestCycle("GET", tt.path)
			_ = tc.dispatch(t, RequestID(), mw, handlerOf(tt.handler))

			entries := logs.All()
			if !tt.logged {
				if len(entries) != 0 {
					t.Fatalf("logged %d entries for skipped path", len(entries))
				}
				return
			}
			if len(entries) != 1 {
				t.Fatalf("logged %d entries, want 1", len(entries))
			}
			e := entries[0]
			if e.Level != tt.level {
				t.Errorf("level = %v, want %v", e.Level, tt.level)
			}
			if e.LoggerName != "access" {
				t.Errorf("logger name = %q", e.LoggerName)
			}
			fields := e.ContextMap()
			if fields["status"] != tt.status {
				t.Errorf("status field = %v, want %d", fields["status"], tt.status)
			}
			if fields["path"] != tt.path || fields["method"] != "GET" || fields["proto"] != "h1" {
				t.Errorf("fields = %v", fields)
			}
			if fields["custom"] != "yes" {
				t.Error("custom field missing")
			}
			if _, ok := fields["request_id"]; !ok {
				t.Error("request_id field missing")
			}
		})
	}
}
