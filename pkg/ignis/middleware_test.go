package ignis

import (
	"errors"
	"strings"
	"testing"
)

func recordingMiddleware(name string, log *[]string) Middleware {
	return NewMiddleware(name, Version, func(_ *Context, next Next) error {
		*log = append(*log, name+">")
		err := next()
		*log = append(*log, "<"+name)
		return err
	})
}

func TestPipeline_Order(t *testing.T) {
	var log []string
	tc := newTestCycle("GET", "/")
	err := NewPipeline(
		recordingMiddleware("A", &log),
		recordingMiddleware("B", &log),
		recordingMiddleware("C", &log),
	).Dispatch(tc.ctx)
	if err != nil {
		t.Fatal(err)
	}

	want := "A> B> C> <C <B <A"
	if got := strings.Join(log, " "); got != want {
		t.Errorf("order = %q, want %q", got, want)
	}
	if !tc.ctx.Response.Unhandled() {
		t.Error("falling off the chain must mark the response unhandled")
	}
}

func TestPipeline_ShortCircuit(t *testing.T) {
	var log []string
	tc := newTestCycle("GET", "/")
	stop := NewMiddleware("stop", Version, func(ctx *Context, _ Next) error {
		log = append(log, "stop")
		return ctx.String(200, "done")
	})

	err := tc.dispatch(t, recordingMiddleware("A", &log), stop, recordingMiddleware("C", &log))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(log, " "); got != "A> stop <A" {
		t.Errorf("order = %q", got)
	}
	if tc.ctx.Response.Unhandled() {
		t.Error("short-circuited response marked unhandled")
	}
	if _, body := tc.response(t); body != "done" {
		t.Errorf("body = %q", body)
	}
}

func TestPipeline_ErrorAttribution(t *testing.T) {
	boom := errors.New("boom")
	var observed []string
	observer := func(name string) func(*Context, error) {
		return func(_ *Context, err error) {
			observed = append(observed, name+":"+err.Error())
		}
	}

	tc := newTestCycle("GET", "/")
	outer := NewMiddlewareWithErrorHandler("outer", Version, func(_ *Context, next Next) error {
		return next()
	}, observer("outer"))
	failing := NewMiddlewareWithErrorHandler("failing", Version, func(*Context, Next) error {
		return boom
	}, observer("failing"))

	err := tc.dispatch(t, outer, failing)

	var me *MiddlewareError
	if !errors.As(err, &me) || me.Name != "failing" {
		t.Fatalf("err = %v, want MiddlewareError from failing", err)
	}
	if !errors.Is(err, boom) {
		t.Error("original error not unwrapped")
	}
	if len(observed) != 1 || observed[0] != "failing:boom" {
		t.Errorf("OnError calls = %v, want only the originating middleware", observed)
	}

	resp, _ := tc.response(t)
	if resp.StatusCode != 500 {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestPipeline_HTTPErrorStatus(t *testing.T) {
	tc := newTestCycle("GET", "/")
	err := tc.dispatch(t, handlerOf(func(*Context) error {
		return NewHTTPError(403, "no entry")
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	resp, body := tc.response(t)
	if resp.StatusCode != 403 || body != "no entry" {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}
}

func TestPipeline_Panic(t *testing.T) {
	var handled error
	tc := newTestCycle("GET", "/")
	panicky := NewMiddlewareWithErrorHandler("panicky", Version, func(*Context, Next) error {
		panic("kaboom")
	}, func(_ *Context, err error) { handled = err })

	err := tc.dispatch(t, panicky)

	var pe *PanicError
	if !errors.As(err, &pe) || pe.Value != "kaboom" || len(pe.Stack) == 0 {
		t.Fatalf("err = %v, want PanicError with stack", err)
	}
	if handled == nil {
		t.Error("OnError not called for panic")
	}
	if resp, _ := tc.response(t); resp.StatusCode != 500 {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestPipeline_UseSkipsNil(t *testing.T) {
	p := NewPipeline(nil, handlerOf(func(*Context) error { return nil }))
	p.Use(nil)
	if p.Len() != 1 {
		t.Errorf("len = %d, want 1", p.Len())
	}
}

func TestMiddlewareMetadata(t *testing.T) {
	m := NewMiddleware("named", "1.2.3", func(*Context, Next) error { return nil })
	if m.Name() != "named" || m.Version() != "1.2.3" {
		t.Errorf("got %s@%s", m.Name(), m.Version())
	}
	if _, ok := m.(ErrorHandler); ok {
		t.Error("plain middleware must not implement ErrorHandler")
	}
}
