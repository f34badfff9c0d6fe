package ignis

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"testing"
)

// testCycle is a context bound to an HTTP/1.1 writer over an in-memory buffer.
type testCycle struct {
	ctx *Context
	out *bytes.Buffer
	bw  *bufio.Writer
}

func newTestCycle(method, target string, headers ...string) *testCycle {
	ctx := newContext()
	ctx.Request.Method = method
	ctx.Request.Path = target
	ctx.Request.Version = "HTTP/1.1"
	ctx.Request.Host = "example.com"
	ctx.Request.KeepAlive = true
	for i := 0; i+1 < len(headers); i += 2 {
		ctx.Request.Headers.Add(headers[i], headers[i+1])
	}

	out := &bytes.Buffer{}
	bw := bufio.NewWriter(out)
	ctx.bindH1(bw)
	return &testCycle{ctx: ctx, out: out, bw: bw}
}

// response parses what was written so far. Unwritten responses fail the test.
func (tc *testCycle) response(t *testing.T) (*http.Response, string) {
	t.Helper()
	_ = tc.bw.Flush()
	method := tc.ctx.Request.Method
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(tc.out.Bytes())), &http.Request{Method: method})
	if err != nil {
		t.Fatalf("read response: %v\nraw: %q", err, tc.out.String())
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, string(body)
}

// dispatch runs the middleware through a pipeline and completes the response
// the way a connection does.
func (tc *testCycle) dispatch(t *testing.T, middleware ...Middleware) error {
	t.Helper()
	err := NewPipeline(middleware...).Dispatch(tc.ctx)
	res := &tc.ctx.Response
	switch {
	case err != nil && !res.HeadersSent():
		code, msg := statusOf(err)
		if msg == "" {
			msg = http.StatusText(code)
		}
		_ = res.String(code, "%s", msg)
	case res.Unhandled() && !res.Committed():
		_ = res.String(404, "Not Found")
	case !res.Ended():
		_ = res.End()
	}
	return err
}

func handlerOf(fn func(ctx *Context) error) Middleware {
	return NewMiddleware("handler", Version, func(ctx *Context, _ Next) error {
		return fn(ctx)
	})
}
