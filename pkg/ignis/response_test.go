package ignis

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/albertbausili/ignis/internal/transport"
)

// fakeTransport records every wire operation in order.
type fakeTransport struct {
	log         *[]string
	status      int
	headers     [][2]string
	body        bytes.Buffer
	headersSent bool
	ended       bool
}

func (f *fakeTransport) Kind() transport.Kind { return transport.KindH1 }
func (f *fakeTransport) SetHeader(name, value string) {
	f.headers = append(f.headers, [2]string{name, value})
}
func (f *fakeTransport) SetStatus(code int, _ string) { f.status = code }
func (f *fakeTransport) SetConnectionClose()          { *f.log = append(*f.log, "close") }
func (f *fakeTransport) Send(body []byte) error {
	*f.log = append(*f.log, "send")
	f.headersSent, f.ended = true, true
	f.body.Write(body)
	return nil
}
func (f *fakeTransport) Stream(r io.Reader, _ int64) error {
	*f.log = append(*f.log, "stream")
	f.headersSent, f.ended = true, true
	_, err := f.body.ReadFrom(r)
	return err
}
func (f *fakeTransport) Write(p []byte) (int, error) {
	*f.log = append(*f.log, "write")
	f.headersSent = true
	return f.body.Write(p)
}
func (f *fakeTransport) End() error {
	*f.log = append(*f.log, "end")
	f.headersSent, f.ended = true, true
	return nil
}
func (f *fakeTransport) HeadersSent() bool { return f.headersSent }
func (f *fakeTransport) Ended() bool       { return f.ended }
func (f *fakeTransport) Written() int64    { return int64(f.body.Len()) }
func (f *fakeTransport) Reset()            {}

func newFakeResponse() (*Response, *fakeTransport, *[]string) {
	log := &[]string{}
	ft := &fakeTransport{log: log}
	r := &Response{}
	r.reset()
	r.transport = ft
	return r, ft, log
}

func TestResponse_OnEndOrderAndOnce(t *testing.T) {
	tests := []struct {
		name  string
		write func(r *Response) error
		first string
	}{
		{"send", func(r *Response) error { return r.SendString("x") }, "send"},
		{"stream", func(r *Response) error { return r.Stream(strings.NewReader("x"), 1) }, "stream"},
		{"write", func(r *Response) error { _, err := r.Write([]byte("x")); return err }, "write"},
		{"end", func(r *Response) error { return r.End() }, "end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ft, log := newFakeResponse()
			for _, name := range []string{"cb1", "cb2", "cb3"} {
				r.OnEnd(func(res *Response) {
					*log = append(*log, name)
					res.SetHeader("x-"+name, "1")
				})
			}

			if err := tt.write(r); err != nil {
				t.Fatal(err)
			}
			_ = r.End()
			_ = r.End()

			got := strings.Join(*log, " ")
			if !strings.HasPrefix(got, "cb1 cb2 cb3 "+tt.first) {
				t.Errorf("log = %q, callbacks must run in order before the first write", got)
			}
			if strings.Count(got, "cb1") != 1 {
				t.Errorf("callbacks ran more than once: %q", got)
			}
			if len(ft.headers) != 3 {
				t.Errorf("headers set by callbacks = %v", ft.headers)
			}
		})
	}
}

func TestResponse_OnEndAfterCommitIgnored(t *testing.T) {
	r, _, log := newFakeResponse()
	_, _ = r.Write([]byte("a"))
	r.OnEnd(func(*Response) { *log = append(*log, "late") })
	_ = r.End()
	if strings.Contains(strings.Join(*log, " "), "late") {
		t.Error("callback registered after commit was run")
	}
}

func TestResponse_StatusFrozenAfterCommit(t *testing.T) {
	r, ft, _ := newFakeResponse()
	r.SetStatus(201)
	_, _ = r.Write([]byte("a"))
	r.SetStatus(500)
	if r.Status() != 201 || ft.status != 201 {
		t.Errorf("status = %d/%d, want 201", r.Status(), ft.status)
	}
	if !r.Committed() || !r.HeadersSent() {
		t.Error("response not committed after write")
	}
}

func TestResponse_NoTransport(t *testing.T) {
	r := &Response{}
	r.reset()
	if err := r.SendString("x"); err != errNoTransport {
		t.Errorf("send err = %v", err)
	}
	if _, err := r.Write(nil); err != errNoTransport {
		t.Errorf("write err = %v", err)
	}
	if r.Kind() != 0 || r.Written() != 0 || r.HeadersSent() || r.Ended() {
		t.Error("unbound response reported transport state")
	}
}

func TestResponse_Helpers(t *testing.T) {
	tests := []struct {
		name       string
		do         func(r *Response) error
		status     int
		body       string
		headerName string
		headerVal  string
	}{
		{
			name:       "json",
			do:         func(r *Response) error { return r.JSON(202, map[string]int{"n": 1}) },
			status:     202,
			body:       `{"n":1}`,
			headerName: "Content-Type",
			headerVal:  "application/json",
		},
		{
			name:       "string",
			do:         func(r *Response) error { return r.String(200, "hi %s", "there") },
			status:     200,
			body:       "hi there",
			headerName: "Content-Type",
			headerVal:  "text/plain; charset=utf-8",
		},
		{
			name:       "redirect",
			do:         func(r *Response) error { return r.Redirect(301, "/new") },
			status:     301,
			headerName: "Location",
			headerVal:  "/new",
		},
		{
			name:       "invalid redirect status",
			do:         func(r *Response) error { return r.Redirect(200, "/new") },
			status:     302,
			headerName: "Location",
			headerVal:  "/new",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestCycle("GET", "/")
			if err := tt.do(&tc.ctx.Response); err != nil {
				t.Fatal(err)
			}
			resp, body := tc.response(t)
			if resp.StatusCode != tt.status || body != tt.body {
				t.Errorf("got %d %q, want %d %q", resp.StatusCode, body, tt.status, tt.body)
			}
			if got := resp.Header.Get(tt.headerName); got != tt.headerVal {
				t.Errorf("%s = %q, want %q", tt.headerName, got, tt.headerVal)
			}
		})
	}
}

func TestResponse_StreamOverH1(t *testing.T) {
	tc := newTestCycle("GET", "/")
	res := &tc.ctx.Response
	res.SetHeader("content-type", "text/plain")
	if err := res.Stream(strings.NewReader("streamed body"), -1); err != nil {
		t.Fatal(err)
	}
	resp, body := tc.response(t)
	if body != "streamed body" {
		t.Errorf("body = %q", body)
	}
	if len(resp.TransferEncoding) == 0 {
		t.Error("unknown length body must be chunked on HTTP/1.1")
	}
	if res.Written() != int64(len("streamed body")) {
		t.Errorf("written = %d", res.Written())
	}
}
