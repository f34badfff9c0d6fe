package ignis

import (
	"strings"
	"testing"
)

// FuzzParseHeaderBlock feeds arbitrary header blocks to the request parser.
func FuzzParseHeaderBlock(f *testing.F) {
	f.Add("GET / HTTP/1.1\r\nHost: example.com\r\nUser-Agent: test\r\n\r\n")
	f.Add("POST /api HTTP/1.1\r\nHost: localhost\r\nContent-Type: application/json\r\nContent-Length: 0\r\n\r\n")
	f.Add("PUT /data HTTP/1.1\r\nHost: api.example.com\r\nTransfer-Encoding: chunked\r\n\r\n")
	f.Add("GET / HTTP/1.1\r\nHost:example.com\r\n\r\n")
	f.Add("GET / HTTP/1.0\r\n\r\n")
	f.Add("GET /path\r\n\r\n")
	f.Add("PRI * HTTP/2.0\r\n\r\n")
	f.Add("GET / HTTP/1.1\r\nHost: x\r\n folded\r\n\r\n")
	f.Add("\r\n\r\n")

	f.Fuzz(func(t *testing.T, block string) {
		req := &Request{}
		req.reset()
		perr := parseHeaderBlock(req, []byte(block))
		if perr != nil {
			if perr.Status < 400 || perr.Status > 599 {
				t.Fatalf("parse error status %d out of range", perr.Status)
			}
			return
		}

		if req.Method == "" || req.Path == "" {
			t.Fatalf("method %q path %q after a successful parse", req.Method, req.Path)
		}
		if req.Version != "HTTP/1.1" && req.Version != "HTTP/1.0" {
			t.Fatalf("version %q", req.Version)
		}
		if req.Chunked && req.ContentLength > 0 {
			t.Fatal("chunked request with a content length")
		}
		if req.ContentLength < -1 {
			t.Fatalf("content length %d", req.ContentLength)
		}
		for _, h := range req.Headers.All() {
			if h[0] == "" || strings.ContainsAny(h[0], "\r\n: ") {
				t.Fatalf("invalid header name %q", h[0])
			}
			if strings.Contains(h[1], "\r\n") {
				t.Fatalf("header value %q contains a line break", h[1])
			}
		}
	})
}

// FuzzQuery checks query lookup never panics and finds keys it was given.
func FuzzQuery(f *testing.F) {
	f.Add("/?key=value", "key")
	f.Add("/api?id=123&name=test", "name")
	f.Add("/search?q=hello%20world", "q")
	f.Add("/?empty=&key=value", "empty")
	f.Add("/?&&&&", "")
	f.Add("/?a=b=c=d", "a")
	f.Add("/?%zz=1", "%zz")

	f.Fuzz(func(t *testing.T, path, key string) {
		req := &Request{Path: path}
		_ = req.Query(key)
		_ = req.URLPath()
	})
}

// FuzzHeaders checks Set followed by Get with arbitrary keys.
func FuzzHeaders(f *testing.F) {
	f.Add("content-type", "application/json")
	f.Add("Content-Type", "text/html")
	f.Add("X-CUSTOM", "value")
	f.Add("", "")

	f.Fuzz(func(t *testing.T, key, value string) {
		var h Headers
		h.Add(key, "first")
		h.Set(key, value)
		if got := h.Get(key); got != value {
			t.Fatalf("Get(%q) = %q, want %q", key, got, value)
		}
		if got := h.Get(strings.ToUpper(key)); got != value && strings.ToLower(strings.ToUpper(key)) == strings.ToLower(key) {
			t.Fatalf("Get(%q) = %q, want %q", strings.ToUpper(key), got, value)
		}
		if n := len(h.Values(key)); n != 1 {
			t.Fatalf("%d values after Set", n)
		}
		h.Del(key)
		if h.Has(key) {
			t.Fatal("header present after Del")
		}
	})
}

// FuzzRouterFind routes arbitrary paths against a fixed route table.
func FuzzRouterFind(f *testing.F) {
	f.Add("/users/42")
	f.Add("/files/a/b/c")
	f.Add("//")
	f.Add("/users/")
	f.Add("/static/../etc")

	r := NewRouter()
	noop := func(*Context) error { return nil }
	r.GET("/", noop)
	r.GET("/users/:id", noop)
	r.GET("/users/:id/posts", noop)
	r.GET("/files/*path", noop)

	f.Fuzz(func(t *testing.T, path string) {
		_ = r.find(nil, "GET", path)
		_ = r.allowed(path)
	})
}
