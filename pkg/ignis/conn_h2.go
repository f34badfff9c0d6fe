package ignis

import (
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/albertbausili/ignis/internal/h1"
)

func (l *listener) serveH2(conn net.Conn) {
	l.h2.ServeConn(l.baseCtx, conn, http.HandlerFunc(l.serveStream))
}

// serveStream runs one HTTP/2 stream through the pipeline. It is called by the
// HTTP/2 server on its own goroutine per stream.
func (l *listener) serveStream(w http.ResponseWriter, r *http.Request) {
	ctx := l.engine.pool.Acquire()
	defer l.engine.pool.Release(ctx)

	req := &ctx.Request
	req.Method = r.Method
	req.Path = r.RequestURI
	req.Version = "HTTP/2.0"
	req.Host = r.Host
	req.ContentLength = r.ContentLength
	req.KeepAlive = true
	req.RemoteAddr = r.RemoteAddr
	req.TLS = r.TLS
	req.Body = r.Body
	copyHeaders(&req.Headers, r)
	ctx.SetContext(r.Context())
	ctx.bindH2(w)

	if !methodSupported(req.Method) {
		_ = ctx.Response.String(http.StatusMethodNotAllowed, h1.StatusText(http.StatusMethodNotAllowed))
		return
	}

	err := l.pipeline.Dispatch(ctx)
	if err != nil {
		l.logFailure(ctx, err)
		if ctx.Response.HeadersSent() {
			// Resets the stream; the rest of the connection keeps serving.
			panic(http.ErrAbortHandler)
		}
		status, msg := statusOf(err)
		clear(w.Header())
		ctx.Response.reset()
		ctx.bindH2(w)
		if msg == "" {
			msg = h1.StatusText(status)
		}
		_ = ctx.Response.String(status, msg)
		return
	}
	if err := l.complete(ctx); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// copyHeaders fills h from r. HTTP/2 delivers fields through a map, so the wire order
// is lost; fields are added host first, then by sorted name.
func copyHeaders(h *Headers, r *http.Request) {
	if r.Host != "" {
		h.Add("host", r.Host)
	}
	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, v := range r.Header[name] {
			h.fields = append(h.fields, [2]string{lower, v})
		}
	}
}
