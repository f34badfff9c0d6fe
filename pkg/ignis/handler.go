package ignis

import (
	"net/http"
	"net/url"
	"strings"
)

// Handler returns a middleware that serves requests whose path equals path, or lies below
// it when path ends in "/", with the net/http handler h. It is used to mount handlers such
// as MetricsHandler.
func Handler(path string, h http.Handler) Middleware {
	return NewMiddleware("handler", Version, func(ctx *Context, next Next) error {
		p := ctx.Request.URLPath()
		if p != path && !(strings.HasSuffix(path, "/") && strings.HasPrefix(p, path)) {
			return next()
		}

		req, err := ctx.httpRequest()
		if err != nil {
			return NewHTTPError(http.StatusBadRequest, "Bad Request")
		}
		w := &responseShim{res: &ctx.Response, header: make(http.Header)}
		h.ServeHTTP(w, req)
		if !w.wroteHeader {
			w.WriteHeader(http.StatusOK)
		}
		return ctx.Response.End()
	})
}

// httpRequest builds a net/http request view of the current request.
func (c *Context) httpRequest() (*http.Request, error) {
	req := &c.Request
	u, err := url.ParseRequestURI(req.Path)
	if err != nil {
		return nil, err
	}
	header := make(http.Header, req.Headers.Len())
	for _, f := range req.Headers.All() {
		header.Add(f[0], f[1])
	}
	major, minor, _ := http.ParseHTTPVersion(req.Version)
	r := &http.Request{
		Method:        req.Method,
		URL:           u,
		Proto:         req.Version,
		ProtoMajor:    major,
		ProtoMinor:    minor,
		Header:        header,
		Body:          http.NoBody,
		ContentLength: req.ContentLength,
		Host:          req.Host,
		RemoteAddr:    req.RemoteAddr,
		RequestURI:    req.Path,
		TLS:           req.TLS,
	}
	if req.Body != nil && req.Body != http.NoBody {
		r.Body = readCloser{req.Body}
	}
	return r.WithContext(c.Context()), nil
}

type readCloser struct {
	r interface{ Read([]byte) (int, error) }
}

func (rc readCloser) Read(p []byte) (int, error) { return rc.r.Read(p) }
func (rc readCloser) Close() error               { return nil }

// responseShim adapts Response to http.ResponseWriter.
type responseShim struct {
	res         *Response
	header      http.Header
	wroteHeader bool
}

func (w *responseShim) Header() http.Header {
	return w.header
}

func (w *responseShim) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.res.SetStatus(code)
	for k, vs := range w.header {
		for _, v := range vs {
			w.res.AddHeader(k, v)
		}
	}
}

func (w *responseShim) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		if w.header.Get("Content-Type") == "" {
			w.header.Set("Content-Type", http.DetectContentType(p))
		}
		w.WriteHeader(http.StatusOK)
	}
	return w.res.Write(p)
}

func (w *responseShim) Flush() {}
