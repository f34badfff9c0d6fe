package ignis

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// StaticConfig holds configuration for the Static middleware.
type StaticConfig struct {
	// Prefix is the URL path prefix served from Root (default: "/")
	Prefix string
	// Root is the directory files are served from
	Root string
	// Index is served for directory requests (default: "index.html")
	Index string
}

// Static returns a middleware that serves files below config.Root. Files are streamed
// with a known length and answer conditional requests with 304. Requests that do not
// match a file fall through to the next middleware.
func Static(config StaticConfig) Middleware {
	if config.Prefix == "" {
		config.Prefix = "/"
	}
	if !strings.HasSuffix(config.Prefix, "/") {
		config.Prefix += "/"
	}
	if config.Index == "" {
		config.Index = "index.html"
	}

	return NewMiddleware("static", Version, func(ctx *Context, next Next) error {
		method := ctx.Request.Method
		if method != http.MethodGet && method != http.MethodHead {
			return next()
		}
		urlPath := ctx.Request.URLPath()
		if !strings.HasPrefix(urlPath, config.Prefix) {
			return next()
		}

		rel := path.Clean("/" + strings.TrimPrefix(urlPath, config.Prefix))
		if strings.HasSuffix(urlPath, "/") {
			rel = path.Join(rel, config.Index)
		}
		// path.Clean on a rooted path removes every ".." element.
		full := filepath.Join(config.Root, filepath.FromSlash(rel))
		return serveFile(ctx, full, next)
	})
}

func serveFile(ctx *Context, full string, next Next) error {
	file, err := os.Open(full) // #nosec G304 - path is cleaned and rooted
	if err != nil {
		return next()
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		return next()
	}

	res := &ctx.Response
	contentType := mime.TypeByExtension(filepath.Ext(full))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	modTime := info.ModTime().UTC()
	etag := fmt.Sprintf(`"%x-%x"`, modTime.Unix(), info.Size())
	res.SetHeader("content-type", contentType)
	res.SetHeader("last-modified", modTime.Format(http.TimeFormat))
	res.SetHeader("etag", etag)

	if match := ctx.Request.Headers.Get("if-none-match"); match != "" {
		if match == etag || match == "*" {
			return res.NoContent(http.StatusNotModified)
		}
	} else if since := ctx.Request.Headers.Get("if-modified-since"); since != "" {
		if t, err := http.ParseTime(since); err == nil && !modTime.Truncate(1e9).After(t) {
			return res.NoContent(http.StatusNotModified)
		}
	}

	res.SetStatus(http.StatusOK)
	return res.Stream(file, info.Size())
}
