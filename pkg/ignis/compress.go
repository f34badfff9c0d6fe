package ignis

import (
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// CompressConfig holds configuration for the Compress middleware.
type CompressConfig struct {
	// Level specifies the gzip and brotli compression level (1-9 for gzip, 0-11 for brotli)
	Level int
	// MinSize specifies the minimum response size to compress (default: 1024 bytes)
	MinSize int
	// ExcludedTypes lists content type prefixes to skip compression
	ExcludedTypes []string
	// Encodings lists the accepted encodings in server preference order (default: br, zstd, gzip)
	Encodings []string
}

// DefaultCompressConfig returns a CompressConfig with sensible defaults.
func DefaultCompressConfig() CompressConfig {
	return CompressConfig{
		Level:   6,
		MinSize: 1024,
		ExcludedTypes: []string{
			"image/",
			"video/",
			"audio/",
			"application/zip",
			"application/gzip",
			"application/zstd",
			"text/event-stream",
		},
		Encodings: []string{"br", "zstd", "gzip"},
	}
}

// Compress returns a middleware that compresses response bodies with brotli, zstd or gzip.
// Bodies of unknown length are compressed as they stream.
func Compress(config CompressConfig) Middleware {
	d := DefaultCompressConfig()
	if config.MinSize <= 0 {
		config.MinSize = d.MinSize
	}
	if config.Level == 0 {
		config.Level = d.Level
	}
	if config.ExcludedTypes == nil {
		config.ExcludedTypes = d.ExcludedTypes
	}
	if len(config.Encodings) == 0 {
		config.Encodings = d.Encodings
	}

	encodings := make(map[string]*bodyEncoding, len(config.Encodings))
	for _, name := range config.Encodings {
		if enc := newBodyEncoding(name, config); enc != nil {
			encodings[name] = enc
		}
	}

	return NewMiddleware("compress", Version, func(ctx *Context, next Next) error {
		accept := ctx.Request.Headers.Get("accept-encoding")
		if accept == "" {
			return next()
		}
		for _, name := range config.Encodings {
			if enc := encodings[name]; enc != nil && acceptsEncoding(accept, name) {
				ctx.Response.encoding = enc
				break
			}
		}
		return next()
	})
}

func newBodyEncoding(name string, config CompressConfig) *bodyEncoding {
	var pool sync.Pool
	switch name {
	case "gzip":
		level := config.Level
		if level < gzip.HuffmanOnly || level > gzip.BestCompression {
			level = gzip.DefaultCompression
		}
		pool.New = func() any {
			w, _ := gzip.NewWriterLevel(io.Discard, level)
			return w
		}
	case "br":
		level := config.Level
		if level < brotli.BestSpeed || level > brotli.BestCompression {
			level = brotli.DefaultCompression
		}
		pool.New = func() any {
			return brotli.NewWriterLevel(io.Discard, level)
		}
	case "zstd":
		pool.New = func() any {
			w, _ := zstd.NewWriter(io.Discard, zstd.WithEncoderConcurrency(1))
			return w
		}
	default:
		return nil
	}

	return &bodyEncoding{
		name:     name,
		minSize:  config.MinSize,
		excluded: config.ExcludedTypes,
		acquire: func(w io.Writer) io.WriteCloser {
			switch enc := pool.Get().(type) {
			case *gzip.Writer:
				enc.Reset(w)
				return enc
			case *brotli.Writer:
				enc.Reset(w)
				return enc
			case *zstd.Encoder:
				enc.Reset(w)
				return enc
			}
			return nil
		},
		release: func(w io.WriteCloser) {
			pool.Put(w)
		},
	}
}

// acceptsEncoding reports whether an Accept-Encoding value allows name.
func acceptsEncoding(header, name string) bool {
	for _, part := range strings.Split(header, ",") {
		token, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(token), name) && strings.TrimSpace(token) != "*" {
			continue
		}
		params = strings.ReplaceAll(params, " ", "")
		if strings.HasPrefix(params, "q=0") && strings.Trim(params[3:], ".0") == "" {
			return false
		}
		return true
	}
	return false
}
