package ignis

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func decode(t *testing.T, encoding string, body []byte) string {
	t.Helper()
	var r io.Reader
	switch encoding {
	case "gzip":
		gr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		r = gr
	case "br":
		r = brotli.NewReader(bytes.NewReader(body))
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer zr.Close()
		r = zr
	default:
		return string(body)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("decode %s: %v", encoding, err)
	}
	return string(out)
}

func TestCompress(t *testing.T) {
	large := strings.Repeat("compressible text ", 200)
	tests := []struct {
		name        string
		accept      string
		contentType string
		body        string
		stream      bool
		want        string
	}{
		{"brotli preferred", "gzip, deflate, br", "text/plain", large, false, "br"},
		{"gzip only", "gzip", "text/plain", large, false, "gzip"},
		{"zstd", "zstd", "application/json", large, false, "zstd"},
		{"wildcard", "*", "text/plain", large, false, "br"},
		{"refused with q=0", "br;q=0, gzip", "text/plain", large, false, "gzip"},
		{"no accept", "", "text/plain", large, false, ""},
		{"identity only", "identity", "text/plain", large, false, ""},
		{"below min size", "gzip", "text/plain", "tiny", false, ""},
		{"excluded type", "gzip", "image/png", large, false, ""},
		{"streamed body", "gzip", "text/plain", large, true, "gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.accept != "" {
				headers = []string{"Accept-Encoding", tt.accept}
			}
			tc := newTestCycle("GET", "/", headers...)
			_ = tc.dispatch(t, Compress(DefaultCompressConfig()), handlerOf(func(ctx *Context) error {
				ctx.Response.SetHeader("content-type", tt.contentType)
				if tt.stream {
					for _, part := range []string{tt.body[:100], tt.body[100:]} {
						if _, err := ctx.Response.Write([]byte(part)); err != nil {
							return err
						}
					}
					return ctx.Response.End()
				}
				return ctx.Response.SendString(tt.body)
			}))

			resp, raw := tc.response(t)
			enc := resp.Header.Get("Content-Encoding")
			if enc != tt.want {
				t.Fatalf("content-encoding = %q, want %q", enc, tt.want)
			}
			if got := decode(t, enc, []byte(raw)); got != tt.body {
				t.Errorf("decoded body mismatch (%d bytes, want %d)", len(got), len(tt.body))
			}
			if enc != "" {
				if resp.Header.Get("Vary") != "Accept-Encoding" {
					t.Error("missing vary header")
				}
				if len(raw) >= len(tt.body) {
					t.Errorf("compressed %d bytes into %d", len(tt.body), len(raw))
				}
			}
		})
	}
}

func TestCompress_WriterReuse(t *testing.T) {
	mw := Compress(CompressConfig{Encodings: []string{"gzip"}})
	body := strings.Repeat("reuse ", 500)
	for i := 0; i < 3; i++ {
		tc := newTestCycle("GET", "/", "Accept-Encoding", "gzip")
		_ = tc.dispatch(t, mw, handlerOf(func(ctx *Context) error {
			return ctx.Response.SendString(body)
		}))
		_, raw := tc.response(t)
		if got := decode(t, "gzip", []byte(raw)); got != body {
			t.Fatalf("round %d: body mismatch", i)
		}
	}
}

func TestAcceptsEncoding(t *testing.T) {
	tests := []struct {
		header string
		name   string
		want   bool
	}{
		{"gzip", "gzip", true},
		{"GZIP", "gzip", true},
		{"gzip;q=0.5", "gzip", true},
		{"gzip;q=0", "gzip", false},
		{"gzip; q=0.000", "gzip", false},
		{"deflate, br", "gzip", false},
		{"*;q=0", "br", false},
	}
	for _, tt := range tests {
		if got := acceptsEncoding(tt.header, tt.name); got != tt.want {
			t.Errorf("acceptsEncoding(%q, %q) = %v, want %v", tt.header, tt.name, got, tt.want)
		}
	}
}
