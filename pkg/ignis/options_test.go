package ignis

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.General.MaxHeaderSize != 8192 || opts.General.PoolCapacity != 1024 {
		t.Errorf("general = %+v", opts.General)
	}
	if !opts.HTTP.Enabled || opts.HTTPS.Enabled {
		t.Error("only http must be enabled by default")
	}
	if opts.HTTP.addr() != "localhost:80" || opts.HTTPS.addr() != "localhost:443" {
		t.Errorf("addrs = %s %s", opts.HTTP.addr(), opts.HTTPS.addr())
	}
}

func TestParseOptions(t *testing.T) {
	data := []byte(`
general:
  max_header_size: 4096
  pool_capacity: 64
  shutdown_timeout: 3s
  enable_h2: false
http:
  host: 0.0.0.0
  port: 8080
  keep_alive_timeout: 30s
https:
  enabled: true
  port: 8443
  certificate:
    cert: /etc/ignis/cert.pem
    key: /etc/ignis/key.pem
`)
	opts, err := ParseOptions(data)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"max header size", opts.General.MaxHeaderSize, 4096},
		{"pool capacity", opts.General.PoolCapacity, 64},
		{"shutdown timeout", opts.General.ShutdownTimeout, 3 * time.Second},
		{"enable h2", opts.General.EnableH2, false},
		{"read header timeout kept", opts.General.ReadHeaderTimeout, 10 * time.Second},
		{"http addr", opts.HTTP.addr(), "0.0.0.0:8080"},
		{"http enabled kept", opts.HTTP.Enabled, true},
		{"keep alive", opts.HTTP.KeepAliveTimeout, 30 * time.Second},
		{"https host kept", opts.HTTPS.Host, "localhost"},
		{"https port", opts.HTTPS.Port, 8443},
		{"cert", opts.HTTPS.Certificate.Cert, "/etc/ignis/cert.pem"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestParseOptions_Invalid(t *testing.T) {
	if _, err := ParseOptions([]byte("general: [not, a, map]")); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignis.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatal(err)
	}
	if opts.HTTP.Port != 9000 {
		t.Errorf("port = %d", opts.HTTP.Port)
	}

	if _, err := LoadOptions(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOptionsNormalize(t *testing.T) {
	var opts Options
	opts.normalize()
	if opts.Logger == nil {
		t.Error("nil logger must be replaced")
	}
	if opts.General.MaxHeaderSize <= 0 || opts.General.ShutdownTimeout <= 0 {
		t.Errorf("zero values not defaulted: %+v", opts.General)
	}
	if opts.General.PoolCapacity != 0 {
		t.Error("pool capacity must be left for validation")
	}
	if opts.HTTP.KeepAliveTimeout != 5*time.Second || opts.HTTPS.KeepAliveTimeout != 5*time.Second {
		t.Errorf("keep-alive timeouts = %v, %v, want 5s", opts.HTTP.KeepAliveTimeout, opts.HTTPS.KeepAliveTimeout)
	}

	parsed, err := ParseOptions([]byte("http:\n  keep_alive_timeout: 0s\n"))
	if err != nil {
		t.Fatal(err)
	}
	parsed.normalize()
	if parsed.HTTP.KeepAliveTimeout != 5*time.Second {
		t.Errorf("zero keep-alive timeout from yaml = %v, want 5s", parsed.HTTP.KeepAliveTimeout)
	}
}

func TestCertificateTLSConfig(t *testing.T) {
	if _, err := (Certificate{Cert: "missing.pem", Key: "missing.pem"}).tlsConfig(true); err == nil {
		t.Error("expected error for missing certificate files")
	}
}
