package h2

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Config defines the HTTP/2 stream limits.
type Config struct {
	MaxConcurrentStreams uint32
	MaxReadFrameSize     uint32
	IdleTimeout          time.Duration
	ReadHeaderTimeout    time.Duration
	ErrorLog             *log.Logger
}

// Server serves HTTP/2 connections that were already classified by the acceptor.
// Framing, HPACK and flow control are delegated to golang.org/x/net/http2.
type Server struct {
	h2   *http2.Server
	base *http.Server
}

// NewServer creates an HTTP/2 server. Shutdown on the returned server sends
// GOAWAY to every connection it is serving.
func NewServer(cfg Config) (*Server, error) {
	if cfg.MaxConcurrentStreams == 0 {
		cfg.MaxConcurrentStreams = 250
	}
	if cfg.MaxReadFrameSize < 16384 {
		cfg.MaxReadFrameSize = 16384
	}
	if cfg.MaxReadFrameSize > (1<<24)-1 {
		cfg.MaxReadFrameSize = (1 << 24) - 1
	}

	base := &http.Server{
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          cfg.ErrorLog,
	}
	h2 := &http2.Server{
		MaxConcurrentStreams: cfg.MaxConcurrentStreams,
		MaxReadFrameSize:     cfg.MaxReadFrameSize,
		IdleTimeout:          cfg.IdleTimeout,
	}
	// Registers the graceful GOAWAY hook on base.
	if err := http2.ConfigureServer(base, h2); err != nil {
		return nil, err
	}
	return &Server{h2: h2, base: base}, nil
}

// ServeConn runs the HTTP/2 connection until it closes. handler is invoked
// once per stream on its own goroutine.
func (s *Server) ServeConn(ctx context.Context, c net.Conn, handler http.Handler) {
	s.h2.ServeConn(c, &http2.ServeConnOpts{
		Context:    ctx,
		BaseConfig: s.base,
		Handler:    handler,
	})
}

// Shutdown starts a graceful GOAWAY on all connections served so far.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.base.Shutdown(ctx)
}
