// Package mux detects the HTTP version spoken on a freshly accepted connection.
// TLS connections are classified by ALPN; cleartext connections by the first bytes.
package mux

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"time"

	"github.com/albertbausili/ignis/internal/transport"
)

const (
	// HTTP/2 connection preface
	http2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"
	// Enough bytes to tell "PRI " from "GET ", "POST" etc.
	minDetectBytes = 4
)

// ErrProtocolDisabled is returned when the detected protocol is not enabled.
var ErrProtocolDisabled = errors.New("mux: detected protocol is not enabled")

// Config selects the protocols a listener accepts.
type Config struct {
	EnableH1 bool
	EnableH2 bool
	// Timeout bounds how long detection waits for the first bytes.
	Timeout time.Duration
}

// Detect classifies c. The returned connection replays any bytes consumed during detection.
func Detect(c net.Conn, cfg Config) (net.Conn, transport.Kind, error) {
	if tc, ok := c.(*tls.Conn); ok {
		return detectTLS(tc, cfg)
	}
	if !cfg.EnableH2 {
		return c, transport.KindH1, nil
	}
	if cfg.Timeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(cfg.Timeout))
		defer func() { _ = c.SetReadDeadline(time.Time{}) }()
	}

	buf := make([]byte, 0, len(http2Preface))
	tmp := make([]byte, len(http2Preface))
	for len(buf) < minDetectBytes {
		n, err := c.Read(tmp[:cap(buf)-len(buf)])
		buf = append(buf, tmp[:n]...)
		if err != nil {
			if len(buf) > 0 && errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, err
		}
	}

	pc := &PrefixConn{Conn: c, prefix: buf}
	if isH2Prefix(buf) {
		return pc, transport.KindH2, nil
	}
	if !cfg.EnableH1 {
		return nil, 0, ErrProtocolDisabled
	}
	return pc, transport.KindH1, nil
}

func detectTLS(c *tls.Conn, cfg Config) (net.Conn, transport.Kind, error) {
	if cfg.Timeout > 0 {
		_ = c.SetDeadline(time.Now().Add(cfg.Timeout))
	}
	err := c.Handshake()
	_ = c.SetDeadline(time.Time{})
	if err != nil {
		return nil, 0, err
	}
	switch c.ConnectionState().NegotiatedProtocol {
	case "h2":
		if !cfg.EnableH2 {
			return nil, 0, ErrProtocolDisabled
		}
		return c, transport.KindH2, nil
	default:
		if !cfg.EnableH1 {
			return nil, 0, ErrProtocolDisabled
		}
		return c, transport.KindH1, nil
	}
}

// isH2Prefix reports whether b starts like (or is) the client connection preface.
func isH2Prefix(b []byte) bool {
	n := len(b)
	if n > len(http2Preface) {
		n = len(http2Preface)
	}
	return n >= minDetectBytes && bytes.Equal(b[:n], []byte(http2Preface[:n]))
}

// PrefixConn replays bytes read during detection before reading from the socket.
type PrefixConn struct {
	net.Conn
	prefix []byte
}

// Read drains the replay prefix first.
func (c *PrefixConn) Read(p []byte) (int, error) {
	if len(c.prefix) > 0 {
		n := copy(p, c.prefix)
		c.prefix = c.prefix[n:]
		return n, nil
	}
	return c.Conn.Read(p)
}
