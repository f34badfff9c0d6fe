// Package h2 adapts golang.org/x/net/http2 streams to the unified response transport.
package h2

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/albertbausili/ignis/internal/transport"
)

var errResponseEnded = errors.New("h2: response already ended")

// ResponseWriter is the HTTP/2 transport adapter. Length-free framing is native
// to the stream, so bodies of unknown size are written as plain DATA frames.
type ResponseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	status  int

	headOnly    bool
	closeConn   bool
	headersSent bool
	ended       bool
	written     int64
}

var _ transport.ResponseTransport = (*ResponseWriter)(nil)

// Prepare binds the adapter to one stream.
func (w *ResponseWriter) Prepare(rw http.ResponseWriter, method string) {
	w.Reset()
	w.w = rw
	w.flusher, _ = rw.(http.Flusher)
	w.headOnly = method == http.MethodHead
}

// Kind reports the HTTP/2 transport tag.
func (w *ResponseWriter) Kind() transport.Kind {
	return transport.KindH2
}

// SetHeader adds one header field. Connection-specific fields are dropped,
// HTTP/2 forbids them.
func (w *ResponseWriter) SetHeader(name, value string) {
	if w.headersSent || w.w == nil {
		return
	}
	switch strings.ToLower(name) {
	case "connection", "keep-alive", "proxy-connection", "transfer-encoding", "upgrade":
		return
	}
	w.w.Header().Add(name, value)
}

// SetStatus sets the status code. HTTP/2 carries no reason phrase.
func (w *ResponseWriter) SetStatus(code int, _ string) {
	if w.headersSent {
		return
	}
	w.status = code
}

// SetConnectionClose is recorded only; closing is a connection-wide GOAWAY decision.
func (w *ResponseWriter) SetConnectionClose() {
	w.closeConn = true
}

// CloseRequested reports whether a handler asked for the connection to close.
func (w *ResponseWriter) CloseRequested() bool {
	return w.closeConn
}

// HeadersSent reports whether the HEADERS frame was committed.
func (w *ResponseWriter) HeadersSent() bool {
	return w.headersSent
}

// Ended reports whether the response is complete.
func (w *ResponseWriter) Ended() bool {
	return w.ended
}

// Written returns the number of body bytes accepted so far.
func (w *ResponseWriter) Written() int64 {
	return w.written
}

// Send writes headers and the whole body.
func (w *ResponseWriter) Send(body []byte) error {
	if w.ended {
		return errResponseEnded
	}
	if !w.headersSent {
		w.w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.writeHead()
	}
	w.ended = true
	if w.headOnly || len(body) == 0 {
		return nil
	}
	n, err := w.w.Write(body)
	w.written += int64(n)
	return err
}

// Stream copies r onto the stream. A non-negative size is advertised as content-length.
func (w *ResponseWriter) Stream(r io.Reader, size int64) error {
	if w.ended {
		return errResponseEnded
	}
	if !w.headersSent {
		if size >= 0 {
			w.w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		}
		w.writeHead()
	}
	w.ended = true
	if w.headOnly {
		return nil
	}
	var (
		n   int64
		err error
	)
	if size >= 0 {
		n, err = io.CopyN(w.w, r, size)
	} else {
		n, err = io.Copy(w.w, r)
	}
	w.written += n
	if err != nil {
		return err
	}
	w.flush()
	return nil
}

// Write sends p as DATA and flushes it to the peer.
func (w *ResponseWriter) Write(p []byte) (int, error) {
	if w.ended {
		return 0, errResponseEnded
	}
	if !w.headersSent {
		w.writeHead()
	}
	if w.headOnly {
		return len(p), nil
	}
	n, err := w.w.Write(p)
	w.written += int64(n)
	if err != nil {
		return n, err
	}
	w.flush()
	return n, nil
}

// End completes the response; the stream closes when the handler returns.
func (w *ResponseWriter) End() error {
	if w.ended {
		return nil
	}
	if !w.headersSent {
		w.w.Header().Set("Content-Length", "0")
		w.writeHead()
	}
	w.ended = true
	return nil
}

// Reset restores the adapter to its pre-request state.
func (w *ResponseWriter) Reset() {
	w.w = nil
	w.flusher = nil
	w.status = 200
	w.headOnly = false
	w.closeConn = false
	w.headersSent = false
	w.ended = false
	w.written = 0
}

func (w *ResponseWriter) writeHead() {
	w.headersSent = true
	w.w.WriteHeader(w.status)
}

func (w *ResponseWriter) flush() {
	if w.flusher != nil {
		w.flusher.Flush()
	}
}
