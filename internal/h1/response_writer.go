package h1

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/albertbausili/ignis/internal/date"
	"github.com/albertbausili/ignis/internal/transport"
	"github.com/panjf2000/gnet/v2/pkg/pool/bytebuffer"
)

// Pre-allocated head fragments
var (
	statusLine200      = []byte("HTTP/1.1 200 OK\r\n")
	headerContentLen   = []byte("content-length: ")
	headerChunked      = []byte("transfer-encoding: chunked\r\n")
	headerConnection   = []byte("connection: ")
	headerDate         = []byte("date: ")
	headerKeepAlive    = []byte("keep-alive\r\n")
	headerClose        = []byte("close\r\n")
	headerSep          = []byte(": ")
	continueInterim    = []byte("HTTP/1.1 100 Continue\r\n\r\n")
	errResponseEnded   = errors.New("h1: response already ended")
	errShortStreamBody = errors.New("h1: stream body shorter than declared size")
)

// ResponseWriter is the HTTP/1.1 transport adapter. It frames one response at a
// time onto a buffered connection writer and is reused across requests.
type ResponseWriter struct {
	bw      *bufio.Writer
	enc     ChunkEncoder
	status  int
	message string
	headers [][2]string

	http10      bool
	headOnly    bool
	keepAlive   bool
	closeConn   bool
	headersSent bool
	chunked     bool
	rawUntilEOF bool
	ended       bool

	// remaining is the declared content length still owed, or -1 when unknown.
	remaining int64
	written   int64
}

var _ transport.ResponseTransport = (*ResponseWriter)(nil)

// NewResponseWriter creates a writer over bw.
func NewResponseWriter(bw *bufio.Writer) *ResponseWriter {
	w := &ResponseWriter{}
	w.Reset()
	w.bw = bw
	return w
}

// Prepare binds the writer to one request on bw.
func (w *ResponseWriter) Prepare(bw *bufio.Writer, method, version string, keepAlive bool) {
	w.Reset()
	w.bw = bw
	w.headOnly = method == "HEAD"
	w.http10 = version == "HTTP/1.0"
	w.keepAlive = keepAlive
}

// Kind reports the HTTP/1.1 transport tag.
func (w *ResponseWriter) Kind() transport.Kind {
	return transport.KindH1
}

// SetHeader records one header line for the response head.
// Framing headers (content-length, transfer-encoding, connection) are computed by the writer,
// except that a declared content-length is honoured for incremental writes.
func (w *ResponseWriter) SetHeader(name, value string) {
	if w.headersSent {
		return
	}
	w.headers = append(w.headers, [2]string{name, value})
}

// SetStatus sets the status code and reason phrase. An empty message uses the standard phrase.
func (w *ResponseWriter) SetStatus(code int, message string) {
	if w.headersSent {
		return
	}
	w.status = code
	w.message = message
}

// SetConnectionClose asks for the connection to close after this response.
func (w *ResponseWriter) SetConnectionClose() {
	w.closeConn = true
}

// KeepAlive reports whether the connection may serve another request.
func (w *ResponseWriter) KeepAlive() bool {
	return w.keepAlive && !w.closeConn && !w.rawUntilEOF
}

// HeadersSent reports whether the response head reached the buffer.
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

// Send writes the whole response with a content-length of len(body).
func (w *ResponseWriter) Send(body []byte) error {
	if w.ended {
		return errResponseEnded
	}
	if w.headersSent {
		if _, err := w.Write(body); err != nil {
			return err
		}
		return w.End()
	}
	if err := w.writeHead(int64(len(body))); err != nil {
		return err
	}
	if w.bodyAllowed() {
		n, err := w.bw.Write(body)
		w.written += int64(n)
		w.remaining -= int64(n)
		if err != nil {
			return err
		}
	}
	return w.finish()
}

// Stream copies r to the connection. A non-negative size is sent as content-length
// and exactly size bytes are copied; otherwise the body is chunk encoded.
func (w *ResponseWriter) Stream(r io.Reader, size int64) error {
	if w.ended {
		return errResponseEnded
	}
	if !w.headersSent {
		if size < 0 {
			size = w.declaredLength()
		}
		if err := w.writeHead(size); err != nil {
			return err
		}
	}
	if !w.bodyAllowed() {
		return w.finish()
	}
	var err error
	if w.remaining >= 0 {
		var n int64
		n, err = io.CopyN(w.bw, r, w.remaining)
		w.written += n
		w.remaining -= n
		if errors.Is(err, io.EOF) {
			err = errShortStreamBody
		}
	} else {
		_, err = io.Copy(w, r)
	}
	if err != nil {
		return err
	}
	return w.finish()
}

// Write appends p to the body, sending the head first if needed.
// Without a declared content-length the body is chunk encoded (or delimited by
// connection close for HTTP/1.0 peers).
func (w *ResponseWriter) Write(p []byte) (int, error) {
	if w.ended {
		return 0, errResponseEnded
	}
	if !w.headersSent {
		if err := w.writeHead(w.declaredLength()); err != nil {
			return 0, err
		}
	}
	if !w.bodyAllowed() || len(p) == 0 {
		return len(p), nil
	}
	var (
		n   int
		err error
	)
	switch {
	case w.chunked:
		n, err = w.enc.Write(p)
	case w.remaining >= 0:
		if int64(len(p)) > w.remaining {
			return 0, fmt.Errorf("h1: body exceeds declared content-length by %d bytes", int64(len(p))-w.remaining)
		}
		n, err = w.bw.Write(p)
		w.remaining -= int64(n)
	default:
		n, err = w.bw.Write(p)
	}
	w.written += int64(n)
	if err != nil {
		return n, err
	}
	return n, w.bw.Flush()
}

// End completes the response. With no head sent yet an empty body is framed.
func (w *ResponseWriter) End() error {
	if w.ended {
		return nil
	}
	if !w.headersSent {
		if err := w.writeHead(0); err != nil {
			return err
		}
	}
	return w.finish()
}

// WriteContinue sends the interim 100 Continue response.
func (w *ResponseWriter) WriteContinue() error {
	if w.headersSent || w.http10 {
		return nil
	}
	if _, err := w.bw.Write(continueInterim); err != nil {
		return err
	}
	return w.bw.Flush()
}

// Reset restores the writer to its pre-request state.
func (w *ResponseWriter) Reset() {
	w.status = 200
	w.message = ""
	w.headers = w.headers[:0]
	w.http10 = false
	w.headOnly = false
	w.keepAlive = false
	w.closeConn = false
	w.headersSent = false
	w.chunked = false
	w.rawUntilEOF = false
	w.ended = false
	w.remaining = -1
	w.written = 0
	w.enc.Reset(nil)
}

func (w *ResponseWriter) finish() error {
	w.ended = true
	if w.chunked && w.bodyAllowed() {
		if err := w.enc.End(); err != nil {
			return err
		}
	}
	if w.remaining > 0 && w.bodyAllowed() {
		// The declared length was not met; the peer cannot find the next response.
		w.closeConn = true
	}
	return w.bw.Flush()
}

func (w *ResponseWriter) bodyAllowed() bool {
	return !w.headOnly && bodyAllowed(w.status)
}

func (w *ResponseWriter) declaredLength() int64 {
	for _, h := range w.headers {
		if asciiEqualFold(h[0], "content-length") {
			if n, err := strconv.ParseInt(h[1], 10, 64); err == nil && n >= 0 {
				return n
			}
		}
	}
	return -1
}

// writeHead assembles status line and headers in one pooled buffer.
// contentLength < 0 selects chunked framing.
func (w *ResponseWriter) writeHead(contentLength int64) error {
	bb := bytebuffer.Get()
	defer bytebuffer.Put(bb)
	buf := bb.B[:0]

	if w.status == 200 && w.message == "" {
		buf = append(buf, statusLine200...)
	} else {
		msg := w.message
		if msg == "" {
			msg = StatusText(w.status)
		}
		buf = append(buf, "HTTP/1.1 "...)
		buf = strconv.AppendInt(buf, int64(w.status), 10)
		buf = append(buf, ' ')
		buf = append(buf, msg...)
		buf = append(buf, crlf...)
	}

	hasDate := false
	for _, h := range w.headers {
		switch {
		case asciiEqualFold(h[0], "content-length"),
			asciiEqualFold(h[0], "transfer-encoding"),
			asciiEqualFold(h[0], "connection"):
			continue
		case asciiEqualFold(h[0], "date"):
			hasDate = true
		}
		buf = append(buf, h[0]...)
		buf = append(buf, headerSep...)
		buf = append(buf, h[1]...)
		buf = append(buf, crlf...)
	}
	if !hasDate {
		buf = append(buf, headerDate...)
		buf = append(buf, date.Current()...)
		buf = append(buf, crlf...)
	}

	w.remaining = contentLength
	if bodyAllowed(w.status) {
		switch {
		case contentLength >= 0:
			buf = append(buf, headerContentLen...)
			buf = strconv.AppendInt(buf, contentLength, 10)
			buf = append(buf, crlf...)
		case w.http10:
			w.rawUntilEOF = true
		default:
			w.chunked = true
			buf = append(buf, headerChunked...)
		}
	}

	buf = append(buf, headerConnection...)
	if w.KeepAlive() {
		buf = append(buf, headerKeepAlive...)
	} else {
		buf = append(buf, headerClose...)
	}
	buf = append(buf, crlf...)
	bb.B = buf

	w.headersSent = true
	if w.chunked {
		w.enc.Reset(w.bw)
	}
	_, err := w.bw.Write(buf)
	return err
}

// asciiEqualFold reports whether s equals t under ASCII case-insensitive comparison
func asciiEqualFold(s, t string) bool {
	if len(s) != len(t) {
		return false
	}
	for i := 0; i < len(s); i++ {
		cs, ct := s[i], t[i]
		if 'A' <= cs && cs <= 'Z' {
			cs |= 0x20
		}
		if 'A' <= ct && ct <= 'Z' {
			ct |= 0x20
		}
		if cs != ct {
			return false
		}
	}
	return true
}
