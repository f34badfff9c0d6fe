package ignis

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/albertbausili/ignis/internal/transport"
	"github.com/goccy/go-json"
	"github.com/panjf2000/gnet/v2/pkg/pool/bytebuffer"
)

var errNoTransport = errors.New("ignis: response has no bound transport")

// Response is the response of one cycle. Status and headers are buffered until the
// first wire operation; OnEnd callbacks run exactly once right before that point.
type Response struct {
	status  int
	message string
	Headers Headers

	onEnd     []func(*Response)
	committed bool
	unhandled bool

	transport transport.ResponseTransport
	encoding  *bodyEncoding
	encw      io.WriteCloser
}

// bodyEncoding is installed by the Compress middleware and applied at commit time.
type bodyEncoding struct {
	name     string
	minSize  int
	excluded []string
	acquire  func(w io.Writer) io.WriteCloser
	release  func(io.WriteCloser)
}

type flusher interface {
	Flush() error
}

func (r *Response) reset() {
	r.status = 200
	r.message = ""
	r.Headers.Reset()
	clear(r.onEnd)
	r.onEnd = r.onEnd[:0]
	r.committed = false
	r.unhandled = false
	r.transport = nil
	r.encoding = nil
	r.encw = nil
}

// Status returns the current HTTP response status code.
func (r *Response) Status() int {
	return r.status
}

// SetStatus sets the HTTP response status code. It has no effect once the head is committed.
func (r *Response) SetStatus(code int) {
	if r.committed {
		return
	}
	r.status = code
	r.message = ""
}

// SetStatusMessage sets the status code with a custom reason phrase (HTTP/1.1 only).
func (r *Response) SetStatusMessage(code int, message string) {
	if r.committed {
		return
	}
	r.status = code
	r.message = message
}

// SetHeader sets an HTTP response header.
func (r *Response) SetHeader(key, value string) {
	r.Headers.Set(key, value)
}

// AddHeader appends an HTTP response header.
func (r *Response) AddHeader(key, value string) {
	r.Headers.Add(key, value)
}

// OnEnd registers fn to run once, before the first byte of the response is written.
// Callbacks run in registration order. Registrations after that point are ignored.
func (r *Response) OnEnd(fn func(*Response)) {
	if r.committed {
		return
	}
	r.onEnd = append(r.onEnd, fn)
}

// CloseConnection asks the transport to close the connection after this response.
func (r *Response) CloseConnection() {
	if r.transport != nil {
		r.transport.SetConnectionClose()
	}
}

// Kind reports the protocol of the bound transport.
func (r *Response) Kind() transport.Kind {
	if r.transport == nil {
		return 0
	}
	return r.transport.Kind()
}

// Committed reports whether status and headers are frozen.
func (r *Response) Committed() bool {
	return r.committed
}

// HeadersSent reports whether the response head reached the wire.
func (r *Response) HeadersSent() bool {
	return r.transport != nil && r.transport.HeadersSent()
}

// Ended reports whether the response is complete.
func (r *Response) Ended() bool {
	return r.transport != nil && r.transport.Ended()
}

// Written returns the number of body bytes handed to the transport.
func (r *Response) Written() int64 {
	if r.transport == nil {
		return 0
	}
	return r.transport.Written()
}

// Unhandled reports whether the request fell through the whole pipeline.
func (r *Response) Unhandled() bool {
	return r.unhandled
}

// Send writes body as the complete response.
func (r *Response) Send(body []byte) error {
	if r.transport == nil {
		return errNoTransport
	}
	if r.committed {
		if _, err := r.Write(body); err != nil {
			return err
		}
		return r.End()
	}
	if !r.commit(int64(len(body))) {
		return r.transport.Send(body)
	}

	bb := bytebuffer.Get()
	defer bytebuffer.Put(bb)
	w := r.encoding.acquire(bb)
	_, err := w.Write(body)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	r.encoding.release(w)
	if err != nil {
		return err
	}
	return r.transport.Send(bb.B)
}

// SendString writes s as the complete response.
func (r *Response) SendString(s string) error {
	return r.Send([]byte(s))
}

// Stream copies rd to the client without buffering it. A non-negative size is
// the exact body length; a negative size selects length-free framing.
func (r *Response) Stream(rd io.Reader, size int64) error {
	if r.transport == nil {
		return errNoTransport
	}
	if r.committed {
		if _, err := io.Copy(r, rd); err != nil {
			return err
		}
		return r.End()
	}
	if !r.commit(size) {
		return r.transport.Stream(rd, size)
	}
	if size >= 0 {
		rd = io.LimitReader(rd, size)
	}
	if r.encw == nil {
		r.encw = r.encoding.acquire(transportWriter{r.transport})
	}
	if _, err := io.Copy(r, rd); err != nil {
		return err
	}
	return r.End()
}

// Write streams p as part of a body of unknown length.
func (r *Response) Write(p []byte) (int, error) {
	if r.transport == nil {
		return 0, errNoTransport
	}
	if !r.committed {
		r.commit(-1)
	}
	if r.encw == nil {
		return r.transport.Write(p)
	}
	n, err := r.encw.Write(p)
	if err != nil {
		return n, err
	}
	if f, ok := r.encw.(flusher); ok {
		err = f.Flush()
	}
	return n, err
}

// End completes the response, sending an empty body if nothing was written.
func (r *Response) End() error {
	if r.transport == nil {
		return errNoTransport
	}
	if !r.committed {
		r.commit(0)
	}
	if r.encw != nil {
		w := r.encw
		r.encw = nil
		err := w.Close()
		r.encoding.release(w)
		if err != nil {
			return err
		}
	}
	return r.transport.End()
}

// String sends a formatted text response with the given status code.
func (r *Response) String(status int, format string, values ...any) error {
	r.SetStatus(status)
	r.Headers.Set("content-type", "text/plain; charset=utf-8")
	if len(values) == 0 {
		return r.SendString(format)
	}
	return r.SendString(fmt.Sprintf(format, values...))
}

// JSON sends v encoded as JSON with the given status code.
func (r *Response) JSON(status int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.SetStatus(status)
	r.Headers.Set("content-type", "application/json")
	return r.Send(data)
}

// NoContent sends a response with no body content.
func (r *Response) NoContent(status int) error {
	r.SetStatus(status)
	return r.End()
}

// Redirect sends an HTTP redirect response.
func (r *Response) Redirect(status int, url string) error {
	if status < 300 || status > 308 {
		status = 302
	}
	r.SetStatus(status)
	r.Headers.Set("location", url)
	return r.End()
}

// commit runs the OnEnd callbacks and freezes status and headers onto the transport.
// size is the known body length or -1. It reports whether the body is encoded.
func (r *Response) commit(size int64) bool {
	r.committed = true
	for _, fn := range r.onEnd {
		fn(r)
	}

	encode := r.shouldEncode(size)
	if encode {
		r.Headers.Del("content-length")
		r.Headers.Set("content-encoding", r.encoding.name)
		r.Headers.Add("vary", "Accept-Encoding")
	}

	r.transport.SetStatus(r.status, r.message)
	for _, f := range r.Headers.All() {
		r.transport.SetHeader(f[0], f[1])
	}
	if encode && size < 0 {
		r.encw = r.encoding.acquire(transportWriter{r.transport})
	}
	return encode
}

func (r *Response) shouldEncode(size int64) bool {
	e := r.encoding
	if e == nil || size == 0 || (size > 0 && size < int64(e.minSize)) {
		return false
	}
	if r.status < 200 || r.status == 204 || r.status == 304 || r.status == 206 {
		return false
	}
	if r.Headers.Has("content-encoding") {
		return false
	}
	if cl := r.Headers.Get("content-length"); cl != "" && size < 0 {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n < int64(e.minSize) {
			return false
		}
	}
	ct := r.Headers.Get("content-type")
	for _, excluded := range e.excluded {
		if strings.HasPrefix(ct, excluded) {
			return false
		}
	}
	return true
}

// transportWriter feeds encoder output into the transport's incremental body.
type transportWriter struct {
	t transport.ResponseTransport
}

func (w transportWriter) Write(p []byte) (int, error) {
	return w.t.Write(p)
}
