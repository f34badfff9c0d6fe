package ignis

import (
	"bufio"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http/httputil"
	"sync/atomic"
	"time"

	"github.com/albertbausili/ignis/internal/h1"
	"go.uber.org/zap"
)

const readBufferSize = 4096

// h1Conn drives the request loop of one HTTP/1.x connection.
// readBuf is only refilled once pending is empty; pending may alias it.
type h1Conn struct {
	l    *listener
	conn net.Conn
	idle *atomic.Bool

	parser  *h1.FrameParser
	readBuf []byte
	pending []byte
	bw      *bufio.Writer
	tls     *tls.ConnectionState

	cur     *Context
	expect  bool
	lenBody lengthBody
	chBody  chunkedBody
	bodyBr  *bufio.Reader
}

func (l *listener) serveH1(conn net.Conn, idle *atomic.Bool) {
	hc := &h1Conn{
		l:       l,
		conn:    conn,
		idle:    idle,
		parser:  h1.NewFrameParser(l.engine.opts.General.MaxHeaderSize),
		readBuf: make([]byte, readBufferSize),
		bw:      bufio.NewWriterSize(conn, readBufferSize),
	}
	if tc, ok := conn.(*tls.Conn); ok {
		state := tc.ConnectionState()
		hc.tls = &state
	}
	hc.lenBody.hc = hc
	hc.chBody.hc = hc

	for first := true; ; first = false {
		ctx := l.engine.pool.Acquire()
		keep := hc.serveRequest(ctx, first)
		hc.cur = nil
		l.engine.pool.Release(ctx)
		if !keep || l.draining() {
			return
		}
	}
}

// Read serves bytes left over from header framing before reading the socket.
func (hc *h1Conn) Read(p []byte) (int, error) {
	if len(hc.pending) > 0 {
		n := copy(p, hc.pending)
		hc.pending = hc.pending[n:]
		return n, nil
	}
	return hc.conn.Read(p)
}

// serveRequest runs one request/response cycle and reports whether the connection may be reused.
func (hc *h1Conn) serveRequest(ctx *Context, first bool) bool {
	hc.cur = ctx
	block, err := hc.readHeader(first)
	if err != nil {
		if errors.Is(err, ErrHeaderOverflow) {
			hc.l.logger.Debug("header block overflow", zap.String("remote", hc.conn.RemoteAddr().String()))
			hc.reject(ctx, &ParseError{Status: 431, Reason: "header block too large", Fatal: true})
		}
		return false
	}

	req := &ctx.Request
	perr := parseHeaderBlock(req, block)
	req.RemoteAddr = hc.conn.RemoteAddr().String()
	req.TLS = hc.tls
	ctx.SetContext(hc.l.baseCtx)
	if perr != nil && perr.Fatal {
		hc.reject(ctx, perr)
		return false
	}

	hc.setupBody(req)
	ctx.bindH1(hc.bw)
	if hc.l.draining() {
		ctx.Response.CloseConnection()
	}

	if perr != nil {
		hc.reject(ctx, perr)
	} else if !hc.dispatch(ctx) {
		return false
	}

	if !hc.finishBody() {
		return false
	}
	return ctx.h1w.KeepAlive()
}

// readHeader returns the next header block. On the first request, or with pipelined
// bytes already pending, ReadHeaderTimeout applies; an idle connection waits KeepAliveTimeout.
func (hc *h1Conn) readHeader(first bool) ([]byte, error) {
	if len(hc.pending) > 0 {
		data := hc.pending
		hc.pending = nil
		res := hc.parser.Append(data)
		switch {
		case res.Overflow:
			return nil, ErrHeaderOverflow
		case res.Header != nil:
			hc.pending = res.Remaining
			return res.Header, nil
		}
	}

	opts := &hc.l.engine.opts.General
	for {
		waitingIdle := !first && hc.parser.Buffered() == 0
		var deadline time.Duration
		if waitingIdle {
			deadline = hc.l.keepAlive
			hc.idle.Store(true)
		} else {
			deadline = opts.ReadHeaderTimeout
		}
		if deadline > 0 {
			_ = hc.conn.SetReadDeadline(time.Now().Add(deadline))
		} else {
			_ = hc.conn.SetReadDeadline(time.Time{})
		}
		if waitingIdle && hc.l.draining() {
			return nil, io.EOF
		}

		n, err := hc.conn.Read(hc.readBuf)
		hc.idle.Store(false)
		if n > 0 {
			res := hc.parser.Append(hc.readBuf[:n])
			switch {
			case res.Overflow:
				return nil, ErrHeaderOverflow
			case res.Header != nil:
				_ = hc.conn.SetReadDeadline(time.Time{})
				hc.pending = res.Remaining
				return res.Header, nil
			}
		}
		if err != nil {
			// A connection closed mid-parse drops its partial block.
			hc.parser.Reset()
			return nil, err
		}
	}
}

func (hc *h1Conn) setupBody(req *Request) {
	hc.expect = false
	if req.Version == "HTTP/1.1" {
		for _, v := range req.Headers.Values("expect") {
			if asciiContainsFold(v, "100-continue") {
				hc.expect = true
			}
		}
	}
	switch {
	case req.Chunked:
		if hc.bodyBr == nil {
			hc.bodyBr = bufio.NewReaderSize(hc, readBufferSize)
		} else {
			hc.bodyBr.Reset(hc)
		}
		hc.chBody.r = httputil.NewChunkedReader(hc.bodyBr)
		hc.chBody.done = false
		req.Body = &hc.chBody
	case req.ContentLength > 0:
		hc.lenBody.remaining = req.ContentLength
		req.Body = &hc.lenBody
	default:
		hc.expect = false
	}
}

// beforeBodyRead answers Expect: 100-continue on the first body read.
func (hc *h1Conn) beforeBodyRead() error {
	if !hc.expect {
		return nil
	}
	hc.expect = false
	return hc.cur.h1w.WriteContinue()
}

// finishBody drains what the handler left unread, up to MaxBodyDrain.
// It reports whether the connection is still positioned at the next request.
func (hc *h1Conn) finishBody() bool {
	req := &hc.cur.Request
	switch {
	case req.Chunked:
		if hc.chBody.done {
			return true
		}
	case req.ContentLength > 0:
		if hc.lenBody.remaining == 0 {
			return true
		}
	default:
		return true
	}
	if hc.expect {
		// The client is still waiting for 100 Continue; the body may never come.
		return false
	}

	limit := hc.l.engine.opts.General.MaxBodyDrain
	if t := hc.l.engine.opts.General.ReadHeaderTimeout; t > 0 {
		_ = hc.conn.SetReadDeadline(time.Now().Add(t))
		defer func() { _ = hc.conn.SetReadDeadline(time.Time{}) }()
	}
	n, err := io.CopyN(io.Discard, req.Body, limit+1)
	if n > limit {
		return false
	}
	return errors.Is(err, io.EOF)
}

// dispatch runs the pipeline and completes the response. It reports whether the
// response reached the wire cleanly.
func (hc *h1Conn) dispatch(ctx *Context) bool {
	err := hc.l.pipeline.Dispatch(ctx)
	if err != nil {
		hc.l.logFailure(ctx, err)
		if ctx.Response.HeadersSent() {
			// Part of the response is on the wire and cannot be retracted.
			return false
		}
		status, msg := statusOf(err)
		ctx.Response.reset()
		ctx.bindH1(hc.bw)
		if msg == "" {
			msg = h1.StatusText(status)
		}
		return ctx.Response.String(status, msg) == nil
	}
	return hc.l.complete(ctx) == nil
}

// reject answers a request that never reached the pipeline.
func (hc *h1Conn) reject(ctx *Context, perr *ParseError) {
	if ctx.Request.Version == "" {
		ctx.Request.Version = "HTTP/1.1"
	}
	if perr.Fatal {
		ctx.Request.KeepAlive = false
	}
	ctx.bindH1(hc.bw)
	if perr.Fatal {
		ctx.Response.CloseConnection()
	}
	_ = hc.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = ctx.Response.String(perr.Status, h1.StatusText(perr.Status))
	_ = hc.conn.SetWriteDeadline(time.Time{})
}

// skipTrailer consumes the trailer section that follows the last chunk.
func (hc *h1Conn) skipTrailer() error {
	budget := hc.l.engine.opts.General.MaxHeaderSize
	for {
		line, err := hc.bodyBr.ReadSlice('\n')
		if err != nil {
			return err
		}
		budget -= len(line)
		if budget < 0 {
			return ErrHeaderOverflow
		}
		if len(line) <= 2 && (len(line) == 1 || line[0] == '\r') {
			return nil
		}
	}
}

// reclaim returns bytes the chunked decoder read ahead past the body.
func (hc *h1Conn) reclaim() {
	n := hc.bodyBr.Buffered()
	if n == 0 {
		return
	}
	ahead, _ := hc.bodyBr.Peek(n)
	carry := make([]byte, 0, n+len(hc.pending))
	carry = append(carry, ahead...)
	carry = append(carry, hc.pending...)
	hc.pending = carry
	_, _ = hc.bodyBr.Discard(n)
}

// lengthBody reads a Content-Length delimited request body.
type lengthBody struct {
	hc        *h1Conn
	remaining int64
}

func (b *lengthBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, io.EOF
	}
	if err := b.hc.beforeBodyRead(); err != nil {
		return 0, err
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.hc.Read(p)
	b.remaining -= int64(n)
	if errors.Is(err, io.EOF) && b.remaining > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// chunkedBody reads a chunked request body.
type chunkedBody struct {
	hc   *h1Conn
	r    io.Reader
	done bool
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if b.done {
		return 0, io.EOF
	}
	if err := b.hc.beforeBodyRead(); err != nil {
		return 0, err
	}
	n, err := b.r.Read(p)
	if errors.Is(err, io.EOF) {
		b.done = true
		if terr := b.hc.skipTrailer(); terr != nil {
			return n, terr
		}
		b.hc.reclaim()
	}
	return n, err
}
