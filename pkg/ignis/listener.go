package ignis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/albertbausili/ignis/internal/date"
	"github.com/albertbausili/ignis/internal/h2"
	"github.com/albertbausili/ignis/internal/mux"
	"github.com/albertbausili/ignis/internal/transport"
	"github.com/panjf2000/ants/v2"
	"github.com/panjf2000/gnet/v2/pkg/pool/goroutine"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// State is the lifecycle state of one listener.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateListening
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

var serviceUnavailable = []byte("HTTP/1.1 503 Service Unavailable\r\ncontent-length: 0\r\nconnection: close\r\n\r\n")

// connState is the registry entry of one live connection.
type connState struct {
	kind atomic.Uint32
	idle atomic.Bool
}

// listener is one sub-server (HTTP or HTTPS) with its own pipeline.
type listener struct {
	name      string
	engine    *Engine
	pipeline  *Pipeline
	logger    *zap.Logger
	addr      string
	keepAlive time.Duration
	tls       *tls.Config

	state atomic.Int32
	mu    sync.Mutex // serializes start and stop

	ln       net.Listener
	workers  *ants.Pool
	shared   bool // workers is the process-wide default pool
	h2       *h2.Server
	conns    *xsync.MapOf[net.Conn, *connState]
	wg       sync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc
	stopDate func()
}

func newListener(e *Engine, name, addr string, keepAlive time.Duration, tlsConfig *tls.Config) *listener {
	return &listener{
		name:      name,
		engine:    e,
		pipeline:  NewPipeline(),
		logger:    e.logger.Named(name),
		addr:      addr,
		keepAlive: keepAlive,
		tls:       tlsConfig,
	}
}

func (l *listener) State() State {
	return State(l.state.Load())
}

func (l *listener) draining() bool {
	return l.State() != StateListening
}

// Addr returns the bound address while listening.
func (l *listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

func (l *listener) start() error {
	addr, err := l.open()
	if err != nil {
		return err
	}
	l.engine.emit(Event{Type: EventListening, Detail: l.name + " " + addr.String()})
	return nil
}

func (l *listener) open() (net.Addr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return nil, fmt.Errorf("ignis: %s listener is %s", l.name, l.State())
	}

	opts := &l.engine.opts.General
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		l.state.Store(int32(StateStopped))
		return nil, fmt.Errorf("ignis: %s listen: %w", l.name, err)
	}
	if l.tls != nil {
		ln = tls.NewListener(ln, l.tls)
	}

	workers, shared, err := l.newWorkerPool()
	if err != nil {
		_ = ln.Close()
		l.state.Store(int32(StateStopped))
		return nil, fmt.Errorf("ignis: %s worker pool: %w", l.name, err)
	}

	var h2s *h2.Server
	if opts.EnableH2 {
		h2s, err = h2.NewServer(h2.Config{
			MaxConcurrentStreams: opts.MaxConcurrentStreams,
			IdleTimeout:          l.keepAlive,
			ReadHeaderTimeout:    opts.ReadHeaderTimeout,
			ErrorLog:             zap.NewStdLog(l.logger.Named("h2")),
		})
		if err != nil {
			if !shared {
				workers.Release()
			}
			_ = ln.Close()
			l.state.Store(int32(StateStopped))
			return nil, fmt.Errorf("ignis: %s http2: %w", l.name, err)
		}
	}

	l.ln = ln
	l.workers = workers
	l.shared = shared
	l.h2 = h2s
	l.conns = xsync.NewMapOf[net.Conn, *connState]()
	l.baseCtx, l.cancel = context.WithCancel(context.Background())
	l.stopDate = date.Start()
	l.state.Store(int32(StateListening))

	l.wg.Add(1)
	go l.acceptLoop(ln)

	l.logger.Info("listening", zap.String("addr", ln.Addr().String()), zap.Bool("h2", opts.EnableH2))
	return ln.Addr(), nil
}

// newWorkerPool bounds concurrent connections. Without a limit the gnet default pool is used.
func (l *listener) newWorkerPool() (*ants.Pool, bool, error) {
	limit := l.engine.opts.General.MaxConnections
	if limit <= 0 {
		return goroutine.Default(), true, nil
	}
	p, err := ants.NewPool(limit,
		ants.WithNonblocking(true),
		ants.WithExpiryDuration(10*time.Second),
		ants.WithLogger(zap.NewStdLog(l.logger.Named("workers"))),
		ants.WithPanicHandler(func(v any) {
			l.logger.Error("connection worker panic", zap.Any("panic", v))
		}),
	)
	return p, false, err
}

func (l *listener) acceptLoop(ln net.Listener) {
	defer l.wg.Done()
	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if l.draining() || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else if backoff *= 2; backoff > time.Second {
					backoff = time.Second
				}
				time.Sleep(backoff)
				continue
			}
			l.logger.Error("accept failed", zap.Error(err))
			return
		}
		backoff = 0

		l.wg.Add(1)
		if err := l.workers.Submit(func() {
			defer l.wg.Done()
			l.serveConn(c)
		}); err != nil {
			l.wg.Done()
			l.refuse(c, err)
		}
	}
}

// refuse answers a connection the worker pool cannot take.
func (l *listener) refuse(c net.Conn, err error) {
	connectionsRejected.Inc()
	l.logger.Warn("connection refused", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
	if _, isTLS := c.(*tls.Conn); !isTLS && errors.Is(err, ants.ErrPoolOverload) {
		_ = c.SetWriteDeadline(time.Now().Add(time.Second))
		_, _ = c.Write(serviceUnavailable)
	}
	_ = c.Close()
}

func (l *listener) serveConn(c net.Conn) {
	st := &connState{}
	l.conns.Store(c, st)
	defer func() {
		l.conns.Delete(c)
		_ = c.Close()
	}()
	if l.draining() {
		return
	}

	conn, kind, err := mux.Detect(c, mux.Config{
		EnableH1: true,
		EnableH2: l.h2 != nil,
		Timeout:  l.engine.opts.General.ReadHeaderTimeout,
	})
	if err != nil {
		l.logger.Debug("protocol detection failed", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
		return
	}
	st.kind.Store(uint32(kind))

	label := kind.String()
	connectionsTotal.WithLabelValues(label).Inc()
	connectionsActive.WithLabelValues(label).Inc()
	defer connectionsActive.WithLabelValues(label).Dec()

	switch kind {
	case transport.KindH1:
		l.serveH1(conn, &st.idle)
	case transport.KindH2:
		l.serveH2(conn)
	}
}

// stop closes the listener, lets in-flight requests finish until ctx is done,
// then force-closes the remaining connections.
func (l *listener) stop(ctx context.Context) error {
	err := l.shutdown(ctx)
	if errors.Is(err, ErrNotListening) {
		return err
	}
	l.engine.emit(Event{Type: EventStopped, Detail: l.name})
	return err
}

func (l *listener) shutdown(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.CompareAndSwap(int32(StateListening), int32(StateStopping)) {
		return ErrNotListening
	}

	_ = l.ln.Close()
	if l.h2 != nil {
		// Sends GOAWAY on every HTTP/2 connection.
		_ = l.h2.Shutdown(ctx)
	}
	l.conns.Range(func(c net.Conn, st *connState) bool {
		// Connections still being classified or idle between requests carry no work.
		if kind := transport.Kind(st.kind.Load()); kind == 0 || (kind == transport.KindH1 && st.idle.Load()) {
			_ = c.SetReadDeadline(time.Now())
		}
		return true
	})

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("ignis: %s shutdown: %w", l.name, ctx.Err())
		l.cancel()
		forced := 0
		l.conns.Range(func(c net.Conn, _ *connState) bool {
			_ = c.Close()
			forced++
			return true
		})
		l.logger.Warn("forced connections closed", zap.Int("count", forced))
		select {
		case <-done:
		case <-time.After(time.Second):
			l.logger.Warn("handlers still running after forced close")
		}
	}

	l.cancel()
	if !l.shared {
		l.workers.Release()
	}
	l.stopDate()
	l.ln = nil
	l.state.Store(int32(StateStopped))
	l.logger.Info("stopped")
	return err
}

// complete finishes a response the pipeline left open. A request no middleware
// answered gets 404.
func (l *listener) complete(ctx *Context) error {
	res := &ctx.Response
	if res.Ended() {
		return nil
	}
	if !res.Committed() && res.Unhandled() {
		return res.String(404, "Not Found")
	}
	return res.End()
}

func (l *listener) logFailure(ctx *Context, err error) {
	fields := []zap.Field{
		zap.String("method", ctx.Request.Method),
		zap.String("path", ctx.Request.Path),
		zap.String("remote", ctx.Request.RemoteAddr),
		zap.Error(err),
	}
	var me *MiddlewareError
	if errors.As(err, &me) {
		fields = append(fields, zap.String("middleware", me.Name))
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		fields = append(fields, zap.ByteString("stack", pe.Stack))
	}
	l.logger.Error("request failed", fields...)
}
