// Package ignis is an HTTP/1.1 and HTTP/2 connection engine. It accepts connections,
// frames requests, runs them through an ordered middleware pipeline and writes
// responses with protocol-appropriate framing, reusing contexts from a fixed pool.
package ignis

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Engine owns one listener per enabled transport and the shared context pool.
type Engine struct {
	opts      Options
	logger    *zap.Logger
	pool      *ContextPool
	listeners []*listener

	mu       sync.Mutex
	disposed bool

	sigCh   chan os.Signal
	sigDone chan struct{}
	sigOnce sync.Once
}

// New creates an engine from opts. An invalid pool capacity is returned as
// ErrInvalidPoolCapacity. Having no transport enabled is not an error; it is
// reported through Options.OnEvent as EventConfigError.
func New(opts Options) (*Engine, error) {
	opts.normalize()
	pool, err := NewContextPool(opts.General.PoolCapacity)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:   opts,
		logger: opts.Logger,
		pool:   pool,
	}

	if !opts.HTTP.Enabled && !opts.HTTPS.Enabled {
		e.emit(Event{Type: EventConfigError, Detail: "at least one of http or https must be enabled"})
	}
	if opts.HTTP.Enabled {
		e.listeners = append(e.listeners, newListener(e, "http", opts.HTTP.addr(), opts.HTTP.KeepAliveTimeout, nil))
	}
	if opts.HTTPS.Enabled {
		cfg, err := opts.HTTPS.Certificate.tlsConfig(opts.General.EnableH2)
		if err != nil {
			e.emit(Event{Type: EventConfigError, Detail: err.Error()})
		} else {
			e.listeners = append(e.listeners, newListener(e, "https", opts.HTTPS.addr(), opts.HTTPS.KeepAliveTimeout, cfg))
		}
	}

	if opts.General.HandleSignals {
		e.handleSignals()
	}
	return e, nil
}

// Use registers middleware on every sub-server pipeline, in order.
func (e *Engine) Use(middleware ...Middleware) *Engine {
	for _, l := range e.listeners {
		l.pipeline.Use(middleware...)
	}
	return e
}

// Start begins accepting on every configured listener. If one fails the others are stopped.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return ErrEngineDisposed
	}

	for i, l := range e.listeners {
		if err := l.start(); err != nil {
			for _, started := range e.listeners[:i] {
				err = multierr.Append(err, e.stopListener(context.Background(), started))
			}
			return err
		}
	}
	return nil
}

// Stop stops accepting immediately, waits for in-flight requests until ctx is done
// (or General.ShutdownTimeout when ctx has no deadline) and force-closes the rest.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked(ctx)
}

func (e *Engine) stopLocked(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.General.ShutdownTimeout)
		defer cancel()
	}

	var wg sync.WaitGroup
	errs := make([]error, len(e.listeners))
	for i, l := range e.listeners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.stopListener(ctx, l)
		}()
	}
	wg.Wait()
	return multierr.Combine(errs...)
}

func (e *Engine) stopListener(ctx context.Context, l *listener) error {
	err := l.stop(ctx)
	if err == ErrNotListening {
		return nil
	}
	return err
}

// Restart stops and starts every listener.
func (e *Engine) Restart(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return ErrEngineDisposed
	}
	if err := e.stopLocked(ctx); err != nil {
		e.logger.Warn("restart: stop reported errors", zap.Error(err))
	}
	var err error
	for _, l := range e.listeners {
		err = multierr.Append(err, l.start())
	}
	return err
}

// Dispose stops the engine and deregisters its signal handlers. The engine cannot be started again.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return nil
	}
	e.disposed = true
	if e.sigCh != nil {
		signal.Stop(e.sigCh)
		close(e.sigDone)
	}
	return e.stopLocked(context.Background())
}

// Pool returns the shared context pool.
func (e *Engine) Pool() *ContextPool {
	return e.pool
}

// Addr returns the bound address of the "http" or "https" listener, or nil when it is not listening.
func (e *Engine) Addr(name string) net.Addr {
	if l := e.listener(name); l != nil {
		return l.Addr()
	}
	return nil
}

// State returns the state of the "http" or "https" listener.
func (e *Engine) State(name string) State {
	if l := e.listener(name); l != nil {
		return l.State()
	}
	return StateStopped
}

// Pipeline returns the pipeline of the "http" or "https" listener.
func (e *Engine) Pipeline(name string) *Pipeline {
	if l := e.listener(name); l != nil {
		return l.pipeline
	}
	return nil
}

func (e *Engine) listener(name string) *listener {
	for _, l := range e.listeners {
		if l.name == name {
			return l
		}
	}
	return nil
}

// handleSignals stops the engine once on the first SIGINT or SIGTERM.
func (e *Engine) handleSignals() {
	e.sigCh = make(chan os.Signal, 1)
	e.sigDone = make(chan struct{})
	signal.Notify(e.sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-e.sigCh:
			e.logger.Info("signal received", zap.String("signal", sig.String()))
			e.emit(Event{Type: EventSignal, Detail: sig.String()})
			e.sigOnce.Do(func() {
				if err := e.Stop(context.Background()); err != nil {
					e.logger.Error("stop after signal", zap.Error(err))
				}
			})
		case <-e.sigDone:
		}
	}()
}

func (e *Engine) emit(ev Event) {
	if ev.Type == EventConfigError {
		e.logger.Error("configuration error", zap.String("detail", ev.Detail))
	}
	if e.opts.OnEvent != nil {
		e.opts.OnEvent(ev)
	}
}
