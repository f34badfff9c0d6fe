package ignis

import "sync"

// ContextPool is a fixed-capacity LIFO free list of contexts shared by all connections of an engine.
type ContextPool struct {
	mu       sync.Mutex
	free     []*Context
	capacity int
}

// NewContextPool creates a pool holding at most capacity idle contexts.
// capacity must be a positive power of two.
func NewContextPool(capacity int) (*ContextPool, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, ErrInvalidPoolCapacity
	}
	return &ContextPool{
		free:     make([]*Context, 0, capacity),
		capacity: capacity,
	}, nil
}

// Acquire returns the most recently released context, or a new one when the pool is empty.
func (p *ContextPool) Acquire() *Context {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		poolAcquireTotal.WithLabelValues("miss").Inc()
		return newContext()
	}
	c := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	p.mu.Unlock()
	poolAcquireTotal.WithLabelValues("hit").Inc()
	return c
}

// Release resets c and keeps it for reuse if there is room.
func (p *ContextPool) Release(c *Context) *ContextPool {
	if c == nil {
		return p
	}
	c.Reset()
	p.mu.Lock()
	if len(p.free) < p.capacity {
		p.free = append(p.free, c)
	}
	p.mu.Unlock()
	return p
}

// Len returns the number of idle contexts.
func (p *ContextPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Cap returns the pool capacity.
func (p *ContextPool) Cap() int {
	return p.capacity
}
