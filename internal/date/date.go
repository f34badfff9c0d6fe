// Package date provides a cached, thread-safe HTTP Date header value.
package date

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

var (
	current atomic.Pointer[[]byte]

	mu      sync.Mutex
	users   int
	stopCh  chan struct{}
	refresh = 500 * time.Millisecond
)

// Start begins refreshing the cached value. Calls are reference counted;
// the returned function releases one reference and stops the ticker with the last one.
func Start() func() {
	mu.Lock()
	defer mu.Unlock()

	users++
	if users == 1 {
		update()
		stopCh = make(chan struct{})
		go tick(stopCh)
	}

	var once sync.Once
	return func() {
		once.Do(release)
	}
}

func release() {
	mu.Lock()
	defer mu.Unlock()
	users--
	if users == 0 {
		close(stopCh)
		stopCh = nil
		current.Store(nil)
	}
}

func tick(done chan struct{}) {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			update()
		case <-done:
			return
		}
	}
}

func update() {
	b := []byte(time.Now().UTC().Format(http.TimeFormat))
	current.Store(&b)
}

// Current returns the cached header value. Callers must not modify it.
func Current() []byte {
	if p := current.Load(); p != nil {
		return *p
	}
	return []byte(time.Now().UTC().Format(http.TimeFormat))
}
