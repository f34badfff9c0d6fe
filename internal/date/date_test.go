package date

import (
	"net/http"
	"testing"
	"time"
)

func TestCurrent(t *testing.T) {
	stop := Start()
	defer stop()

	v := Current()
	parsed, err := http.ParseTime(string(v))
	if err != nil {
		t.Fatalf("Current() = %q is not an HTTP date: %v", v, err)
	}
	if d := time.Since(parsed); d < -time.Second || d > 2*time.Second {
		t.Errorf("cached date off by %v", d)
	}
}

func TestStartIsReferenceCounted(t *testing.T) {
	stop1 := Start()
	stop2 := Start()

	stop1()
	stop1()
	mu.Lock()
	n := users
	mu.Unlock()
	if n != 1 {
		t.Fatalf("users = %d after releasing one of two, want 1", n)
	}
	if current.Load() == nil {
		t.Fatal("cache cleared while still referenced")
	}

	stop2()
	if current.Load() != nil {
		t.Error("cache kept after last release")
	}
	if len(Current()) == 0 {
		t.Error("Current() empty without a running ticker")
	}
}
