package cache

import (
	"sync"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string, int](time.Minute, time.Minute)
	defer c.Stop()

	c.Set("a", 1)

	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit for key a")
	}
	if got != 1 {
		t.Errorf("expected 1, got %d", got)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New[string, string](10*time.Millisecond, time.Hour)
	defer c.Stop()

	c.Set("k", "v")
	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
	if _, ok := c.Take("k"); ok {
		t.Error("expected expired entry to not be takeable")
	}
}

func TestCache_TakeIsSingleUse(t *testing.T) {
	c := New[string, string](time.Minute, time.Minute)
	defer c.Stop()

	c.Set("state", "verifier")

	v, ok := c.Take("state")
	if !ok || v != "verifier" {
		t.Fatalf("first Take should succeed, got (%q, %v)", v, ok)
	}

	if _, ok := c.Take("state"); ok {
		t.Error("second Take should miss (entry consumed)")
	}
}

func TestCache_TakeConcurrentSingleWinner(t *testing.T) {
	c := New[string, int](time.Minute, time.Minute)
	defer c.Stop()

	c.Set("state", 42)

	const goroutines = 32
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := c.Take("state"); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
}

func TestCache_SetResetsExpiry(t *testing.T) {
	c := New[string, int](50*time.Millisecond, time.Hour)
	defer c.Stop()

	c.Set("k", 1)
	time.Sleep(30 * time.Millisecond)
	c.Set("k", 2)
	time.Sleep(30 * time.Millisecond)

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("entry should still be live after re-set")
	}
	if got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
}

func TestCache_BackgroundCleanup(t *testing.T) {
	c := New[string, int](5*time.Millisecond, 10*time.Millisecond)
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)

	time.Sleep(40 * time.Millisecond)

	if n := c.Len(); n != 0 {
		t.Errorf("expected cleanup to evict expired entries, %d left", n)
	}
}
