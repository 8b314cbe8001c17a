package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAllowUnlimited(t *testing.T) {
	l := New()
	for i := 0; i < 50; i++ {
		if !l.Allow("ep-1", 0) {
			t.Fatal("rate 0 should never limit")
		}
	}
}

func TestAllowExhaustsBucket(t *testing.T) {
	l := New()
	key := "ep-limited"

	// Bucket starts full with 3 tokens.
	for i := 0; i < 3; i++ {
		if !l.Allow(key, 3) {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	if l.Allow(key, 3) {
		t.Fatal("fourth call should be denied")
	}
}

func TestAllowRefills(t *testing.T) {
	l := New()
	key := "ep-refill"
	rate := 10 // 10 per second

	for i := 0; i < 10; i++ {
		l.Allow(key, rate)
	}
	if l.Allow(key, rate) {
		t.Fatal("should be denied once drained")
	}

	time.Sleep(200 * time.Millisecond)

	if !l.Allow(key, rate) {
		t.Fatal("should be allowed after refill")
	}
}

func TestWaitUnlimited(t *testing.T) {
	l := New()
	if err := l.Wait(context.Background(), "ep-1", 0); err != nil {
		t.Fatalf("Wait with rate 0 should return nil, got %v", err)
	}
}

func TestWaitContextCancelled(t *testing.T) {
	l := New()
	key := "ep-wait"

	l.Allow(key, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, key, 1); err == nil {
		t.Fatal("Wait should fail when the context expires first")
	}
}

func TestWaitBlocksUntilToken(t *testing.T) {
	l := New()
	key := "ep-eventual"
	rate := 20 // ~50ms per token

	for i := 0; i < 20; i++ {
		l.Allow(key, rate)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := l.Wait(ctx, key, rate); err != nil {
		t.Fatalf("Wait should succeed, got %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("Wait returned before a token could refill")
	}
}

func TestReset(t *testing.T) {
	l := New()
	key := "ep-reset"

	l.Allow(key, 1)
	if l.Allow(key, 1) {
		t.Fatal("bucket should be drained")
	}

	l.Reset(key)

	if !l.Allow(key, 1) {
		t.Fatal("fresh bucket after Reset should allow")
	}
}

func TestConcurrentAllow(t *testing.T) {
	l := New()
	key := "ep-concurrent"
	rate := 100

	var wg sync.WaitGroup
	results := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- l.Allow(key, rate)
		}()
	}

	wg.Wait()
	close(results)

	allowed := 0
	for v := range results {
		if v {
			allowed++
		}
	}

	// The bucket starts with 100 tokens; refill during the race can admit
	// a handful more but not double.
	if allowed < 90 || allowed > 110 {
		t.Fatalf("expected roughly 100 allowed, got %d", allowed)
	}
}
