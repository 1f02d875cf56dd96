package gomtl

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewSlidingWindow_Disabled(t *testing.T) {
	if w := NewSlidingWindow(RateLimitConfig{}); w != nil {
		t.Error("Expected nil gate when MaxRequests is zero")
	}
}

func TestSlidingWindow_Burst(t *testing.T) {
	w := NewSlidingWindow(RateLimitConfig{MaxRequests: 3, Window: 60 * time.Second})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := w.Wait(context.Background()); err != nil {
			t.Fatalf("Wait %d failed: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Expected burst of 3 to be immediate, took %v", elapsed)
	}

	if w.TryAcquire() {
		t.Error("Expected 4th call to be refused")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected 4th Wait to block until the context expired, got %v", err)
	}
	if w.Len() != 3 {
		t.Errorf("Expected 3 recorded admissions, got %d", w.Len())
	}
}

func TestSlidingWindow_WindowExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	w := NewSlidingWindow(RateLimitConfig{MaxRequests: 2, Window: 10 * time.Second})
	w.now = func() time.Time { return now }

	if !w.TryAcquire() || !w.TryAcquire() {
		t.Fatal("Expected first two admissions")
	}
	if w.TryAcquire() {
		t.Fatal("Expected third admission to be refused")
	}

	now = now.Add(9 * time.Second)
	if w.TryAcquire() {
		t.Error("Expected refusal inside the window")
	}

	now = now.Add(1 * time.Second)
	if !w.TryAcquire() {
		t.Error("Expected admission once the oldest timestamp left the window")
	}
}

func TestSlidingWindow_ConcurrentTryAcquire(t *testing.T) {
	w := NewSlidingWindow(RateLimitConfig{MaxRequests: 10, Window: time.Hour})

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.TryAcquire() {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 10 {
		t.Errorf("Expected exactly 10 admissions, got %d", got)
	}
	if w.Len() != 10 {
		t.Errorf("Expected 10 recorded timestamps, got %d", w.Len())
	}
}

func TestSlidingWindow_ConcurrentWait(t *testing.T) {
	const (
		limit   = 5
		callers = 20
		window  = 30 * time.Millisecond
	)
	w := NewSlidingWindow(RateLimitConfig{MaxRequests: limit, Window: window})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Wait(ctx); err != nil {
				errs <- err
			}
			if n := w.Len(); n > limit {
				errs <- errors.New("window over capacity")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	// Admission k+limit cannot precede admission k by less than one window.
	minElapsed := time.Duration(callers/limit-1) * window
	if elapsed := time.Since(start); elapsed < minElapsed {
		t.Errorf("Expected at least %v for %d callers, took %v", minElapsed, callers, elapsed)
	}
}

func TestSlidingWindow_Reset(t *testing.T) {
	w := NewSlidingWindow(RateLimitConfig{MaxRequests: 1, Window: time.Hour})
	w.TryAcquire()
	w.Reset()
	if !w.TryAcquire() {
		t.Error("Expected admission after Reset")
	}
}
