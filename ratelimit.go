package gomtl

import (
	"context"
	"sync"
	"time"
)

// RateGate admits outbound calls. Wait blocks until the caller may proceed
// or ctx is cancelled.
type RateGate interface {
	Wait(ctx context.Context) error
}

// SlidingWindow is a RateGate admitting at most max calls in any trailing
// window. Prune, check and record happen under one lock, so concurrent
// callers can never be admitted past the limit.
type SlidingWindow struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu         sync.Mutex
	timestamps []time.Time
}

// Verify SlidingWindow implements RateGate
var _ RateGate = (*SlidingWindow)(nil)

// NewSlidingWindow creates a gate for cfg. It returns nil when cfg disables
// rate limiting (MaxRequests <= 0).
func NewSlidingWindow(cfg RateLimitConfig) *SlidingWindow {
	if cfg.MaxRequests <= 0 {
		return nil
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{
		max:        cfg.MaxRequests,
		window:     window,
		now:        time.Now,
		timestamps: make([]time.Time, 0, cfg.MaxRequests),
	}
}

// Wait blocks until a slot is free, then records the admission.
func (w *SlidingWindow) Wait(ctx context.Context) error {
	for {
		wait, ok := w.acquire()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire records an admission if a slot is free, without blocking.
func (w *SlidingWindow) TryAcquire() bool {
	_, ok := w.acquire()
	return ok
}

// acquire returns (0, true) on admission, or how long until the oldest
// timestamp leaves the window.
func (w *SlidingWindow) acquire() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)

	if len(w.timestamps) < w.max {
		w.timestamps = append(w.timestamps, now)
		return 0, true
	}

	wait := w.timestamps[0].Add(w.window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// prune drops timestamps older than the window (must be called with lock held).
func (w *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.timestamps) && !w.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
	}
}

// Len returns the number of admissions inside the current window.
func (w *SlidingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.timestamps)
}

// Reset forgets all recorded admissions.
func (w *SlidingWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timestamps = w.timestamps[:0]
}
