// Package ratelimit provides dual-window (requests + tokens) rate limiting
// over rolling 60-second windows.
package ratelimit

import (
	"fmt"
	"time"
)

// WindowLength is the length of the rolling accounting window.
// Both the RPM and TPM limits are defined over this window.
const WindowLength = 60 * time.Second

// event is one recorded consumption inside the window.
type event struct {
	at    time.Time
	units int64
}

// RateWindow tracks consumed units (requests or tokens) over a rolling
// 60-second window and answers admission and wait queries.
//
// RateWindow is NOT safe for concurrent use. The DualLimiter serializes all
// access through a single critical section so that check-then-record is
// atomic across both windows; see DualLimiter.TryAdmit.
type RateWindow struct {
	limit  int64
	events []event // ordered oldest first, all within WindowLength of last evict
	sum    int64   // running sum of retained event units
}

// NewRateWindow creates a window allowing at most limit units per rolling
// 60 seconds. A non-positive limit is a configuration error.
func NewRateWindow(limit int64) (*RateWindow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("rate window limit must be positive, got %d", limit)
	}
	return &RateWindow{limit: limit}, nil
}

// Limit returns the configured window limit.
func (w *RateWindow) Limit() int64 {
	return w.limit
}

// evict drops events older than WindowLength before now.
// Must run before every admission check.
func (w *RateWindow) evict(now time.Time) {
	cutoff := now.Add(-WindowLength)
	i := 0
	for i < len(w.events) && !w.events[i].at.After(cutoff) {
		w.sum -= w.events[i].units
		i++
	}
	if i > 0 {
		w.events = w.events[i:]
	}
}

// Headroom evicts expired events and returns the units still admissible
// at the given instant.
func (w *RateWindow) Headroom(now time.Time) int64 {
	w.evict(now)
	return w.limit - w.sum
}

// Used evicts expired events and returns the units consumed in the
// trailing window.
func (w *RateWindow) Used(now time.Time) int64 {
	w.evict(now)
	return w.sum
}

// Record appends a consumption event. Callers must have verified headroom
// under the same critical section; recording past the limit is rejected so
// a racing caller can never silently overshoot.
func (w *RateWindow) Record(now time.Time, units int64) error {
	if units > w.limit {
		return fmt.Errorf("%w: %d units exceeds window limit %d", ErrCapacityExceeded, units, w.limit)
	}
	if w.Headroom(now) < units {
		return fmt.Errorf("insufficient headroom: need %d, have %d", units, w.Headroom(now))
	}
	w.events = append(w.events, event{at: now, units: units})
	w.sum += units
	return nil
}

// TimeUntilHeadroom returns how long until enough of the oldest events
// expire to free the requested units. Returns 0 when the units are already
// admissible. Units above the window limit can never be admitted; that case
// is rejected at limiter construction and submission time, but if asked we
// answer with the full window length rather than looping forever.
func (w *RateWindow) TimeUntilHeadroom(now time.Time, units int64) time.Duration {
	if units > w.limit {
		return WindowLength
	}
	w.evict(now)

	need := units - (w.limit - w.sum)
	if need <= 0 {
		return 0
	}

	// Walk the oldest events until enough units age out.
	var freed int64
	for _, e := range w.events {
		freed += e.units
		if freed >= need {
			return e.at.Add(WindowLength).Sub(now)
		}
	}

	// Unreachable while sum is consistent, but never report "ready" when
	// headroom was insufficient.
	return WindowLength
}
