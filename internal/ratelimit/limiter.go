package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrCapacityExceeded indicates a token estimate that exceeds the configured
// TPM limit itself. No amount of waiting can ever admit such a job, so the
// whole submission is rejected before any worker starts.
var ErrCapacityExceeded = errors.New("estimated tokens exceed the per-minute capacity")

// minAdmitPoll bounds the sleep between admission attempts so a waiting
// worker stays responsive to shutdown even when the computed wait is long.
const minAdmitPoll = 50 * time.Millisecond

// maxAdmitPoll caps a single admission sleep. Waits longer than this are
// re-derived after waking, since other workers' completions may have freed
// capacity earlier than projected.
const maxAdmitPoll = 2 * time.Second

// Utilization is a point-in-time reading of both windows, consumed by
// metrics snapshots and the live display.
type Utilization struct {
	RequestsUsed  int64
	RequestsLimit int64
	TokensUsed    int64
	TokensLimit   int64
}

// DualLimiter gates admission on two independent rolling windows: requests
// per minute and tokens per minute. A unit of work is admitted only when
// BOTH windows have headroom, and the check-and-record is a single atomic
// step, so partial admission (one window updated, the other not) cannot occur.
type DualLimiter struct {
	mu       sync.Mutex
	requests *RateWindow // 1 unit per request
	tokens   *RateWindow // estimated token units

	now func() time.Time // injectable clock for tests

	lastWarnTime time.Time // throttles operator wait warnings
}

// NewDualLimiter creates a limiter enforcing maxRPM requests and maxTPM
// tokens per rolling minute. Both limits must be positive.
func NewDualLimiter(maxRPM, maxTPM int64) (*DualLimiter, error) {
	reqWindow, err := NewRateWindow(maxRPM)
	if err != nil {
		return nil, fmt.Errorf("rpm: %w", err)
	}
	tokWindow, err := NewRateWindow(maxTPM)
	if err != nil {
		return nil, fmt.Errorf("tpm: %w", err)
	}
	return &DualLimiter{
		requests: reqWindow,
		tokens:   tokWindow,
		now:      time.Now,
	}, nil
}

// ValidateEstimate reports ErrCapacityExceeded when the given token estimate
// could never fit the TPM window. Called once per job at submission time.
func (l *DualLimiter) ValidateEstimate(tokenUnits int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tokenUnits > l.tokens.Limit() {
		return fmt.Errorf("%w: estimate %d > tpm limit %d", ErrCapacityExceeded, tokenUnits, l.tokens.Limit())
	}
	return nil
}

// TryAdmit atomically checks both windows and, only if both have headroom
// for one request and tokenUnits tokens, records both. Either both windows
// record or neither does.
func (l *DualLimiter) TryAdmit(tokenUnits int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.requests.Headroom(now) < 1 || l.tokens.Headroom(now) < tokenUnits {
		return false
	}

	// Both checks passed under the same lock; the records cannot fail.
	if err := l.requests.Record(now, 1); err != nil {
		return false
	}
	if err := l.tokens.Record(now, tokenUnits); err != nil {
		// Roll back is not possible on a window ledger, but this branch is
		// unreachable: headroom was verified above under the same lock.
		panic(fmt.Sprintf("ratelimit: token record failed after headroom check: %v", err))
	}
	return true
}

// WaitTime returns how long until both windows could admit one request of
// tokenUnits tokens: the larger of the two windows' TimeUntilHeadroom.
func (l *DualLimiter) WaitTime(tokenUnits int64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	reqWait := l.requests.TimeUntilHeadroom(now, 1)
	tokWait := l.tokens.TimeUntilHeadroom(now, tokenUnits)
	if tokWait > reqWait {
		return tokWait
	}
	return reqWait
}

// Wait blocks until the request is admitted (and recorded) or the context
// is cancelled. The sleep between attempts comes from WaitTime, clamped to
// [minAdmitPoll, maxAdmitPoll] so shutdown latency stays bounded.
func (l *DualLimiter) Wait(ctx context.Context, tokenUnits int64) error {
	if l.TryAdmit(tokenUnits) {
		return nil
	}

	// Warn the operator if the wait will be long, at most every 10 seconds
	// to avoid spam across many waiting workers.
	if wait := l.WaitTime(tokenUnits); wait > 2*time.Second {
		l.mu.Lock()
		if time.Since(l.lastWarnTime) > 10*time.Second {
			log.Printf("⏳ Rate limited: waiting ~%.1fs for window capacity...", wait.Seconds())
			l.lastWarnTime = time.Now()
		}
		l.mu.Unlock()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if l.TryAdmit(tokenUnits) {
			return nil
		}

		sleep := l.WaitTime(tokenUnits)
		if sleep < minAdmitPoll {
			sleep = minAdmitPoll
		}
		if sleep > maxAdmitPoll {
			sleep = maxAdmitPoll
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Utilization returns the current consumption of both windows.
func (l *DualLimiter) Utilization() Utilization {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	return Utilization{
		RequestsUsed:  l.requests.Used(now),
		RequestsLimit: l.requests.Limit(),
		TokensUsed:    l.tokens.Used(now),
		TokensLimit:   l.tokens.Limit(),
	}
}

// SetClock overrides the limiter's time source. Only for use in tests.
func (l *DualLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
