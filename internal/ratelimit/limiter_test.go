package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually-advanced time source shared by limiter tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestNewDualLimiterValidatesLimits verifies both limits must be positive.
func TestNewDualLimiterValidatesLimits(t *testing.T) {
	if _, err := NewDualLimiter(0, 100); err == nil {
		t.Error("NewDualLimiter(0, 100) should fail")
	}
	if _, err := NewDualLimiter(100, 0); err == nil {
		t.Error("NewDualLimiter(100, 0) should fail")
	}
	if _, err := NewDualLimiter(100, 1000); err != nil {
		t.Errorf("NewDualLimiter(100, 1000) failed: %v", err)
	}
}

// TestValidateEstimate verifies the submission-time capacity check.
func TestValidateEstimate(t *testing.T) {
	l, _ := NewDualLimiter(100, 1000)

	if err := l.ValidateEstimate(1000); err != nil {
		t.Errorf("ValidateEstimate(1000) on a 1000 TPM limiter failed: %v", err)
	}

	err := l.ValidateEstimate(1001)
	if err == nil {
		t.Fatal("ValidateEstimate(1001) should fail")
	}
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("error = %v, want ErrCapacityExceeded", err)
	}
}

// TestTryAdmitConsumesBothWindows verifies one admission uses one request
// slot and the full token estimate.
func TestTryAdmitConsumesBothWindows(t *testing.T) {
	l, _ := NewDualLimiter(10, 1000)
	clock := newFakeClock()
	l.SetClock(clock.Now)

	if !l.TryAdmit(300) {
		t.Fatal("first TryAdmit should succeed")
	}

	u := l.Utilization()
	if u.RequestsUsed != 1 {
		t.Errorf("RequestsUsed = %d, want 1", u.RequestsUsed)
	}
	if u.TokensUsed != 300 {
		t.Errorf("TokensUsed = %d, want 300", u.TokensUsed)
	}
}

// TestTryAdmitRefusesWhenRequestWindowFull verifies RPM alone blocks
// admission even with token headroom to spare.
func TestTryAdmitRefusesWhenRequestWindowFull(t *testing.T) {
	l, _ := NewDualLimiter(6, 100000)
	clock := newFakeClock()
	l.SetClock(clock.Now)

	for i := 0; i < 6; i++ {
		if !l.TryAdmit(10) {
			t.Fatalf("admission %d should succeed", i+1)
		}
	}

	if l.TryAdmit(10) {
		t.Error("7th admission should be refused by the request window")
	}
	if wait := l.WaitTime(10); wait <= 0 {
		t.Errorf("WaitTime = %v, want > 0 while the window is full", wait)
	}
}

// TestTryAdmitRefusesWhenTokenWindowFull verifies TPM alone blocks admission.
func TestTryAdmitRefusesWhenTokenWindowFull(t *testing.T) {
	l, _ := NewDualLimiter(1000, 500)
	clock := newFakeClock()
	l.SetClock(clock.Now)

	if !l.TryAdmit(400) {
		t.Fatal("first TryAdmit should succeed")
	}

	if l.TryAdmit(200) {
		t.Error("admission should be refused: 400+200 > 500 TPM")
	}

	// Neither window may have recorded the refused attempt.
	u := l.Utilization()
	if u.RequestsUsed != 1 {
		t.Errorf("refused admission leaked into request window: used = %d, want 1", u.RequestsUsed)
	}
	if u.TokensUsed != 400 {
		t.Errorf("refused admission leaked into token window: used = %d, want 400", u.TokensUsed)
	}
}

// TestAdmissionReopensAfterWindowSlides verifies capacity frees exactly when
// the oldest events age out.
func TestAdmissionReopensAfterWindowSlides(t *testing.T) {
	l, _ := NewDualLimiter(6, 100000)
	clock := newFakeClock()
	l.SetClock(clock.Now)

	for i := 0; i < 6; i++ {
		if !l.TryAdmit(10) {
			t.Fatalf("admission %d should succeed", i+1)
		}
		clock.Advance(time.Second)
	}

	if l.TryAdmit(10) {
		t.Fatal("window should be full")
	}

	// The oldest admission was 6 seconds ago; it expires after another 54s.
	if wait := l.WaitTime(10); wait != 54*time.Second {
		t.Errorf("WaitTime = %v, want 54s", wait)
	}

	clock.Advance(54 * time.Second)
	if !l.TryAdmit(10) {
		t.Error("admission should succeed once the oldest event expired")
	}
}

// TestWaitAdmitsImmediatelyWithHeadroom verifies Wait does not sleep when
// capacity is available.
func TestWaitAdmitsImmediatelyWithHeadroom(t *testing.T) {
	l, _ := NewDualLimiter(100, 10000)

	start := time.Now()
	if err := l.Wait(context.Background(), 100); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Wait with headroom took %v, expected immediate return", elapsed)
	}
}

// TestWaitRespectsContextCancellation verifies a blocked Wait unblocks
// promptly on cancel and does not record an admission.
func TestWaitRespectsContextCancellation(t *testing.T) {
	l, _ := NewDualLimiter(1, 10000)

	// Fill the single request slot.
	if !l.TryAdmit(10) {
		t.Fatal("first admission should succeed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Wait(ctx, 10)
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Wait took %v to notice cancellation", elapsed)
	}

	if u := l.Utilization(); u.RequestsUsed != 1 {
		t.Errorf("cancelled Wait recorded an admission: used = %d, want 1", u.RequestsUsed)
	}
}

// TestConcurrentAdmissionsNeverExceedLimits hammers the limiter from many
// goroutines and verifies the windows never overshoot.
func TestConcurrentAdmissionsNeverExceedLimits(t *testing.T) {
	const (
		maxRPM     = 50
		maxTPM     = 5000
		goroutines = 20
		perUnit    = 100
	)

	l, _ := NewDualLimiter(maxRPM, maxTPM)
	clock := newFakeClock()
	l.SetClock(clock.Now)

	var admitted int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if l.TryAdmit(perUnit) {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// 200 attempts against a 50-request window with frozen time: exactly 50
	// admissions fit both windows (50 requests, 5000 tokens).
	if admitted != maxRPM {
		t.Errorf("admitted = %d, want %d", admitted, maxRPM)
	}

	u := l.Utilization()
	if u.RequestsUsed > maxRPM {
		t.Errorf("request window overshot: %d > %d", u.RequestsUsed, maxRPM)
	}
	if u.TokensUsed > maxTPM {
		t.Errorf("token window overshot: %d > %d", u.TokensUsed, maxTPM)
	}
}

// TestUtilizationReportsLimits verifies the reading carries the configured
// caps for display.
func TestUtilizationReportsLimits(t *testing.T) {
	l, _ := NewDualLimiter(60, 8000)

	u := l.Utilization()
	if u.RequestsLimit != 60 {
		t.Errorf("RequestsLimit = %d, want 60", u.RequestsLimit)
	}
	if u.TokensLimit != 8000 {
		t.Errorf("TokensLimit = %d, want 8000", u.TokensLimit)
	}
}
