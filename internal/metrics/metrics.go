// Package metrics accumulates run counters, latency and token statistics,
// and rolling throughput, and exposes consistent point-in-time snapshots.
package metrics

import (
	"sync"
	"time"

	"github.com/floodgate-io/floodgate/internal/ratelimit"
)

// completion is one finished request, retained for rolling RPM/TPM.
type completion struct {
	at     time.Time
	tokens int64
}

// Snapshot is an immutable point-in-time copy of the collector state.
// Consumers may retain it freely; the collector never mutates a returned
// snapshot.
type Snapshot struct {
	// Counters.
	Submitted        int64
	Succeeded        int64
	HardFailures     int64
	RetriesExhausted int64
	Requeues         int64
	InFlight         int64

	// FailureReasons maps a hard-failure reason to its count.
	FailureReasons map[string]int64

	// Latency distribution of successful executions.
	LatencyMin  time.Duration
	LatencyMax  time.Duration
	LatencyMean time.Duration

	// Token statistics of successful executions (actual usage).
	TokensTotal int64
	TokensMin   int64
	TokensMax   int64
	TokensMean  int64

	// Observed throughput over the trailing 60 seconds.
	ObservedRPM int64
	ObservedTPM int64

	// Window utilization captured from the limiter at snapshot time.
	// Zero-valued when the run is unlimited.
	Utilization ratelimit.Utilization

	// Elapsed is the wall-clock time since the collector was started.
	Elapsed time.Duration
}

// Terminal returns the number of jobs that reached a terminal outcome.
func (s Snapshot) Terminal() int64 {
	return s.Succeeded + s.HardFailures + s.RetriesExhausted
}

// Done reports whether every submitted job has a terminal outcome.
func (s Snapshot) Done() bool {
	return s.Submitted > 0 && s.Terminal() == s.Submitted
}

// UtilizationFunc supplies the limiter reading embedded in snapshots.
type UtilizationFunc func() ratelimit.Utilization

// Collector is the process-wide accumulator shared by all workers.
// Updates are cheap single-lock increments; Snapshot copies under the same
// lock, so readers never block writers for longer than a memcpy.
type Collector struct {
	mu sync.Mutex

	startedAt time.Time

	submitted        int64
	succeeded        int64
	hardFailures     int64
	retriesExhausted int64
	requeues         int64
	inFlight         int64

	failureReasons map[string]int64

	latencyMin time.Duration
	latencyMax time.Duration
	latencySum time.Duration

	tokensTotal int64
	tokensMin   int64
	tokensMax   int64

	completions []completion // trailing window, oldest first

	utilizationFn UtilizationFunc
	now           func() time.Time
}

// NewCollector creates a collector. utilizationFn may be nil for unlimited
// runs; snapshots then carry a zero Utilization.
func NewCollector(utilizationFn UtilizationFunc) *Collector {
	return &Collector{
		failureReasons: make(map[string]int64),
		utilizationFn:  utilizationFn,
		now:            time.Now,
		startedAt:      time.Now(),
	}
}

// Start resets the elapsed-time origin. Called by the dispatcher when the
// worker pool actually starts, so queue-seeding time is not counted.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startedAt = c.now()
}

// JobsSubmitted records the seeded batch size.
func (c *Collector) JobsSubmitted(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted += int64(n)
}

// JobStarted marks one job claimed by a worker.
func (c *Collector) JobStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight++
}

// JobReleased marks a claimed job as no longer in flight, whatever its fate.
func (c *Collector) JobReleased() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
}

// RecordSuccess records a completed execution with its actual token usage
// and latency.
func (c *Collector) RecordSuccess(tokens int64, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.succeeded++

	if c.latencyMin == 0 || latency < c.latencyMin {
		c.latencyMin = latency
	}
	if latency > c.latencyMax {
		c.latencyMax = latency
	}
	c.latencySum += latency

	c.tokensTotal += tokens
	if c.succeeded == 1 || tokens < c.tokensMin {
		c.tokensMin = tokens
	}
	if tokens > c.tokensMax {
		c.tokensMax = tokens
	}

	c.completions = append(c.completions, completion{at: c.now(), tokens: tokens})
	c.evictCompletions(c.now())
}

// RecordRequeue records one rate-limit requeue.
func (c *Collector) RecordRequeue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requeues++
}

// RecordHardFailure records a permanent rejection with its reason.
func (c *Collector) RecordHardFailure(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hardFailures++
	c.failureReasons[reason]++
}

// RecordRetriesExhausted records a job dropped after exceeding the retry
// budget. Kept distinct from hard failures so "gave up due to load" is
// distinguishable from "rejected by the service".
func (c *Collector) RecordRetriesExhausted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retriesExhausted++
}

// Snapshot returns a consistent copy of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()

	now := c.now()
	c.evictCompletions(now)

	var rpm, tpm int64
	for _, e := range c.completions {
		rpm++
		tpm += e.tokens
	}

	reasons := make(map[string]int64, len(c.failureReasons))
	for k, v := range c.failureReasons {
		reasons[k] = v
	}

	s := Snapshot{
		Submitted:        c.submitted,
		Succeeded:        c.succeeded,
		HardFailures:     c.hardFailures,
		RetriesExhausted: c.retriesExhausted,
		Requeues:         c.requeues,
		InFlight:         c.inFlight,
		FailureReasons:   reasons,
		LatencyMin:       c.latencyMin,
		LatencyMax:       c.latencyMax,
		TokensTotal:      c.tokensTotal,
		TokensMin:        c.tokensMin,
		TokensMax:        c.tokensMax,
		ObservedRPM:      rpm,
		ObservedTPM:      tpm,
		Elapsed:          now.Sub(c.startedAt),
	}
	if c.succeeded > 0 {
		s.LatencyMean = c.latencySum / time.Duration(c.succeeded)
		s.TokensMean = c.tokensTotal / c.succeeded
	}

	utilizationFn := c.utilizationFn
	c.mu.Unlock()

	// The limiter has its own lock; read it outside ours to keep lock
	// ordering trivial.
	if utilizationFn != nil {
		s.Utilization = utilizationFn()
	}
	return s
}

// evictCompletions drops completions older than the rolling window.
// Callers hold c.mu.
func (c *Collector) evictCompletions(now time.Time) {
	cutoff := now.Add(-ratelimit.WindowLength)
	i := 0
	for i < len(c.completions) && c.completions[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.completions = c.completions[i:]
	}
}

// SetClock overrides the collector's time source. Only for use in tests.
func (c *Collector) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
