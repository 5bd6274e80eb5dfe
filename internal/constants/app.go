// Package constants centralizes tunable defaults shared across packages.
package constants

import (
	"time"
)

// Dispatch defaults
const (
	// DefaultWorkers - worker pool size when the flag is omitted
	DefaultWorkers = 3

	// MaxWorkers - upper bound on the worker pool; beyond this the pool
	// adds coordination overhead without improving throughput for
	// network-bound request batches
	MaxWorkers = 50

	// DefaultMaxRetries - rate-limited jobs are requeued at most this many
	// times before being reported as retries-exhausted
	DefaultMaxRetries = 5

	// DefaultJobCount - batch size for generated (--count) runs
	DefaultJobCount = 10

	// MaxJobCount - absolute maximum batch size to prevent unbounded queues
	MaxJobCount = 100000
)

// Rate limit defaults
const (
	// DefaultMaxRPM - default requests-per-minute cap for limited runs
	DefaultMaxRPM = 100

	// DefaultMaxTPM - default tokens-per-minute cap for limited runs
	DefaultMaxTPM = 10000

	// DefaultEstimatedTokens - per-job token estimate when the batch file
	// does not carry one and the payload-based heuristic is disabled
	DefaultEstimatedTokens = 150
)

// Executor configuration
const (
	// ExecuteTimeout - per-request timeout for the remote execution call.
	// Client-side HTTP retries are disabled (the dispatcher owns retry
	// policy), so this bounds a single attempt.
	ExecuteTimeout = 15 * time.Second

	// DefaultMaxOutputTokens - completion token cap requested per call
	DefaultMaxOutputTokens = 100
)

// Event system
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	// 1000 events is generous for typical dispatch throughput
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// UI updates
const (
	// SnapshotInterval - how often the dispatcher publishes a metrics
	// snapshot for live observers
	SnapshotInterval = 500 * time.Millisecond

	// LiveRefreshRate - redraw rate for the live terminal dashboard
	LiveRefreshRate = 300 * time.Millisecond
)

// HTTP transport tuning (shared by the execution client)
const (
	// HTTPIdleConnTimeout - how long idle pooled connections are kept
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - generous handshake timeout for slow
	// networks under high concurrency
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPMaxConnsPerHost - active + idle connections per host; all
	// workers talk to a single endpoint, so this must cover the pool
	HTTPMaxConnsPerHost = 64
)
