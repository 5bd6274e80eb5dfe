// Package job defines the unit of dispatched work and the outcome taxonomy
// used to decide between requeue and terminal states.
package job

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one unit of work to dispatch. The dispatcher never inspects the
// payload; it only accounts for the estimated token cost.
//
// A Job is immutable after submission except for RetryCount, which is
// incremented each time a rate-limit rejection sends it back to the queue.
type Job struct {
	// ID is a stable identifier for correlating events, metrics and results.
	ID string

	// Payload is the opaque request content, owned by the caller.
	Payload string

	// EstimatedTokens is the caller-supplied upper bound on tokens this job
	// will consume. Used for TPM admission before actual usage is known.
	EstimatedTokens int

	// RetryCount starts at 0 and is incremented on each requeue.
	// Only the single worker currently holding the job mutates it.
	RetryCount int

	// CreatedAt is when the job was submitted.
	CreatedAt time.Time
}

// New creates a job with a fresh ID.
func New(payload string, estimatedTokens int) *Job {
	return &Job{
		ID:              uuid.NewString(),
		Payload:         payload,
		EstimatedTokens: estimatedTokens,
		CreatedAt:       time.Now(),
	}
}

// Result is the outcome of a successful execution.
type Result struct {
	// Tokens is the actual token count consumed, as reported by the service.
	Tokens int

	// Latency is the wall-clock duration of the execution call.
	Latency time.Duration

	// Output is the response content, if the executor captured it.
	Output string
}

// Executor performs the remote execution call for a single job.
// Implementations must be safe to call concurrently from multiple workers.
//
// A nil error means success. ErrRateLimited (or any error Classify maps to
// OutcomeRateLimited) means the job may be requeued; every other error is a
// hard failure and is never retried.
type Executor interface {
	Execute(ctx context.Context, j *Job) (*Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, j *Job) (*Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, j *Job) (*Result, error) {
	return f(ctx, j)
}
