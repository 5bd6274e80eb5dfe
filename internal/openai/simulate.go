package openai

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/floodgate-io/floodgate/internal/job"
)

// SimulatedExecutor mimics a chat endpoint without network access: a random
// service delay, actual token usage jittered around the estimate, and
// configurable rejection probabilities. Used by the --simulate CLI mode and
// throughout the dispatch tests.
type SimulatedExecutor struct {
	// MinLatency and MaxLatency bound the uniform random service delay.
	MinLatency time.Duration
	MaxLatency time.Duration

	// RateLimitRate is the probability (0..1) that a call returns
	// job.ErrRateLimited.
	RateLimitRate float64

	// FailureRate is the probability (0..1) that a call returns a hard
	// failure. Evaluated after the rate-limit roll.
	FailureRate float64

	// TokenJitter scales the spread of actual tokens around the estimate;
	// 0.2 means actuals land within ±20% of the estimate.
	TokenJitter float64
}

// NewSimulatedExecutor returns a simulator with service-like defaults:
// 200ms..1.5s latency, no failures.
func NewSimulatedExecutor() *SimulatedExecutor {
	return &SimulatedExecutor{
		MinLatency:  200 * time.Millisecond,
		MaxLatency:  1500 * time.Millisecond,
		TokenJitter: 0.2,
	}
}

// Execute sleeps for a random latency, then rolls for rejection. On success
// the reported token count is the estimate with jitter applied, floored at 1.
func (s *SimulatedExecutor) Execute(ctx context.Context, j *job.Job) (*job.Result, error) {
	delay := s.MinLatency
	if s.MaxLatency > s.MinLatency {
		delay += time.Duration(rand.Int64N(int64(s.MaxLatency - s.MinLatency)))
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if s.RateLimitRate > 0 && rand.Float64() < s.RateLimitRate {
		return nil, fmt.Errorf("%w: simulated 429", job.ErrRateLimited)
	}
	if s.FailureRate > 0 && rand.Float64() < s.FailureRate {
		return nil, fmt.Errorf("simulated service rejection")
	}

	tokens := j.EstimatedTokens
	if s.TokenJitter > 0 && tokens > 0 {
		spread := (rand.Float64()*2 - 1) * s.TokenJitter
		tokens = int(float64(tokens) * (1 + spread))
	}
	if tokens < 1 {
		tokens = 1
	}

	return &job.Result{
		Tokens:  tokens,
		Latency: delay,
		Output:  fmt.Sprintf("simulated completion for %s", j.ID),
	}, nil
}
