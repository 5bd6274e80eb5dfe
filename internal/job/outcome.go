package job

import (
	"errors"
	"strings"
)

// ErrRateLimited is the sentinel executors return (or wrap) when the remote
// service rejected the request for exceeding a rate limit. Jobs failing with
// it are requeued rather than reported as failures.
var ErrRateLimited = errors.New("rate limited")

// Outcome classifies an execution result for the requeue policy.
type Outcome int

const (
	// OutcomeSuccess indicates the execution call succeeded.
	OutcomeSuccess Outcome = iota
	// OutcomeRateLimited indicates a transient limit rejection; requeue.
	OutcomeRateLimited
	// OutcomeHardFailure indicates a permanent rejection; never retried.
	OutcomeHardFailure
)

// Classify determines the outcome for an execution error.
//
// Rate-limit detection accepts both the ErrRateLimited sentinel and the
// common textual signatures (429, "rate limit", "throttl"), since executors
// wrapping vendor SDKs may only surface the raw message. Unknown errors are
// treated as hard failures: retrying them would not help and would waste
// rate budget.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}

	if errors.Is(err, ErrRateLimited) {
		return OutcomeRateLimited
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "throttl") {
		return OutcomeRateLimited
	}

	return OutcomeHardFailure
}

// OutcomeName returns a human-readable name for an Outcome.
func OutcomeName(o Outcome) string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate-limited"
	case OutcomeHardFailure:
		return "hard-failure"
	default:
		return "unknown"
	}
}
