package job

import (
	"errors"
	"fmt"
	"testing"
)

// TestClassifyNilIsSuccess verifies a nil error maps to success.
func TestClassifyNilIsSuccess(t *testing.T) {
	if got := Classify(nil); got != OutcomeSuccess {
		t.Errorf("Classify(nil) = %s, want success", OutcomeName(got))
	}
}

// TestClassifySentinel verifies the wrapped sentinel maps to rate-limited.
func TestClassifySentinel(t *testing.T) {
	if got := Classify(ErrRateLimited); got != OutcomeRateLimited {
		t.Errorf("Classify(ErrRateLimited) = %s, want rate-limited", OutcomeName(got))
	}

	wrapped := fmt.Errorf("call failed: %w", ErrRateLimited)
	if got := Classify(wrapped); got != OutcomeRateLimited {
		t.Errorf("Classify(wrapped sentinel) = %s, want rate-limited", OutcomeName(got))
	}
}

// TestClassifyTextualSignatures verifies raw vendor messages are recognized
// without the sentinel.
func TestClassifyTextualSignatures(t *testing.T) {
	rateLimited := []string{
		"server returned status 429",
		"Rate limit exceeded, retry later",
		"request was throttled",
		"HTTP 429 Too Many Requests",
	}
	for _, msg := range rateLimited {
		if got := Classify(errors.New(msg)); got != OutcomeRateLimited {
			t.Errorf("Classify(%q) = %s, want rate-limited", msg, OutcomeName(got))
		}
	}
}

// TestClassifyUnknownErrorsAreHardFailures verifies everything else is
// terminal and never retried.
func TestClassifyUnknownErrorsAreHardFailures(t *testing.T) {
	hard := []string{
		"invalid request payload",
		"status 400: bad request",
		"connection refused",
		"context deadline exceeded",
	}
	for _, msg := range hard {
		if got := Classify(errors.New(msg)); got != OutcomeHardFailure {
			t.Errorf("Classify(%q) = %s, want hard-failure", msg, OutcomeName(got))
		}
	}
}

// TestNewAssignsUniqueIDs verifies submitted jobs are distinguishable.
func TestNewAssignsUniqueIDs(t *testing.T) {
	a := New("same payload", 100)
	b := New("same payload", 100)

	if a.ID == "" || b.ID == "" {
		t.Fatal("New left ID empty")
	}
	if a.ID == b.ID {
		t.Errorf("two jobs share ID %s", a.ID)
	}
	if a.RetryCount != 0 {
		t.Errorf("fresh job RetryCount = %d, want 0", a.RetryCount)
	}
}
