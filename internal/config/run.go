// Package config provides run configuration and batch-file loading in CSV
// and JSON formats.
package config

import (
	"fmt"
	"time"

	"github.com/floodgate-io/floodgate/internal/constants"
)

// RunConfig is the validated configuration for one dispatch run, assembled
// from CLI flags and defaults.
type RunConfig struct {
	// Workers is the worker pool size.
	Workers int

	// MaxRPM and MaxTPM are the rolling per-minute caps. Zero for both
	// means an unlimited run.
	MaxRPM int64
	MaxTPM int64

	// MaxRetries bounds requeues per rate-limited job.
	MaxRetries int

	// Count is the number of generated jobs for runs without a batch file.
	Count int

	// JobsFile is the path to a CSV or JSON batch file. Overrides Count.
	JobsFile string

	// EstimatedTokens is the per-job token estimate for generated jobs and
	// for batch rows that omit one.
	EstimatedTokens int

	// Simulate switches execution to the offline simulator.
	Simulate bool

	// SnapshotInterval controls metrics publication frequency.
	SnapshotInterval time.Duration
}

// DefaultRunConfig returns a config with all defaults applied.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Workers:          constants.DefaultWorkers,
		MaxRPM:           constants.DefaultMaxRPM,
		MaxTPM:           constants.DefaultMaxTPM,
		MaxRetries:       constants.DefaultMaxRetries,
		Count:            constants.DefaultJobCount,
		EstimatedTokens:  constants.DefaultEstimatedTokens,
		SnapshotInterval: constants.SnapshotInterval,
	}
}

// Validate checks bounds and cross-field consistency.
func (c RunConfig) Validate() error {
	if c.Workers < 1 || c.Workers > constants.MaxWorkers {
		return fmt.Errorf("workers must be between 1 and %d, got %d", constants.MaxWorkers, c.Workers)
	}
	if c.MaxRPM < 0 {
		return fmt.Errorf("rpm must not be negative, got %d", c.MaxRPM)
	}
	if c.MaxTPM < 0 {
		return fmt.Errorf("tpm must not be negative, got %d", c.MaxTPM)
	}
	if (c.MaxRPM == 0) != (c.MaxTPM == 0) {
		return fmt.Errorf("rpm and tpm must be set together (or both zero for an unlimited run)")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative, got %d", c.MaxRetries)
	}
	if c.JobsFile == "" {
		if c.Count < 1 || c.Count > constants.MaxJobCount {
			return fmt.Errorf("count must be between 1 and %d, got %d", constants.MaxJobCount, c.Count)
		}
	}
	if c.EstimatedTokens < 1 {
		return fmt.Errorf("estimated tokens must be positive, got %d", c.EstimatedTokens)
	}
	return nil
}

// Limited reports whether the run enforces rate limits.
func (c RunConfig) Limited() bool {
	return c.MaxRPM > 0 || c.MaxTPM > 0
}
