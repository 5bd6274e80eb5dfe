package cli

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/floodgate-io/floodgate/internal/config"
	"github.com/floodgate-io/floodgate/internal/constants"
	"github.com/floodgate-io/floodgate/internal/dispatch"
	"github.com/floodgate-io/floodgate/internal/events"
	"github.com/floodgate-io/floodgate/internal/job"
	"github.com/floodgate-io/floodgate/internal/openai"
	"github.com/floodgate-io/floodgate/internal/progress"
	"github.com/floodgate-io/floodgate/internal/ratelimit"
)

// newRunCmd creates the run command, the main entry point for dispatching a
// batch.
func newRunCmd() *cobra.Command {
	cfg := config.DefaultRunConfig()
	var (
		unlimited bool
		sim429    float64
		simFail   float64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch a batch of requests under the configured rate limits",
		Long: `Dispatch a batch of requests through the worker pool.

The batch comes from --jobs (a CSV or JSON file with a payload column and an
optional estimated_tokens column) or is generated synthetically with --count.

Each request consumes one slot of the RPM window and its token estimate from
the TPM window, both rolling over the trailing 60 seconds. Workers block
until both windows have headroom. Requests rejected with 429 are requeued up
to --max-retries times; other failures are terminal immediately.

Without --simulate, requests go to the chat-completions endpoint configured
via FLOODGATE_ENDPOINT, FLOODGATE_API_KEY and either FLOODGATE_MODEL or
FLOODGATE_DEPLOYMENT (+ FLOODGATE_API_VERSION for Azure).`,
		Example: `  # 50 simulated requests, 5 workers, 60 RPM / 8000 TPM
  floodgate run --simulate --count 50 --workers 5 --rpm 60 --tpm 8000

  # Dispatch a prepared batch file against the real endpoint
  floodgate run --jobs prompts.json --workers 10

  # Stress the retry path: every fifth simulated call returns 429
  floodgate run --simulate --count 100 --sim-429 0.2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if unlimited {
				cfg.MaxRPM, cfg.MaxTPM = 0, 0
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runBatch(cfg, sim429, simFail)
		},
	}

	cmd.Flags().IntVarP(&cfg.Count, "count", "n", constants.DefaultJobCount, "Number of synthetic jobs to generate (ignored with --jobs)")
	cmd.Flags().StringVarP(&cfg.JobsFile, "jobs", "j", "", "Batch file with request payloads (.csv or .json)")
	cmd.Flags().IntVarP(&cfg.Workers, "workers", "w", constants.DefaultWorkers, "Worker pool size")
	cmd.Flags().Int64Var(&cfg.MaxRPM, "rpm", constants.DefaultMaxRPM, "Requests per rolling minute")
	cmd.Flags().Int64Var(&cfg.MaxTPM, "tpm", constants.DefaultMaxTPM, "Tokens per rolling minute")
	cmd.Flags().BoolVar(&unlimited, "unlimited", false, "Disable rate limiting entirely")
	cmd.Flags().IntVar(&cfg.MaxRetries, "max-retries", constants.DefaultMaxRetries, "Requeues allowed per rate-limited job")
	cmd.Flags().IntVar(&cfg.EstimatedTokens, "estimated-tokens", constants.DefaultEstimatedTokens, "Token estimate for jobs without one")
	cmd.Flags().BoolVar(&cfg.Simulate, "simulate", false, "Run against the offline simulator instead of a real endpoint")
	cmd.Flags().Float64Var(&sim429, "sim-429", 0, "Simulator probability of a 429 response (0..1)")
	cmd.Flags().Float64Var(&simFail, "sim-fail", 0, "Simulator probability of a hard failure (0..1)")

	return cmd
}

// buildJobs assembles the batch from the file or the synthetic generator.
func buildJobs(cfg config.RunConfig) ([]*job.Job, error) {
	if cfg.JobsFile != "" {
		specs, err := config.LoadJobs(cfg.JobsFile)
		if err != nil {
			return nil, err
		}
		if len(specs) > constants.MaxJobCount {
			return nil, fmt.Errorf("batch file has %d jobs, maximum is %d", len(specs), constants.MaxJobCount)
		}
		return config.BuildJobs(specs, cfg.EstimatedTokens), nil
	}
	return config.GenerateJobs(cfg.Count, cfg.EstimatedTokens), nil
}

// buildExecutor picks the simulator or the real chat client.
func buildExecutor(cfg config.RunConfig, sim429, simFail float64) (job.Executor, error) {
	if cfg.Simulate {
		sim := openai.NewSimulatedExecutor()
		sim.RateLimitRate = sim429
		sim.FailureRate = simFail
		return sim, nil
	}
	return openai.NewChatClient(openai.ConfigFromEnv())
}

func runBatch(cfg config.RunConfig, sim429, simFail float64) error {
	log := GetLogger()

	jobs, err := buildJobs(cfg)
	if err != nil {
		return err
	}

	exec, err := buildExecutor(cfg, sim429, simFail)
	if err != nil {
		return err
	}

	bus := events.NewEventBus(constants.EventBusDefaultBuffer)

	d, err := dispatch.New(exec, dispatch.Options{
		Workers:          cfg.Workers,
		MaxRPM:           cfg.MaxRPM,
		MaxTPM:           cfg.MaxTPM,
		MaxRetries:       cfg.MaxRetries,
		SnapshotInterval: cfg.SnapshotInterval,
	}, bus, log)
	if err != nil {
		return err
	}

	var observer progress.Observer
	if quiet {
		observer = progress.NewNoOp(bus)
	} else {
		observer = progress.New(bus, len(jobs))
	}

	// Route logs above the live display while it is active.
	prevOut := log.Output()
	log.SetOutput(observer.LogWriter())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		observer.Run()
	}()

	final, runErr := d.Run(GetContext(), jobs)

	bus.Close()
	wg.Wait()
	log.SetOutput(prevOut)

	printSummary(final, cfg)

	if runErr != nil {
		if errors.Is(runErr, ratelimit.ErrCapacityExceeded) {
			return fmt.Errorf("batch rejected: %w", runErr)
		}
		return runErr
	}
	if final.HardFailures > 0 || final.RetriesExhausted > 0 {
		return fmt.Errorf("%d of %d jobs did not succeed", final.HardFailures+final.RetriesExhausted, final.Submitted)
	}
	return nil
}
