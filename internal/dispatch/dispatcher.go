package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/floodgate-io/floodgate/internal/constants"
	"github.com/floodgate-io/floodgate/internal/events"
	"github.com/floodgate-io/floodgate/internal/job"
	"github.com/floodgate-io/floodgate/internal/logging"
	"github.com/floodgate-io/floodgate/internal/metrics"
	"github.com/floodgate-io/floodgate/internal/queue"
	"github.com/floodgate-io/floodgate/internal/ratelimit"
)

// Options configures a dispatch run.
type Options struct {
	// Workers is the pool size. Clamped to [1, constants.MaxWorkers].
	Workers int

	// MaxRPM and MaxTPM are the rolling per-minute caps. When both are
	// zero the run is unlimited and no limiter is installed.
	MaxRPM int64
	MaxTPM int64

	// MaxRetries is how many times a rate-limited job is requeued before
	// it is reported as retries-exhausted. Zero means a single attempt.
	MaxRetries int

	// SnapshotInterval is how often metrics snapshots are published on the
	// event bus. Defaults to constants.SnapshotInterval.
	SnapshotInterval time.Duration
}

// normalize fills defaults and clamps bounds in place.
func (o *Options) normalize() {
	if o.Workers <= 0 {
		o.Workers = constants.DefaultWorkers
	}
	if o.Workers > constants.MaxWorkers {
		o.Workers = constants.MaxWorkers
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.SnapshotInterval <= 0 {
		o.SnapshotInterval = constants.SnapshotInterval
	}
}

// limited reports whether a limiter should be installed.
func (o Options) limited() bool {
	return o.MaxRPM > 0 || o.MaxTPM > 0
}

// Dispatcher owns the queue, the limiter, the metrics collector and the
// worker pool for one batch run. It is single-use: construct, Run, discard.
type Dispatcher struct {
	opts    Options
	exec    job.Executor
	limiter *ratelimit.DualLimiter // nil when unlimited
	queue   *queue.Queue
	metrics *metrics.Collector
	bus     *events.EventBus
	log     *logging.Logger
}

// New creates a dispatcher. The executor must be safe for concurrent use by
// opts.Workers goroutines. bus may be nil when no observer is attached.
func New(exec job.Executor, opts Options, bus *events.EventBus, log *logging.Logger) (*Dispatcher, error) {
	if exec == nil {
		return nil, fmt.Errorf("dispatch: executor is required")
	}
	opts.normalize()

	var limiter *ratelimit.DualLimiter
	if opts.limited() {
		rpm, tpm := opts.MaxRPM, opts.MaxTPM
		if rpm <= 0 {
			rpm = constants.DefaultMaxRPM
		}
		if tpm <= 0 {
			tpm = constants.DefaultMaxTPM
		}
		var err error
		limiter, err = ratelimit.NewDualLimiter(rpm, tpm)
		if err != nil {
			return nil, fmt.Errorf("dispatch: %w", err)
		}
		opts.MaxRPM, opts.MaxTPM = rpm, tpm
	}

	var utilizationFn metrics.UtilizationFunc
	if limiter != nil {
		utilizationFn = limiter.Utilization
	}

	if bus == nil {
		bus = events.NewEventBus(constants.EventBusDefaultBuffer)
	}
	if log == nil {
		log = logging.NewDefaultLogger()
	}

	return &Dispatcher{
		opts:    opts,
		exec:    exec,
		limiter: limiter,
		queue:   queue.New(),
		metrics: metrics.NewCollector(utilizationFn),
		bus:     bus,
		log:     log,
	}, nil
}

// Limiter exposes the limiter for observers. Nil for unlimited runs.
func (d *Dispatcher) Limiter() *ratelimit.DualLimiter { return d.limiter }

// Snapshot returns the current metrics. Safe to call from any goroutine at
// any point during or after a run.
func (d *Dispatcher) Snapshot() metrics.Snapshot { return d.metrics.Snapshot() }

// Run seeds the queue with jobs, starts the worker pool, and blocks until
// every job reaches a terminal outcome or ctx is cancelled. It returns the
// final metrics snapshot; on cancellation the snapshot reflects the partial
// run and the error is ctx.Err().
//
// Submission fails fast, before any worker starts, when a job's token
// estimate could never fit the TPM window (ratelimit.ErrCapacityExceeded).
func (d *Dispatcher) Run(ctx context.Context, jobs []*job.Job) (metrics.Snapshot, error) {
	if len(jobs) == 0 {
		return d.metrics.Snapshot(), nil
	}

	if d.limiter != nil {
		for _, j := range jobs {
			if err := d.limiter.ValidateEstimate(int64(j.EstimatedTokens)); err != nil {
				return d.metrics.Snapshot(), fmt.Errorf("job %s: %w", j.ID, err)
			}
		}
	}

	d.metrics.JobsSubmitted(len(jobs))
	for _, j := range jobs {
		d.queue.Push(j)
		d.bus.PublishJob(events.EventJobQueued, j.ID, 0, 0)
	}

	d.log.Info().
		Int("jobs", len(jobs)).
		Int("workers", d.opts.Workers).
		Int64("rpm", d.opts.MaxRPM).
		Int64("tpm", d.opts.MaxTPM).
		Int("max_retries", d.opts.MaxRetries).
		Msg("dispatch started")

	d.metrics.Start()
	started := time.Now()

	var wg sync.WaitGroup
	for i := 1; i <= d.opts.Workers; i++ {
		w := &worker{
			id:         i,
			queue:      d.queue,
			limiter:    d.limiter,
			exec:       d.exec,
			metrics:    d.metrics,
			bus:        d.bus,
			log:        d.log,
			maxRetries: d.opts.MaxRetries,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run(ctx)
		}()
	}

	stopSnapshots := make(chan struct{})
	var snapshotWG sync.WaitGroup
	snapshotWG.Add(1)
	go func() {
		defer snapshotWG.Done()
		ticker := time.NewTicker(d.opts.SnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopSnapshots:
				return
			case <-ticker.C:
				d.bus.PublishSnapshot(d.metrics.Snapshot())
			}
		}
	}()

	wg.Wait()
	close(stopSnapshots)
	snapshotWG.Wait()

	final := d.metrics.Snapshot()
	duration := time.Since(started)

	d.bus.Publish(&events.RunCompletedEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventRunCompleted, Time: time.Now()},
		Final:     final,
		Duration:  duration,
	})

	if err := ctx.Err(); err != nil {
		d.log.Warn().
			Int64("terminal", final.Terminal()).
			Int64("submitted", final.Submitted).
			Dur("elapsed", duration).
			Msg("dispatch cancelled")
		return final, err
	}

	d.log.Info().
		Int64("succeeded", final.Succeeded).
		Int64("hard_failures", final.HardFailures).
		Int64("retries_exhausted", final.RetriesExhausted).
		Int64("requeues", final.Requeues).
		Dur("elapsed", duration).
		Msg("dispatch completed")
	return final, nil
}

// Submit is the one-call form: build a dispatcher, run the batch, return the
// final snapshot.
func Submit(ctx context.Context, exec job.Executor, jobs []*job.Job, opts Options) (metrics.Snapshot, error) {
	d, err := New(exec, opts, nil, nil)
	if err != nil {
		return metrics.Snapshot{}, err
	}
	return d.Run(ctx, jobs)
}
