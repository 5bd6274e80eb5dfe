// Package dispatch owns the worker pool that drains the job backlog under
// the dual rate limit, and the dispatcher coordinating its lifecycle.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/floodgate-io/floodgate/internal/events"
	"github.com/floodgate-io/floodgate/internal/job"
	"github.com/floodgate-io/floodgate/internal/logging"
	"github.com/floodgate-io/floodgate/internal/metrics"
	"github.com/floodgate-io/floodgate/internal/queue"
	"github.com/floodgate-io/floodgate/internal/ratelimit"
)

// worker runs the claim → admit → execute → report loop until the queue
// drains or the run context is cancelled.
//
// Each iteration can suspend at the blocking claim, the limiter wait, and
// the execution call; the first two unblock promptly
// on shutdown. The execution call itself is never aborted by shutdown; it
// finishes (or hits the executor's own timeout) and is fully reported first.
type worker struct {
	id         int
	queue      *queue.Queue
	limiter    *ratelimit.DualLimiter // nil for unlimited runs
	exec       job.Executor
	metrics    *metrics.Collector
	bus        *events.EventBus
	log        *logging.Logger
	maxRetries int
}

// run is the worker loop. It returns once Pop reports the queue drained or
// the context cancelled.
func (w *worker) run(ctx context.Context) {
	w.log.Debug().Int("worker", w.id).Msg("worker started")

	for {
		j, ok := w.queue.Pop(ctx)
		if !ok {
			w.log.Debug().Int("worker", w.id).Msg("worker stopping")
			return
		}
		w.handle(ctx, j)
	}
}

// safeExecute shields the run from a panicking executor: one job's failure
// must never take down the pool. A panic becomes a hard failure.
func safeExecute(ctx context.Context, exec job.Executor, j *job.Job) (res *job.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("executor panic: %v", r)
		}
	}()
	return exec.Execute(ctx, j)
}

// handle processes one claimed job through admission, execution and
// reporting. Exactly one of Done/Requeue is called on the queue per claim.
func (w *worker) handle(ctx context.Context, j *job.Job) {
	w.metrics.JobStarted()
	defer w.metrics.JobReleased()

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, int64(j.EstimatedTokens)); err != nil {
			// Shutdown while waiting for headroom. The job never executed,
			// so return it unreported; the cancelled run ends regardless.
			w.queue.Requeue(j)
			return
		}
	}

	attempt := j.RetryCount + 1
	w.bus.PublishJob(events.EventJobStarted, j.ID, w.id, attempt)

	// The execution call is the only network-blocking step. It is shielded
	// from run cancellation so an in-flight request completes (or times out
	// on its own) rather than being torn down mid-flight.
	start := time.Now()
	res, err := safeExecute(context.WithoutCancel(ctx), w.exec, j)
	latency := time.Since(start)

	switch job.Classify(err) {
	case job.OutcomeSuccess:
		if res != nil && res.Latency > 0 {
			latency = res.Latency
		}
		var tokens int64
		if res != nil {
			tokens = int64(res.Tokens)
		}
		w.metrics.RecordSuccess(tokens, latency)
		w.bus.Publish(&events.JobEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventJobSucceeded, Time: time.Now()},
			JobID:     j.ID,
			WorkerID:  w.id,
			Attempt:   attempt,
			Tokens:    int(tokens),
			Latency:   latency,
		})
		w.log.Debug().
			Int("worker", w.id).
			Str("job", j.ID).
			Int64("tokens", tokens).
			Dur("latency", latency).
			Msg("job succeeded")
		w.queue.Done()

	case job.OutcomeRateLimited:
		j.RetryCount++
		if j.RetryCount > w.maxRetries {
			w.metrics.RecordRetriesExhausted()
			w.bus.Publish(&events.JobEvent{
				BaseEvent: events.BaseEvent{EventType: events.EventJobFailed, Time: time.Now()},
				JobID:     j.ID,
				WorkerID:  w.id,
				Attempt:   attempt,
				Err:       err,
				Reason:    "retries-exhausted",
			})
			w.log.Warn().
				Int("worker", w.id).
				Str("job", j.ID).
				Int("attempts", attempt).
				Msg("retries exhausted, dropping job")
			w.queue.Done()
			return
		}
		w.metrics.RecordRequeue()
		w.bus.PublishJob(events.EventJobRequeued, j.ID, w.id, attempt)
		w.log.Debug().
			Int("worker", w.id).
			Str("job", j.ID).
			Int("retry", j.RetryCount).
			Int("max", w.maxRetries).
			Msg("rate limited, requeued")
		w.queue.Requeue(j)

	case job.OutcomeHardFailure:
		w.metrics.RecordHardFailure(err.Error())
		w.bus.Publish(&events.JobEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventJobFailed, Time: time.Now()},
			JobID:     j.ID,
			WorkerID:  w.id,
			Attempt:   attempt,
			Err:       err,
			Reason:    "hard-failure",
		})
		w.log.Warn().
			Int("worker", w.id).
			Str("job", j.ID).
			Err(err).
			Msg("job failed permanently")
		w.queue.Done()
	}
}
