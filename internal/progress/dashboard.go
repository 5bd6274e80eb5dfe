package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/floodgate-io/floodgate/internal/constants"
	"github.com/floodgate-io/floodgate/internal/events"
)

// Dashboard renders the run on an interactive terminal: one bar tracking
// terminal outcomes against the batch size, with live throughput and window
// utilization read from metrics snapshots.
type Dashboard struct {
	bus      *events.EventBus
	ch       <-chan events.Event
	progress *mpb.Progress
	bar      *mpb.Bar
	total    int

	// Decorator state, written by Run and read by the mpb render loop.
	succeeded atomic.Int64
	failed    atomic.Int64
	requeues  atomic.Int64
	inFlight  atomic.Int64
	rpmLine   atomic.Pointer[string]
}

// NewDashboard creates the terminal dashboard and its progress bar.
func NewDashboard(bus *events.EventBus, totalJobs int) *Dashboard {
	enableANSIOnWindows(os.Stderr)

	p := mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithRefreshRate(constants.LiveRefreshRate),
		mpb.WithWidth(60),
	)

	d := &Dashboard{
		bus:      bus,
		ch:       bus.SubscribeAll(),
		progress: p,
		total:    totalJobs,
	}
	empty := ""
	d.rpmLine.Store(&empty)

	d.bar = p.New(int64(totalJobs),
		mpb.BarStyle().
			Lbound("[").
			Filler("█").
			Tip("█").
			Padding("░").
			Rbound("]"),
		mpb.PrependDecorators(
			decor.Name("dispatching", decor.WCSyncSpace),
			decor.CountersNoUnit("%d/%d", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.Any(func(decor.Statistics) string {
				return fmt.Sprintf("ok %d  fail %d  requeued %d  in-flight %d",
					d.succeeded.Load(), d.failed.Load(), d.requeues.Load(), d.inFlight.Load())
			}, decor.WCSyncSpace),
			decor.Any(func(decor.Statistics) string {
				return *d.rpmLine.Load()
			}, decor.WCSyncSpace),
		),
	)
	return d
}

// Run consumes the event stream until the run completes, then waits for the
// final render.
func (d *Dashboard) Run() {
	for ev := range d.ch {
		switch e := ev.(type) {
		case *events.JobEvent:
			switch e.EventType {
			case events.EventJobSucceeded:
				d.succeeded.Add(1)
				d.bar.Increment()
			case events.EventJobFailed:
				d.failed.Add(1)
				d.bar.Increment()
			case events.EventJobRequeued:
				d.requeues.Add(1)
			}

		case *events.SnapshotEvent:
			s := e.Snapshot
			d.inFlight.Store(s.InFlight)
			line := fmt.Sprintf("rpm %d  tpm %d", s.ObservedRPM, s.ObservedTPM)
			if s.Utilization.RequestsLimit > 0 {
				line = fmt.Sprintf("rpm %d/%d  tpm %d/%d",
					s.Utilization.RequestsUsed, s.Utilization.RequestsLimit,
					s.Utilization.TokensUsed, s.Utilization.TokensLimit)
			}
			d.rpmLine.Store(&line)

		case *events.RunCompletedEvent:
			d.bar.SetCurrent(e.Final.Terminal())
			d.bar.SetTotal(int64(d.total), true)
			d.progress.Wait()
			return
		}
	}
	// Channel closed without a completion event (cancelled run).
	d.bar.Abort(false)
	d.progress.Wait()
}

// LogWriter routes log output through mpb so lines print above the bar.
func (d *Dashboard) LogWriter() io.Writer {
	return d.progress
}
