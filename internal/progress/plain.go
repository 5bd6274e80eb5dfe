package progress

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/floodgate-io/floodgate/internal/events"
)

// PlainBar is the non-interactive fallback: a single progress line over
// terminal outcomes, no live gauges.
type PlainBar struct {
	ch  <-chan events.Event
	bar *progressbar.ProgressBar
}

// NewPlainBar creates the fallback observer.
func NewPlainBar(bus *events.EventBus, totalJobs int) *PlainBar {
	bar := progressbar.NewOptions64(int64(totalJobs),
		progressbar.OptionSetDescription("dispatching"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			os.Stderr.WriteString("\n")
		}),
	)
	return &PlainBar{
		ch:  bus.SubscribeAll(),
		bar: bar,
	}
}

// Run consumes the event stream until the run completes.
func (p *PlainBar) Run() {
	for ev := range p.ch {
		switch e := ev.(type) {
		case *events.JobEvent:
			if e.EventType == events.EventJobSucceeded || e.EventType == events.EventJobFailed {
				_ = p.bar.Add(1)
			}
		case *events.RunCompletedEvent:
			_ = p.bar.Finish()
			return
		}
	}
	_ = p.bar.Finish()
}

// LogWriter returns stderr; the plain bar redraws itself on the next tick.
func (p *PlainBar) LogWriter() io.Writer {
	return os.Stderr
}
