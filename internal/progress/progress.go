// Package progress renders live run feedback: a rich multi-line dashboard
// on interactive terminals and a plain single-line bar everywhere else.
package progress

import (
	"io"
	"os"

	"golang.org/x/term"

	"github.com/floodgate-io/floodgate/internal/events"
)

// Observer consumes dispatch events and renders them. Run blocks until the
// run-completed event arrives or the event channel closes.
type Observer interface {
	// Run drains the event stream and renders it.
	Run()

	// LogWriter returns a writer that prints safely above any active bars.
	LogWriter() io.Writer
}

// New picks an observer for the current environment: the mpb dashboard when
// stderr is a terminal, otherwise the plain bar.
func New(bus *events.EventBus, totalJobs int) Observer {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return NewDashboard(bus, totalJobs)
	}
	return NewPlainBar(bus, totalJobs)
}

// NewNoOp returns an observer that drains events and renders nothing, for
// quiet mode.
func NewNoOp(bus *events.EventBus) Observer {
	return &noOpObserver{ch: bus.SubscribeAll()}
}

type noOpObserver struct {
	ch <-chan events.Event
}

func (o *noOpObserver) Run() {
	for ev := range o.ch {
		if ev.Type() == events.EventRunCompleted {
			return
		}
	}
}

func (o *noOpObserver) LogWriter() io.Writer { return os.Stderr }
