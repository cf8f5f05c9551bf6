// Package notify sends pipeline milestones to status channels. Delivery is
// fire-and-forget: a failing channel is logged and never fails a run.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"blockminds/internal/logging"

	"github.com/rs/zerolog"
)

type EventKind string

const (
	EventStarted   EventKind = "started"
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
)

// Event is one pipeline milestone.
type Event struct {
	Kind      EventKind `json:"kind"`
	RunID     string    `json:"run_id"`
	At        time.Time `json:"at"`
	Requested int       `json:"requested,omitempty"`
	Published int       `json:"published,omitempty"`
	Failed    []string  `json:"failed,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Text renders the plain-text status message.
func (e Event) Text() string {
	var b strings.Builder
	switch e.Kind {
	case EventStarted:
		fmt.Fprintf(&b, "Pipeline run %s started for %d assets.", e.RunID, e.Requested)
	case EventSucceeded:
		fmt.Fprintf(&b, "Pipeline run %s published %d of %d assets.", e.RunID, e.Published, e.Requested)
		if len(e.Failed) > 0 {
			fmt.Fprintf(&b, "\nUnavailable: %s", strings.Join(e.Failed, ", "))
		}
	case EventFailed:
		fmt.Fprintf(&b, "Pipeline run %s failed: %s", e.RunID, e.Error)
	default:
		fmt.Fprintf(&b, "Pipeline run %s: %s", e.RunID, e.Kind)
	}
	return b.String()
}

type Sink interface {
	Name() string
	Send(ctx context.Context, e Event) error
}

// Notifier is what the pipeline depends on.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(logger zerolog.Logger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sinks:   sinks,
		timeout: timeout,
		logger:  logging.Component(logger, "notify"),
	}
}

// Notify hands e to every sink in its own goroutine and returns at once.
// Sends outlive ctx cancellation but not the per-send timeout.
func (d *Dispatcher) Notify(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	base := context.WithoutCancel(ctx)
	for _, s := range d.sinks {
		d.wg.Add(1)
		go func(s Sink) {
			defer d.wg.Done()
			sendCtx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()
			if err := s.Send(sendCtx, e); err != nil {
				d.logger.Warn().Err(err).
					Str("sink", s.Name()).
					Str("run_id", e.RunID).
					Str("event", string(e.Kind)).
					Msg("notification failed")
			}
		}(s)
	}
}

// Wait blocks until in-flight sends finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Len reports how many sinks are configured.
func (d *Dispatcher) Len() int { return len(d.sinks) }
