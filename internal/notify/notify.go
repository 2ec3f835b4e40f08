// README: Post-commit notification fan-out; failures are logged and never reach the engine caller.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type Kind string

const (
	TourCreated          Kind = "tour.created"
	TourTransitioned     Kind = "tour.transitioned"
	BookingCreated       Kind = "booking.created"
	BookingStatusChanged Kind = "booking.status_changed"
	BookingWeightChanged Kind = "booking.weight_changed"
)

// Event is what collaborators learn after a unit of work commits.
type Event struct {
	Kind       Kind      `json:"kind"`
	TourID     int64     `json:"tour_id"`
	BookingIDs []int64   `json:"booking_ids,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	At         time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

type NotifierFunc func(ctx context.Context, e Event) error

func (f NotifierFunc) Notify(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, e Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "domain event",
		"kind", string(e.Kind),
		"tour_id", e.TourID,
		"booking_ids", e.BookingIDs,
		"from", e.From,
		"to", e.To,
	)
	return nil
}

// Dispatcher runs notifications in the background once a transaction has
// committed. A nil *Dispatcher drops events.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(n Notifier, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifier: n, timeout: timeout, logger: logger.With("component", "notify")}
}

// Dispatch detaches from the caller's context so a finished request does not
// cancel delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, events ...Event) {
	if d == nil || d.notifier == nil || len(events) == 0 {
		return
	}
	base := context.WithoutCancel(ctx)
	for _, e := range events {
		if e.At.IsZero() {
			e.At = time.Now()
		}
		d.wg.Add(1)
		go func(e Event) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()
			if err := d.notifier.Notify(ctx, e); err != nil {
				d.logger.WarnContext(ctx, "notification failed",
					"kind", string(e.Kind),
					"tour_id", e.TourID,
					"err", err,
				)
			}
		}(e)
	}
}

// Wait blocks until every dispatched notification has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
