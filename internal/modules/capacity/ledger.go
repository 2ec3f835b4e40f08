// README: Capacity ledger keeps a tour's remaining cargo capacity in step with its active bookings.
package capacity

import (
	"context"
	"fmt"
	"log/slog"

	"convoy/internal/store"
	"convoy/internal/types"
)

// Adjustment describes one change to a tour's remaining capacity.
type Adjustment struct {
	TourID int64
	Before types.Weight
	After  types.Weight
	// Clamped is set when a release would have pushed remaining capacity above
	// the total. That only happens when the same weight is released twice.
	Clamped bool
}

type Ledger struct {
	uow    store.UnitOfWork
	logger *slog.Logger
}

func NewLedger(uow store.UnitOfWork, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{uow: uow, logger: logger.With("component", "capacity")}
}

// Reserve claims w on the tour in its own unit of work.
func (l *Ledger) Reserve(ctx context.Context, tourID int64, w types.Weight) (Adjustment, error) {
	var adj Adjustment
	err := l.uow.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		adj, err = l.ReserveTx(ctx, tx, tourID, w)
		return err
	})
	return adj, err
}

// Release gives w back to the tour in its own unit of work.
func (l *Ledger) Release(ctx context.Context, tourID int64, w types.Weight) (Adjustment, error) {
	var adj Adjustment
	err := l.uow.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		adj, err = l.ReleaseTx(ctx, tx, tourID, w)
		return err
	})
	return adj, err
}

// ReserveTx decrements remaining capacity inside the caller's unit of work.
// The tour row is locked before the check so concurrent reservations serialise.
func (l *Ledger) ReserveTx(ctx context.Context, tx store.Tx, tourID int64, w types.Weight) (Adjustment, error) {
	if w <= 0 {
		return Adjustment{}, fmt.Errorf("%w: weight must be positive", types.ErrBadRequest)
	}
	t, err := tx.LockTour(ctx, tourID)
	if err != nil {
		return Adjustment{}, err
	}
	if w > t.RemainingCapacity {
		return Adjustment{}, fmt.Errorf("%w: requested %s, remaining %s on tour %d",
			types.ErrInsufficientCapacity, w, t.RemainingCapacity, tourID)
	}
	return l.apply(ctx, tx, t, t.RemainingCapacity-w, false)
}

// ReleaseTx increments remaining capacity inside the caller's unit of work,
// clamping at the tour's total.
func (l *Ledger) ReleaseTx(ctx context.Context, tx store.Tx, tourID int64, w types.Weight) (Adjustment, error) {
	if w <= 0 {
		return Adjustment{}, fmt.Errorf("%w: weight must be positive", types.ErrBadRequest)
	}
	t, err := tx.LockTour(ctx, tourID)
	if err != nil {
		return Adjustment{}, err
	}
	next := t.RemainingCapacity + w
	clamped := false
	if next > t.TotalCapacity {
		l.logger.ErrorContext(ctx, "capacity release exceeds total; clamping",
			"tour_id", tourID,
			"released", w.String(),
			"remaining", t.RemainingCapacity.String(),
			"total", t.TotalCapacity.String(),
		)
		next = t.TotalCapacity
		clamped = true
	}
	return l.apply(ctx, tx, t, next, clamped)
}

// AdjustTx reserves a positive delta or releases a negative one.
func (l *Ledger) AdjustTx(ctx context.Context, tx store.Tx, tourID int64, delta types.Weight) (Adjustment, error) {
	switch {
	case delta > 0:
		return l.ReserveTx(ctx, tx, tourID, delta)
	case delta < 0:
		return l.ReleaseTx(ctx, tx, tourID, -delta)
	}
	t, err := tx.GetTour(ctx, tourID)
	if err != nil {
		return Adjustment{}, err
	}
	return Adjustment{TourID: tourID, Before: t.RemainingCapacity, After: t.RemainingCapacity}, nil
}

func (l *Ledger) apply(ctx context.Context, tx store.Tx, t *types.Tour, next types.Weight, clamped bool) (Adjustment, error) {
	adj := Adjustment{TourID: t.ID, Before: t.RemainingCapacity, After: next, Clamped: clamped}
	candidate := *t
	candidate.RemainingCapacity = next
	if err := candidate.CheckCapacity(); err != nil {
		l.logger.ErrorContext(ctx, "capacity invariant breached",
			"tour_id", t.ID,
			"remaining", next.String(),
			"total", t.TotalCapacity.String(),
		)
		return Adjustment{}, fmt.Errorf("%w: tour %d remaining %s outside [0, %s]",
			types.ErrConsistencyViolation, t.ID, next, t.TotalCapacity)
	}
	if err := tx.UpdateRemainingCapacity(ctx, t.ID, next); err != nil {
		return Adjustment{}, err
	}
	return adj, nil
}
