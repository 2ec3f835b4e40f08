// README: Persistence contract for the engine: a unit of work over tours, bookings and state events.
package store

import (
	"context"

	"convoy/internal/types"
)

// Tx is the transactional view handed to a unit of work. Every write made
// through it commits or rolls back together.
type Tx interface {
	InsertTour(ctx context.Context, t *types.Tour) error
	GetTour(ctx context.Context, id int64) (*types.Tour, error)
	// LockTour reads the tour and holds it against concurrent writers until the unit of work ends.
	LockTour(ctx context.Context, id int64) (*types.Tour, error)
	// UpdateTourStatus is a compare-and-set on (status, status_version); a mismatch yields types.ErrConflict.
	UpdateTourStatus(ctx context.Context, id int64, from, to types.TourStatus, version int) error
	UpdateRemainingCapacity(ctx context.Context, id int64, remaining types.Weight) error
	ListToursByCarrier(ctx context.Context, carrierID string) ([]types.Tour, error)

	InsertBooking(ctx context.Context, b *types.Booking) error
	GetBooking(ctx context.Context, id int64) (*types.Booking, error)
	LockBooking(ctx context.Context, id int64) (*types.Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, status types.BookingStatus) error
	UpdateBookingWeight(ctx context.Context, id int64, w types.Weight) error
	ListBookingsByTour(ctx context.Context, tourID int64) ([]types.Booking, error)
	ListBookingsByUser(ctx context.Context, userID string) ([]types.Booking, error)
	// HasActiveBooking ignores the booking with id exclude (0 to ignore none).
	HasActiveBooking(ctx context.Context, tourID int64, userID string, exclude int64) (bool, error)

	AppendEvent(ctx context.Context, e *types.StateEvent) error
}

// UnitOfWork runs fn inside one transaction. A non-nil error from fn rolls
// everything back and is returned unchanged.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
