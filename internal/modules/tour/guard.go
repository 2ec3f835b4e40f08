// README: Transition guards; pure precondition checks consulted before a tour transition commits.
package tour

import (
	"fmt"

	"convoy/internal/types"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed   bool
	Reason    string
	Offending []int64
}

// Err converts a rejected guard into a *types.PreconditionError.
func (r GuardResult) Err() error {
	if r.Allowed {
		return nil
	}
	return &types.PreconditionError{Reason: r.Reason, BookingIDs: r.Offending}
}

func CanStartCollecting(t *types.Tour) GuardResult {
	return GuardResult{Allowed: true}
}

// CanStartTransit rejects while any non-cancelled booking still waits for pickup.
func CanStartTransit(t *types.Tour, bookings []types.Booking) GuardResult {
	var offending []int64
	for _, b := range bookings {
		if b.Status.Uncollected() {
			offending = append(offending, b.ID)
		}
	}
	if len(offending) > 0 {
		return GuardResult{
			Reason:    fmt.Sprintf("%d booking(s) on tour %d are not collected", len(offending), t.ID),
			Offending: offending,
		}
	}
	return GuardResult{Allowed: true}
}

// CanComplete rejects while any booking is still in transit.
func CanComplete(t *types.Tour, bookings []types.Booking) GuardResult {
	var offending []int64
	for _, b := range bookings {
		if b.Status == types.BookingInTransit {
			offending = append(offending, b.ID)
		}
	}
	if len(offending) > 0 {
		return GuardResult{
			Reason:    fmt.Sprintf("%d booking(s) on tour %d are still in transit", len(offending), t.ID),
			Offending: offending,
		}
	}
	return GuardResult{Allowed: true}
}

func CanCancelTour(t *types.Tour) GuardResult {
	if t.Status.Terminal() {
		return GuardResult{Reason: fmt.Sprintf("tour %d is already %s", t.ID, t.Status)}
	}
	return GuardResult{Allowed: true}
}

// Check runs the guard that protects entering target.
func Check(t *types.Tour, target types.TourStatus, bookings []types.Booking) GuardResult {
	switch target {
	case types.TourCollecting:
		return CanStartCollecting(t)
	case types.TourInTransit:
		return CanStartTransit(t, bookings)
	case types.TourCompleted:
		return CanComplete(t, bookings)
	case types.TourCancelled:
		return CanCancelTour(t)
	}
	return GuardResult{Allowed: true}
}
