// README: Tour state flow and commands.
package tour

import (
	"time"

	"convoy/internal/types"
)

// AllowedTransitions represents the tour state flow (diagram) as code.
var AllowedTransitions = map[types.TourStatus][]types.TourStatus{
	types.TourPlanned:    {types.TourCollecting, types.TourCancelled},
	types.TourCollecting: {types.TourInTransit, types.TourCancelled},
	types.TourInTransit:  {types.TourCompleted, types.TourCancelled},
}

func CanTransition(from, to types.TourStatus) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// previousPhase is the one step back an operator override may take.
func previousPhase(s types.TourStatus) (types.TourStatus, bool) {
	for i, p := range types.TourPhases {
		if p == s && i > 0 && !s.Terminal() {
			return types.TourPhases[i-1], true
		}
	}
	return "", false
}

// CancelPolicy decides what happens to bookings when their tour is cancelled.
type CancelPolicy string

const (
	// KeepBookings leaves booking records untouched as the audit trail.
	KeepBookings CancelPolicy = "keep"
	// CancelBookings cancels every active booking and releases its weight.
	CancelBookings CancelPolicy = "cancel"
)

func ParseCancelPolicy(v string) CancelPolicy {
	if CancelPolicy(v) == CancelBookings {
		return CancelBookings
	}
	return KeepBookings
}

type CreateCommand struct {
	DepartureCountry   string
	DestinationCountry string
	DepartureDate      time.Time
	CollectionDates    []time.Time
	Route              []types.CollectionPoint
	Visibility         types.Visibility
	TotalCapacity      types.Weight
}

type TransitionCommand struct {
	TourID int64
	Target types.TourStatus
	// Confirm must be set to cancel a tour.
	Confirm bool
	// Override lets an admin step a tour back one phase without guards or cascade.
	Override bool
}

// TransitionResult is the committed tour plus the bookings the cascade touched.
type TransitionResult struct {
	Tour     *types.Tour
	From     types.TourStatus
	Affected []types.Booking
	NoOp     bool
}
