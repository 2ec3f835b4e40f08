// README: Tour aggregate, route points and lifecycle status vocabulary.
package types

import "time"

type TourStatus string

const (
	TourPlanned    TourStatus = "Programmée"
	TourCollecting TourStatus = "Ramassage en cours"
	TourInTransit  TourStatus = "En transit"
	TourCompleted  TourStatus = "Terminée"
	TourCancelled  TourStatus = "Annulée"
)

// TourPhases lists the forward lifecycle in order. Cancelled sits outside it.
var TourPhases = []TourStatus{TourPlanned, TourCollecting, TourInTransit, TourCompleted}

func (s TourStatus) Valid() bool {
	switch s {
	case TourPlanned, TourCollecting, TourInTransit, TourCompleted, TourCancelled:
		return true
	}
	return false
}

func (s TourStatus) Terminal() bool {
	return s == TourCompleted || s == TourCancelled
}

// Bookable reports whether clients may still book, cancel or reinstate on a tour in this status.
func (s TourStatus) Bookable() bool {
	return s == TourPlanned || s == TourCollecting
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

type PointType string

const (
	PointPickup  PointType = "pickup"
	PointDropoff PointType = "dropoff"
)

// CollectionPoint is one stop on a tour route. ScheduledTime uses the "15:04" layout.
type CollectionPoint struct {
	Name          string
	Address       string
	ScheduledDate time.Time
	ScheduledTime string
	Type          PointType
}

// ScheduledAt combines the scheduled date and time in the date's location.
// Points without a parseable time are treated as the start of their day.
func (p CollectionPoint) ScheduledAt() time.Time {
	d := p.ScheduledDate
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	t, err := time.Parse("15:04", p.ScheduledTime)
	if err != nil {
		return day
	}
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}

type Tour struct {
	ID                 int64
	CarrierID          string
	DepartureCountry   string
	DestinationCountry string
	DepartureDate      time.Time
	CollectionDates    []time.Time
	Route              []CollectionPoint
	Visibility         Visibility
	TotalCapacity      Weight
	RemainingCapacity  Weight
	Status             TourStatus
	StatusVersion      int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CheckCapacity returns ErrConsistencyViolation when remaining capacity left its bounds.
func (t *Tour) CheckCapacity() error {
	if t.RemainingCapacity < 0 || t.RemainingCapacity > t.TotalCapacity {
		return ErrConsistencyViolation
	}
	return nil
}

func (t *Tour) OwnedBy(a Actor) bool {
	return a.Role == RoleCarrier && a.UserID != "" && a.UserID == t.CarrierID
}

// StateEvent is the audit record appended for every tour or booking status write.
type StateEvent struct {
	ID         int64
	Entity     string
	EntityID   int64
	FromStatus string
	ToStatus   string
	ActorID    string
	ActorRole  Role
	CreatedAt  time.Time
}

const (
	EntityTour    = "tour"
	EntityBooking = "booking"
)
