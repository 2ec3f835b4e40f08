// README: Booking aggregate and its status vocabulary.
package types

import "time"

type BookingStatus string

const (
	BookingPending            BookingStatus = "pending"
	BookingConfirmed          BookingStatus = "confirmed"
	BookingCollected          BookingStatus = "collected"
	BookingInTransit          BookingStatus = "in_transit"
	BookingDelivered          BookingStatus = "delivered"
	BookingTransportCompleted BookingStatus = "transport_completed"
	BookingCancelled          BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCollected, BookingInTransit,
		BookingDelivered, BookingTransportCompleted, BookingCancelled:
		return true
	}
	return false
}

// Active reports whether the booking is neither cancelled nor finished.
// At most one active booking may exist per (user, tour).
func (s BookingStatus) Active() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCollected, BookingInTransit:
		return true
	}
	return false
}

// Uncollected reports whether the parcel still waits for pickup.
func (s BookingStatus) Uncollected() bool {
	return s == BookingPending || s == BookingConfirmed
}

type Contact struct {
	Name  string
	Phone string
}

type Booking struct {
	ID              int64
	TourID          int64
	UserID          string
	PickupCity      string
	DeliveryCity    string
	PickupPoint     string
	Weight          Weight
	ItemCategory    string
	ItemDescription string
	Sender          Contact
	Recipient       Contact
	TrackingNumber  string
	Status          BookingStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CountsAgainstCapacity reports whether the booking's weight is reserved on its tour.
func (b *Booking) CountsAgainstCapacity() bool {
	return b.Status != BookingCancelled
}
