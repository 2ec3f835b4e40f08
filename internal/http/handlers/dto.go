// README: Wire shapes; weights travel as kilograms, dates as YYYY-MM-DD.
package handlers

import (
	"fmt"
	"time"

	"convoy/internal/modules/collection"
	"convoy/internal/types"
)

const dateLayout = "2006-01-02"

type pointDTO struct {
	Name          string `json:"name"`
	Address       string `json:"address,omitempty"`
	ScheduledDate string `json:"scheduled_date"`
	ScheduledTime string `json:"scheduled_time,omitempty"`
	Type          string `json:"type"`
}

type tourDTO struct {
	ID                  int64      `json:"id"`
	CarrierID           string     `json:"carrier_id"`
	DepartureCountry    string     `json:"departure_country"`
	DestinationCountry  string     `json:"destination_country"`
	DepartureDate       string     `json:"departure_date"`
	CollectionDates     []string   `json:"collection_dates"`
	Route               []pointDTO `json:"route"`
	Visibility          string     `json:"visibility"`
	TotalCapacityKg     float64    `json:"total_capacity_kg"`
	RemainingCapacityKg float64    `json:"remaining_capacity_kg"`
	Status              string     `json:"status"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type contactDTO struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type bookingDTO struct {
	ID              int64      `json:"id"`
	TourID          int64      `json:"tour_id"`
	UserID          string     `json:"user_id"`
	PickupCity      string     `json:"pickup_city"`
	DeliveryCity    string     `json:"delivery_city"`
	PickupPoint     string     `json:"pickup_point,omitempty"`
	WeightKg        float64    `json:"weight_kg"`
	ItemCategory    string     `json:"item_category"`
	ItemDescription string     `json:"item_description,omitempty"`
	Sender          contactDTO `json:"sender"`
	Recipient       contactDTO `json:"recipient"`
	TrackingNumber  string     `json:"tracking_number"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type collectionPointDTO struct {
	pointDTO
	Index                     int       `json:"index"`
	ScheduledAt               time.Time `json:"scheduled_at"`
	TravelMinutesFromPrevious int       `json:"travel_minutes_from_previous,omitempty"`
	DistanceFromPrevious      string    `json:"distance_from_previous,omitempty"`
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(field, v string) (time.Time, error) {
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", types.ErrBadRequest, field)
	}
	return t, nil
}

func toPointDTO(p types.CollectionPoint) pointDTO {
	return pointDTO{
		Name:          p.Name,
		Address:       p.Address,
		ScheduledDate: formatDate(p.ScheduledDate),
		ScheduledTime: p.ScheduledTime,
		Type:          string(p.Type),
	}
}

func fromPointDTO(p pointDTO) (types.CollectionPoint, error) {
	var date time.Time
	if p.ScheduledDate != "" {
		var err error
		if date, err = parseDate("scheduled_date", p.ScheduledDate); err != nil {
			return types.CollectionPoint{}, err
		}
	}
	return types.CollectionPoint{
		Name:          p.Name,
		Address:       p.Address,
		ScheduledDate: date,
		ScheduledTime: p.ScheduledTime,
		Type:          types.PointType(p.Type),
	}, nil
}

func toTourDTO(t *types.Tour) tourDTO {
	dates := make([]string, len(t.CollectionDates))
	for i, d := range t.CollectionDates {
		dates[i] = formatDate(d)
	}
	route := make([]pointDTO, len(t.Route))
	for i, p := range t.Route {
		route[i] = toPointDTO(p)
	}
	return tourDTO{
		ID:                  t.ID,
		CarrierID:           t.CarrierID,
		DepartureCountry:    t.DepartureCountry,
		DestinationCountry:  t.DestinationCountry,
		DepartureDate:       formatDate(t.DepartureDate),
		CollectionDates:     dates,
		Route:               route,
		Visibility:          string(t.Visibility),
		TotalCapacityKg:     t.TotalCapacity.Kilograms(),
		RemainingCapacityKg: t.RemainingCapacity.Kilograms(),
		Status:              string(t.Status),
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

func toBookingDTO(b *types.Booking) bookingDTO {
	return bookingDTO{
		ID:              b.ID,
		TourID:          b.TourID,
		UserID:          b.UserID,
		PickupCity:      b.PickupCity,
		DeliveryCity:    b.DeliveryCity,
		PickupPoint:     b.PickupPoint,
		WeightKg:        b.Weight.Kilograms(),
		ItemCategory:    b.ItemCategory,
		ItemDescription: b.ItemDescription,
		Sender:          contactDTO(b.Sender),
		Recipient:       contactDTO(b.Recipient),
		TrackingNumber:  b.TrackingNumber,
		Status:          string(b.Status),
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func toBookingDTOs(bs []types.Booking) []bookingDTO {
	out := make([]bookingDTO, len(bs))
	for i := range bs {
		out[i] = toBookingDTO(&bs[i])
	}
	return out
}

func toCollectionPointDTOs(points []collection.Point) []collectionPointDTO {
	out := make([]collectionPointDTO, len(points))
	for i, p := range points {
		out[i] = collectionPointDTO{
			pointDTO:                  toPointDTO(p.CollectionPoint),
			Index:                     p.Index,
			ScheduledAt:               p.ScheduledAt,
			TravelMinutesFromPrevious: int(p.TravelFromPrevious.Minutes()),
			DistanceFromPrevious:      p.DistanceFromPrevious,
		}
	}
	return out
}
