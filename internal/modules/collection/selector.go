// README: Collection-point selector; read-only picker that offers route points consistent with the tour status.
package collection

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"convoy/internal/store"
	"convoy/internal/types"
)

var (
	ErrSelectionClosed = errors.New("collection points are closed for this tour")
	ErrUnknownPoint    = errors.New("unknown collection point")
)

// Point is a route stop offered to a client, with an optional travel estimate
// from the previous stop on the route.
type Point struct {
	types.CollectionPoint
	Index                int
	ScheduledAt          time.Time
	TravelFromPrevious   time.Duration
	DistanceFromPrevious string
}

// Estimator returns a travel duration and a human-readable distance between two addresses.
type Estimator interface {
	GetTravelEstimate(ctx context.Context, origin, destination string) (time.Duration, string, error)
}

// OpenPickups lists the pickup points a client may still choose. A planned
// tour offers every pickup point; a collecting tour only those not yet passed.
func OpenPickups(t *types.Tour, now time.Time) ([]Point, error) {
	switch t.Status {
	case types.TourPlanned:
		return filter(t, types.PointPickup, time.Time{}), nil
	case types.TourCollecting:
		return filter(t, types.PointPickup, now), nil
	default:
		return nil, ErrSelectionClosed
	}
}

// Dropoffs lists drop-off points for any tour that has not finished.
func Dropoffs(t *types.Tour) ([]Point, error) {
	if t.Status.Terminal() {
		return nil, ErrSelectionClosed
	}
	return filter(t, types.PointDropoff, time.Time{}), nil
}

// ValidatePickup finds an open pickup point by name, ignoring case and surrounding spaces.
func ValidatePickup(t *types.Tour, name string, now time.Time) (Point, error) {
	points, err := OpenPickups(t, now)
	if err != nil {
		return Point{}, err
	}
	name = strings.TrimSpace(name)
	for _, p := range points {
		if strings.EqualFold(strings.TrimSpace(p.Name), name) {
			return p, nil
		}
	}
	return Point{}, ErrUnknownPoint
}

func filter(t *types.Tour, kind types.PointType, notBefore time.Time) []Point {
	var out []Point
	for i, cp := range t.Route {
		if cp.Type != kind {
			continue
		}
		at := cp.ScheduledAt()
		if !notBefore.IsZero() && at.Before(notBefore) {
			continue
		}
		out = append(out, Point{CollectionPoint: cp, Index: i, ScheduledAt: at})
	}
	return out
}

type Selector struct {
	uow       store.UnitOfWork
	estimator Estimator
	logger    *slog.Logger
	now       func() time.Time
}

// NewSelector builds a selector. estimator may be nil.
func NewSelector(uow store.UnitOfWork, estimator Estimator, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{uow: uow, estimator: estimator, logger: logger.With("component", "collection"), now: time.Now}
}

func (s *Selector) tour(ctx context.Context, id int64) (*types.Tour, error) {
	var t *types.Tour
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		t, err = tx.GetTour(ctx, id)
		return err
	})
	return t, err
}

func (s *Selector) Pickups(ctx context.Context, tourID int64) ([]Point, error) {
	t, err := s.tour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	points, err := OpenPickups(t, s.now())
	if err != nil {
		return nil, err
	}
	s.annotate(ctx, t, points)
	return points, nil
}

func (s *Selector) Dropoffs(ctx context.Context, tourID int64) ([]Point, error) {
	t, err := s.tour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	points, err := Dropoffs(t)
	if err != nil {
		return nil, err
	}
	s.annotate(ctx, t, points)
	return points, nil
}

func (s *Selector) Validate(ctx context.Context, tourID int64, name string) (Point, error) {
	t, err := s.tour(ctx, tourID)
	if err != nil {
		return Point{}, err
	}
	return ValidatePickup(t, name, s.now())
}

// annotate fills travel estimates from the previous route stop. Estimation is
// best effort; failures only get logged.
func (s *Selector) annotate(ctx context.Context, t *types.Tour, points []Point) {
	if s.estimator == nil {
		return
	}
	for i := range points {
		idx := points[i].Index
		if idx == 0 {
			continue
		}
		origin := t.Route[idx-1].Address
		dest := points[i].Address
		if origin == "" || dest == "" {
			continue
		}
		d, dist, err := s.estimator.GetTravelEstimate(ctx, origin, dest)
		if err != nil {
			s.logger.WarnContext(ctx, "travel estimate failed", "tour_id", t.ID, "point", points[i].Name, "err", err)
			continue
		}
		points[i].TravelFromPrevious = d
		points[i].DistanceFromPrevious = dist
	}
}
