// README: Tour service implements the lifecycle state machine; status write and booking cascade share one unit of work.
package tour

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"convoy/internal/modules/booking"
	"convoy/internal/notify"
	"convoy/internal/store"
	"convoy/internal/types"
)

// AddressResolver turns a route point name into a postal address.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, query string) (string, error)
}

type Service struct {
	uow       store.UnitOfWork
	projector *booking.Projector
	resolver  AddressResolver
	events    *notify.Dispatcher
	policy    CancelPolicy
	logger    *slog.Logger
}

type Deps struct {
	UoW       store.UnitOfWork
	Projector *booking.Projector
	Resolver  AddressResolver
	Events    *notify.Dispatcher
	Policy    CancelPolicy
	Logger    *slog.Logger
}

func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := deps.Policy
	if policy == "" {
		policy = KeepBookings
	}
	return &Service{
		uow:       deps.UoW,
		projector: deps.Projector,
		resolver:  deps.Resolver,
		events:    deps.Events,
		policy:    policy,
		logger:    logger.With("component", "tour"),
	}
}

// Create plans a new tour for the acting carrier with all capacity available.
func (s *Service) Create(ctx context.Context, actor types.Actor, cmd CreateCommand) (*types.Tour, error) {
	if actor.IsZero() || actor.Role != types.RoleCarrier {
		return nil, types.ErrForbidden
	}
	if err := validateCreate(&cmd); err != nil {
		return nil, err
	}
	s.resolveAddresses(ctx, cmd.Route)
	t := &types.Tour{
		CarrierID:          actor.UserID,
		DepartureCountry:   cmd.DepartureCountry,
		DestinationCountry: cmd.DestinationCountry,
		DepartureDate:      cmd.DepartureDate,
		CollectionDates:    cmd.CollectionDates,
		Route:              cmd.Route,
		Visibility:         cmd.Visibility,
		TotalCapacity:      cmd.TotalCapacity,
		RemainingCapacity:  cmd.TotalCapacity,
		Status:             types.TourPlanned,
	}
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertTour(ctx, t); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &types.StateEvent{
			Entity:    types.EntityTour,
			EntityID:  t.ID,
			ToStatus:  string(t.Status),
			ActorID:   actor.UserID,
			ActorRole: actor.Role,
		})
	})
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(ctx, notify.Event{
		Kind:    notify.TourCreated,
		TourID:  t.ID,
		To:      string(t.Status),
		ActorID: actor.UserID,
	})
	return t, nil
}

func validateCreate(cmd *CreateCommand) error {
	cmd.DepartureCountry = strings.TrimSpace(cmd.DepartureCountry)
	cmd.DestinationCountry = strings.TrimSpace(cmd.DestinationCountry)
	if cmd.DepartureCountry == "" || cmd.DestinationCountry == "" {
		return fmt.Errorf("%w: departure and destination countries are required", types.ErrBadRequest)
	}
	if cmd.DepartureDate.IsZero() {
		return fmt.Errorf("%w: departure date is required", types.ErrBadRequest)
	}
	if cmd.TotalCapacity <= 0 {
		return fmt.Errorf("%w: total capacity must be positive", types.ErrBadRequest)
	}
	switch cmd.Visibility {
	case "":
		cmd.Visibility = types.VisibilityPublic
	case types.VisibilityPublic, types.VisibilityPrivate:
	default:
		return fmt.Errorf("%w: unknown visibility %q", types.ErrBadRequest, cmd.Visibility)
	}
	cmd.Route = append([]types.CollectionPoint(nil), cmd.Route...)
	for i, p := range cmd.Route {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: route point %d has no name", types.ErrBadRequest, i)
		}
		if p.Type != types.PointPickup && p.Type != types.PointDropoff {
			return fmt.Errorf("%w: route point %q has unknown type %q", types.ErrBadRequest, p.Name, p.Type)
		}
		if p.ScheduledTime != "" {
			if _, err := time.Parse("15:04", p.ScheduledTime); err != nil {
				return fmt.Errorf("%w: route point %q time must be HH:MM", types.ErrBadRequest, p.Name)
			}
		}
	}
	return nil
}

// resolveAddresses fills missing route addresses. Lookups are best effort and
// happen before the unit of work opens.
func (s *Service) resolveAddresses(ctx context.Context, route []types.CollectionPoint) {
	if s.resolver == nil {
		return
	}
	for i := range route {
		if route[i].Address != "" {
			continue
		}
		addr, err := s.resolver.ResolveAddress(ctx, route[i].Name)
		if err != nil {
			s.logger.WarnContext(ctx, "route address lookup failed", "point", route[i].Name, "err", err)
			continue
		}
		route[i].Address = addr
	}
}

// RequestTransition moves a tour to target. Guards, the status write, the
// booking cascade and the audit events run in one unit of work; notifications
// go out only after it commits.
func (s *Service) RequestTransition(ctx context.Context, actor types.Actor, cmd TransitionCommand) (*TransitionResult, error) {
	if !cmd.Target.Valid() {
		return nil, fmt.Errorf("%w: unknown tour status %q", types.ErrIllegalTransition, cmd.Target)
	}
	var res TransitionResult
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.LockTour(ctx, cmd.TourID)
		if err != nil {
			return err
		}
		res.From = t.Status
		if cmd.Override {
			return s.override(ctx, tx, actor, t, cmd.Target, &res)
		}
		if !t.OwnedBy(actor) {
			return types.ErrForbidden
		}
		if t.Status == cmd.Target {
			res.Tour = t
			res.NoOp = true
			return nil
		}
		if !CanTransition(t.Status, cmd.Target) {
			return fmt.Errorf("%w: %s -> %s", types.ErrIllegalTransition, t.Status, cmd.Target)
		}
		if cmd.Target == types.TourCancelled && !cmd.Confirm {
			return &types.PreconditionError{Reason: "cancelling a tour requires explicit confirmation"}
		}

		bookings, err := tx.ListBookingsByTour(ctx, t.ID)
		if err != nil {
			return err
		}
		if err := Check(t, cmd.Target, bookings).Err(); err != nil {
			return err
		}

		if err := s.writeStatus(ctx, tx, actor, t, cmd.Target); err != nil {
			return err
		}

		switch {
		case cmd.Target == types.TourCancelled && s.policy == CancelBookings:
			res.Affected, err = s.projector.CancelAll(ctx, tx, actor, t.ID)
		case cmd.Target != types.TourCancelled:
			res.Affected, err = s.projector.Cascade(ctx, tx, actor, t.ID, cmd.Target)
		}
		if err != nil {
			return err
		}
		// Re-read so the result reflects capacity released by the cancel policy.
		res.Tour, err = tx.GetTour(ctx, t.ID)
		return err
	})
	if err != nil {
		if isConsistency(err) {
			s.logger.ErrorContext(ctx, "tour transition aborted", "tour_id", cmd.TourID, "target", string(cmd.Target), "err", err)
		}
		return nil, err
	}
	if !res.NoOp {
		s.events.Dispatch(ctx, notify.Event{
			Kind:       notify.TourTransitioned,
			TourID:     res.Tour.ID,
			BookingIDs: bookingIDs(res.Affected),
			From:       string(res.From),
			To:         string(res.Tour.Status),
			ActorID:    actor.UserID,
		})
	}
	return &res, nil
}

// override steps a tour back one phase on an admin's request. No guard and no
// cascade run; the event trail records who did it.
func (s *Service) override(ctx context.Context, tx store.Tx, actor types.Actor, t *types.Tour, target types.TourStatus, res *TransitionResult) error {
	if actor.IsZero() || actor.Role != types.RoleAdmin {
		return types.ErrForbidden
	}
	prev, ok := previousPhase(t.Status)
	if !ok || prev != target {
		return fmt.Errorf("%w: override %s -> %s", types.ErrIllegalTransition, t.Status, target)
	}
	if err := s.writeStatus(ctx, tx, actor, t, target); err != nil {
		return err
	}
	s.logger.WarnContext(ctx, "tour status overridden", "tour_id", t.ID, "from", string(res.From), "to", string(target), "actor_id", actor.UserID)
	res.Tour = t
	return nil
}

func (s *Service) writeStatus(ctx context.Context, tx store.Tx, actor types.Actor, t *types.Tour, target types.TourStatus) error {
	from := t.Status
	if err := tx.UpdateTourStatus(ctx, t.ID, from, target, t.StatusVersion); err != nil {
		return err
	}
	t.Status = target
	t.StatusVersion++
	return tx.AppendEvent(ctx, &types.StateEvent{
		Entity:     types.EntityTour,
		EntityID:   t.ID,
		FromStatus: string(from),
		ToStatus:   string(target),
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
	})
}

// Get returns a tour. Private tours are only visible to their carrier and
// admins; anyone else gets ErrNotFound.
func (s *Service) Get(ctx context.Context, actor types.Actor, id int64) (*types.Tour, error) {
	var t *types.Tour
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		t, err = tx.GetTour(ctx, id)
		if err != nil {
			return err
		}
		if !visibleTo(t, actor) {
			return fmt.Errorf("%w: tour %d", types.ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func visibleTo(t *types.Tour, actor types.Actor) bool {
	return t.Visibility != types.VisibilityPrivate || actor.Role == types.RoleAdmin || t.OwnedBy(actor)
}

func (s *Service) ListByCarrier(ctx context.Context, actor types.Actor) ([]types.Tour, error) {
	if actor.IsZero() || actor.Role != types.RoleCarrier {
		return nil, types.ErrForbidden
	}
	var tours []types.Tour
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		tours, err = tx.ListToursByCarrier(ctx, actor.UserID)
		return err
	})
	return tours, err
}

func isConsistency(err error) bool {
	return errors.Is(err, types.ErrConsistencyViolation) || errors.Is(err, types.ErrConflict)
}

func bookingIDs(bs []types.Booking) []int64 {
	if len(bs) == 0 {
		return nil
	}
	ids := make([]int64, len(bs))
	for i, b := range bs {
		ids[i] = b.ID
	}
	return ids
}
