// README: Booking status projector; the single place that maps tour phases and direct edits onto booking statuses.
package booking

import (
	"context"
	"fmt"
	"log/slog"

	"convoy/internal/modules/capacity"
	"convoy/internal/store"
	"convoy/internal/types"
)

// cascadeTable maps the tour phase entered to the status applied to its
// non-cancelled bookings. Cancellation has no entry; see the tour cancel policy.
var cascadeTable = map[types.TourStatus]types.BookingStatus{
	types.TourCollecting: types.BookingPending,
	types.TourInTransit:  types.BookingInTransit,
	types.TourCompleted:  types.BookingTransportCompleted,
}

// CascadeFor returns the booking status a tour phase propagates, if any.
func CascadeFor(phase types.TourStatus) (types.BookingStatus, bool) {
	s, ok := cascadeTable[phase]
	return s, ok
}

// CascadeTarget decides what a single booking becomes when its tour enters phase.
func CascadeTarget(phase types.TourStatus, current types.BookingStatus) (types.BookingStatus, bool) {
	if current == types.BookingCancelled {
		return current, false
	}
	target, ok := CascadeFor(phase)
	if !ok || target == current {
		return current, false
	}
	// Entering collection resets everything not yet collected to pending.
	if phase == types.TourCollecting && current == types.BookingCollected {
		return current, false
	}
	return target, true
}

// editRule allows one direct booking transition while the tour is in one of phases.
type editRule struct {
	from   []types.BookingStatus
	to     types.BookingStatus
	phases []types.TourStatus
}

var (
	bookable  = []types.TourStatus{types.TourPlanned, types.TourCollecting}
	inTransit = []types.TourStatus{types.TourInTransit}
)

var carrierRules = []editRule{
	{from: []types.BookingStatus{types.BookingPending}, to: types.BookingConfirmed, phases: bookable},
	{from: []types.BookingStatus{types.BookingPending, types.BookingConfirmed}, to: types.BookingCollected, phases: bookable},
	{from: []types.BookingStatus{types.BookingPending, types.BookingConfirmed, types.BookingCollected}, to: types.BookingCancelled, phases: bookable},
	{from: []types.BookingStatus{types.BookingCancelled}, to: types.BookingPending, phases: bookable},
	{from: []types.BookingStatus{types.BookingInTransit}, to: types.BookingDelivered, phases: inTransit},
}

var clientRules = []editRule{
	{from: []types.BookingStatus{types.BookingPending, types.BookingConfirmed}, to: types.BookingCancelled, phases: bookable},
	{from: []types.BookingStatus{types.BookingCancelled}, to: types.BookingPending, phases: bookable},
}

func allowed(rules []editRule, from, to types.BookingStatus, phase types.TourStatus) bool {
	for _, r := range rules {
		if r.to != to || !containsStatus(r.from, from) {
			continue
		}
		for _, p := range r.phases {
			if p == phase {
				return true
			}
		}
	}
	return false
}

func containsStatus(list []types.BookingStatus, s types.BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// CanEdit reports whether role may move a booking from one status to another
// while its tour is in phase.
func CanEdit(role types.Role, from, to types.BookingStatus, phase types.TourStatus) bool {
	switch role {
	case types.RoleCarrier:
		return allowed(carrierRules, from, to, phase)
	case types.RoleClient:
		return allowed(clientRules, from, to, phase)
	}
	return false
}

type Projector struct {
	ledger *capacity.Ledger
	logger *slog.Logger
}

func NewProjector(ledger *capacity.Ledger, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{ledger: ledger, logger: logger.With("component", "projector")}
}

// Cascade applies the tour's new phase to every booking on it and returns the
// bookings whose status changed.
func (p *Projector) Cascade(ctx context.Context, tx store.Tx, actor types.Actor, tourID int64, phase types.TourStatus) ([]types.Booking, error) {
	bookings, err := tx.ListBookingsByTour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	var changed []types.Booking
	for _, b := range bookings {
		target, ok := CascadeTarget(phase, b.Status)
		if !ok {
			continue
		}
		if err := p.write(ctx, tx, actor, &b, target); err != nil {
			return nil, err
		}
		changed = append(changed, b)
	}
	return changed, nil
}

// CancelAll cancels every active booking on a tour and releases its weight.
func (p *Projector) CancelAll(ctx context.Context, tx store.Tx, actor types.Actor, tourID int64) ([]types.Booking, error) {
	bookings, err := tx.ListBookingsByTour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	var changed []types.Booking
	for _, b := range bookings {
		if !b.Status.Active() {
			continue
		}
		if _, err := p.ledger.ReleaseTx(ctx, tx, tourID, b.Weight); err != nil {
			return nil, err
		}
		if err := p.write(ctx, tx, actor, &b, types.BookingCancelled); err != nil {
			return nil, err
		}
		changed = append(changed, b)
	}
	return changed, nil
}

// Apply validates and performs a direct edit requested by a carrier or client.
// t must be locked by the caller's unit of work. Moving into or out of
// cancelled adjusts capacity in the same unit of work.
func (p *Projector) Apply(ctx context.Context, tx store.Tx, actor types.Actor, t *types.Tour, b *types.Booking, target types.BookingStatus) (*types.Booking, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown booking status %q", types.ErrBadRequest, target)
	}
	role, err := editorRole(actor, t, b)
	if err != nil {
		return nil, err
	}
	if b.Status == target {
		return b, nil
	}
	if !CanEdit(role, b.Status, target, t.Status) {
		return nil, fmt.Errorf("%w: %s cannot move booking %d from %s to %s while tour is %s",
			types.ErrIllegalBookingTransition, role, b.ID, b.Status, target, t.Status)
	}

	switch {
	case target == types.BookingCancelled:
		if _, err := p.ledger.ReleaseTx(ctx, tx, t.ID, b.Weight); err != nil {
			return nil, err
		}
	case b.Status == types.BookingCancelled:
		dup, err := tx.HasActiveBooking(ctx, t.ID, b.UserID, b.ID)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, types.ErrDuplicateBooking
		}
		if _, err := p.ledger.ReserveTx(ctx, tx, t.ID, b.Weight); err != nil {
			return nil, err
		}
	}

	if err := p.write(ctx, tx, actor, b, target); err != nil {
		return nil, err
	}
	return b, nil
}

// editorRole resolves which rule set applies. The tour's carrier edits as a
// carrier, the booking's owner as a client; everyone else is refused.
func editorRole(actor types.Actor, t *types.Tour, b *types.Booking) (types.Role, error) {
	switch {
	case actor.IsZero():
		return "", types.ErrForbidden
	case t.OwnedBy(actor):
		return types.RoleCarrier, nil
	case actor.Role == types.RoleClient && actor.UserID == b.UserID:
		return types.RoleClient, nil
	}
	return "", types.ErrForbidden
}

func (p *Projector) write(ctx context.Context, tx store.Tx, actor types.Actor, b *types.Booking, target types.BookingStatus) error {
	from := b.Status
	if err := tx.UpdateBookingStatus(ctx, b.ID, target); err != nil {
		return err
	}
	b.Status = target
	return tx.AppendEvent(ctx, &types.StateEvent{
		Entity:     types.EntityBooking,
		EntityID:   b.ID,
		FromStatus: string(from),
		ToStatus:   string(target),
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
	})
}
