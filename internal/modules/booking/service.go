// README: Booking service; client bookings, direct status edits and weight changes, each in one unit of work.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"convoy/internal/modules/capacity"
	"convoy/internal/modules/collection"
	"convoy/internal/notify"
	"convoy/internal/store"
	"convoy/internal/types"
)

// Classifier suggests an item category from a free-text parcel description.
type Classifier interface {
	Classify(ctx context.Context, description string) (string, error)
}

const DefaultCategory = "other"

type Service struct {
	uow        store.UnitOfWork
	ledger     *capacity.Ledger
	projector  *Projector
	classifier Classifier
	events     *notify.Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

type Deps struct {
	UoW        store.UnitOfWork
	Ledger     *capacity.Ledger
	Projector  *Projector
	Classifier Classifier
	Events     *notify.Dispatcher
	Logger     *slog.Logger
}

func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:        deps.UoW,
		ledger:     deps.Ledger,
		projector:  deps.Projector,
		classifier: deps.Classifier,
		events:     deps.Events,
		logger:     logger.With("component", "booking"),
		now:        time.Now,
	}
}

type CreateCommand struct {
	TourID          int64
	PickupCity      string
	DeliveryCity    string
	PickupPoint     string
	Weight          types.Weight
	ItemCategory    string
	ItemDescription string
	Sender          types.Contact
	Recipient       types.Contact
}

type StatusCommand struct {
	BookingID int64
	Target    types.BookingStatus
}

type WeightCommand struct {
	BookingID int64
	Weight    types.Weight
}

// Create books cargo weight on a tour for the acting client. The capacity
// reservation and the booking row are written in the same unit of work.
func (s *Service) Create(ctx context.Context, actor types.Actor, cmd CreateCommand) (*types.Booking, error) {
	if actor.IsZero() || actor.Role != types.RoleClient {
		return nil, types.ErrForbidden
	}
	if cmd.TourID <= 0 || cmd.Weight <= 0 {
		return nil, fmt.Errorf("%w: tour id and positive weight are required", types.ErrBadRequest)
	}
	category := s.category(ctx, cmd)

	b := &types.Booking{
		TourID:          cmd.TourID,
		UserID:          actor.UserID,
		PickupCity:      strings.TrimSpace(cmd.PickupCity),
		DeliveryCity:    strings.TrimSpace(cmd.DeliveryCity),
		PickupPoint:     strings.TrimSpace(cmd.PickupPoint),
		Weight:          cmd.Weight,
		ItemCategory:    category,
		ItemDescription: strings.TrimSpace(cmd.ItemDescription),
		Sender:          cmd.Sender,
		Recipient:       cmd.Recipient,
		TrackingNumber:  newTrackingNumber(),
		Status:          types.BookingPending,
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.LockTour(ctx, cmd.TourID)
		if err != nil {
			return err
		}
		if t.CarrierID == actor.UserID {
			return fmt.Errorf("%w: carriers cannot book their own tour", types.ErrForbidden)
		}
		if !t.Status.Bookable() {
			return fmt.Errorf("%w: tour %d is %s and no longer takes bookings",
				types.ErrIllegalBookingTransition, t.ID, t.Status)
		}
		if b.PickupPoint != "" {
			p, err := collection.ValidatePickup(t, b.PickupPoint, s.now())
			if err != nil {
				return fmt.Errorf("%w: %w", types.ErrBadRequest, err)
			}
			b.PickupPoint = p.Name
		}
		dup, err := tx.HasActiveBooking(ctx, t.ID, actor.UserID, 0)
		if err != nil {
			return err
		}
		if dup {
			return types.ErrDuplicateBooking
		}
		if _, err := s.ledger.ReserveTx(ctx, tx, t.ID, b.Weight); err != nil {
			return err
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &types.StateEvent{
			Entity:    types.EntityBooking,
			EntityID:  b.ID,
			ToStatus:  string(b.Status),
			ActorID:   actor.UserID,
			ActorRole: actor.Role,
		})
	})
	if err != nil {
		return nil, err
	}

	s.events.Dispatch(ctx, notify.Event{
		Kind:       notify.BookingCreated,
		TourID:     b.TourID,
		BookingIDs: []int64{b.ID},
		To:         string(b.Status),
		ActorID:    actor.UserID,
	})
	return b, nil
}

// ChangeStatus performs a direct (non-cascaded) status edit.
func (s *Service) ChangeStatus(ctx context.Context, actor types.Actor, cmd StatusCommand) (*types.Booking, error) {
	var (
		updated *types.Booking
		from    types.BookingStatus
	)
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		t, b, err := s.lockPair(ctx, tx, cmd.BookingID)
		if err != nil {
			return err
		}
		from = b.Status
		updated, err = s.projector.Apply(ctx, tx, actor, t, b, cmd.Target)
		return err
	})
	if err != nil {
		return nil, err
	}
	if from != updated.Status {
		s.events.Dispatch(ctx, notify.Event{
			Kind:       notify.BookingStatusChanged,
			TourID:     updated.TourID,
			BookingIDs: []int64{updated.ID},
			From:       string(from),
			To:         string(updated.Status),
			ActorID:    actor.UserID,
		})
	}
	return updated, nil
}

// UpdateWeight changes a booking's declared weight, reserving or releasing
// only the difference.
func (s *Service) UpdateWeight(ctx context.Context, actor types.Actor, cmd WeightCommand) (*types.Booking, error) {
	if cmd.Weight <= 0 {
		return nil, fmt.Errorf("%w: weight must be positive", types.ErrBadRequest)
	}
	var (
		updated *types.Booking
		before  types.Weight
	)
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		t, b, err := s.lockPair(ctx, tx, cmd.BookingID)
		if err != nil {
			return err
		}
		if _, err := editorRole(actor, t, b); err != nil {
			return err
		}
		if !b.Status.Uncollected() || !t.Status.Bookable() {
			return fmt.Errorf("%w: weight of booking %d is fixed once %s (tour %s)",
				types.ErrIllegalBookingTransition, b.ID, b.Status, t.Status)
		}
		before = b.Weight
		if _, err := s.ledger.AdjustTx(ctx, tx, t.ID, cmd.Weight-b.Weight); err != nil {
			return err
		}
		if err := tx.UpdateBookingWeight(ctx, b.ID, cmd.Weight); err != nil {
			return err
		}
		b.Weight = cmd.Weight
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if before != updated.Weight {
		s.events.Dispatch(ctx, notify.Event{
			Kind:       notify.BookingWeightChanged,
			TourID:     updated.TourID,
			BookingIDs: []int64{updated.ID},
			From:       before.String(),
			To:         updated.Weight.String(),
			ActorID:    actor.UserID,
		})
	}
	return updated, nil
}

// lockPair locks the tour before the booking so booking edits and tour
// transitions acquire rows in the same order.
func (s *Service) lockPair(ctx context.Context, tx store.Tx, bookingID int64) (*types.Tour, *types.Booking, error) {
	probe, err := tx.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	t, err := tx.LockTour(ctx, probe.TourID)
	if err != nil {
		return nil, nil, err
	}
	b, err := tx.LockBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	return t, b, nil
}

// Get returns a booking visible to its client, the tour's carrier or an admin.
func (s *Service) Get(ctx context.Context, actor types.Actor, id int64) (*types.Booking, error) {
	var b *types.Booking
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		b, err = tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if actor.Role == types.RoleAdmin || (actor.Role == types.RoleClient && actor.UserID == b.UserID) {
			return nil
		}
		t, err := tx.GetTour(ctx, b.TourID)
		if err != nil {
			return err
		}
		if !t.OwnedBy(actor) {
			return types.ErrForbidden
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListByTour is available to the tour's carrier and admins.
func (s *Service) ListByTour(ctx context.Context, actor types.Actor, tourID int64) ([]types.Booking, error) {
	var out []types.Booking
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.GetTour(ctx, tourID)
		if err != nil {
			return err
		}
		if actor.Role != types.RoleAdmin && !t.OwnedBy(actor) {
			return types.ErrForbidden
		}
		out, err = tx.ListBookingsByTour(ctx, tourID)
		return err
	})
	return out, err
}

func (s *Service) ListByUser(ctx context.Context, actor types.Actor) ([]types.Booking, error) {
	if actor.IsZero() {
		return nil, types.ErrForbidden
	}
	var out []types.Booking
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListBookingsByUser(ctx, actor.UserID)
		return err
	})
	return out, err
}

// category keeps an explicit category, otherwise asks the classifier. The
// classifier runs before the unit of work opens and never blocks a booking.
func (s *Service) category(ctx context.Context, cmd CreateCommand) string {
	if c := strings.TrimSpace(cmd.ItemCategory); c != "" {
		return strings.ToLower(c)
	}
	desc := strings.TrimSpace(cmd.ItemDescription)
	if s.classifier == nil || desc == "" {
		return DefaultCategory
	}
	c, err := s.classifier.Classify(ctx, desc)
	if err != nil || c == "" {
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WarnContext(ctx, "item classification failed", "err", err)
		}
		return DefaultCategory
	}
	return c
}

func newTrackingNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CV-" + strings.ToUpper(id[:12])
}
