// README: Tour service tests; full lifecycle, cancel policies and operator override on the in-memory store.
package tour

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/modules/booking"
	"convoy/internal/modules/capacity"
	"convoy/internal/notify"
	"convoy/internal/store"
	"convoy/internal/store/memory"
	"convoy/internal/types"
)

var (
	carrier = types.Actor{UserID: "carrier-1", Role: types.RoleCarrier}
	rival   = types.Actor{UserID: "carrier-2", Role: types.RoleCarrier}
	alice   = types.Actor{UserID: "alice", Role: types.RoleClient}
	bob     = types.Actor{UserID: "bob", Role: types.RoleClient}
	dave    = types.Actor{UserID: "dave", Role: types.RoleClient}
	admin   = types.Actor{UserID: "ops", Role: types.RoleAdmin}
)

type harness struct {
	store    *memory.Store
	tours    *Service
	bookings *booking.Service
	events   *recorder
	dispatch *notify.Dispatcher
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func newHarness(t *testing.T, policy CancelPolicy) *harness {
	t.Helper()
	st := memory.New()
	rec := &recorder{}
	d := notify.NewDispatcher(rec, time.Second, nil)
	ledger := capacity.NewLedger(st, nil)
	projector := booking.NewProjector(ledger, nil)
	return &harness{
		store:    st,
		tours:    NewService(Deps{UoW: st, Projector: projector, Events: d, Policy: policy}),
		bookings: booking.NewService(booking.Deps{UoW: st, Ledger: ledger, Projector: projector, Events: d}),
		events:   rec,
		dispatch: d,
	}
}

func (h *harness) createTour(t *testing.T, total types.Weight) *types.Tour {
	t.Helper()
	tour, err := h.tours.Create(context.Background(), carrier, CreateCommand{
		DepartureCountry:   "France",
		DestinationCountry: "Sénégal",
		DepartureDate:      time.Now().Add(72 * time.Hour),
		TotalCapacity:      total,
	})
	require.NoError(t, err)
	return tour
}

func (h *harness) book(t *testing.T, actor types.Actor, tourID int64, w types.Weight) *types.Booking {
	t.Helper()
	b, err := h.bookings.Create(context.Background(), actor, booking.CreateCommand{
		TourID:       tourID,
		PickupCity:   "Paris",
		DeliveryCity: "Dakar",
		Weight:       w,
	})
	require.NoError(t, err)
	return b
}

func (h *harness) transition(actor types.Actor, id int64, target types.TourStatus) (*TransitionResult, error) {
	return h.tours.RequestTransition(context.Background(), actor, TransitionCommand{TourID: id, Target: target, Confirm: true})
}

func (h *harness) booking(t *testing.T, id int64) *types.Booking {
	t.Helper()
	b, err := h.bookings.Get(context.Background(), admin, id)
	require.NoError(t, err)
	return b
}

func (h *harness) tour(t *testing.T, id int64) *types.Tour {
	t.Helper()
	tour, err := h.tours.Get(context.Background(), admin, id)
	require.NoError(t, err)
	return tour
}

func (h *harness) setStatus(t *testing.T, actor types.Actor, id int64, s types.BookingStatus) {
	t.Helper()
	_, err := h.bookings.ChangeStatus(context.Background(), actor, booking.StatusCommand{BookingID: id, Target: s})
	require.NoError(t, err)
}

func TestCreateValidates(t *testing.T) {
	h := newHarness(t, KeepBookings)
	ctx := context.Background()
	valid := CreateCommand{
		DepartureCountry:   "France",
		DestinationCountry: "Mali",
		DepartureDate:      time.Now(),
		TotalCapacity:      types.Kg(10),
	}

	_, err := h.tours.Create(ctx, alice, valid)
	assert.ErrorIs(t, err, types.ErrForbidden)

	bad := valid
	bad.TotalCapacity = 0
	_, err = h.tours.Create(ctx, carrier, bad)
	assert.ErrorIs(t, err, types.ErrBadRequest)

	bad = valid
	bad.Route = []types.CollectionPoint{{Name: "Gare", Type: "somewhere"}}
	_, err = h.tours.Create(ctx, carrier, bad)
	assert.ErrorIs(t, err, types.ErrBadRequest)

	bad = valid
	bad.Route = []types.CollectionPoint{{Name: "Gare", Type: types.PointPickup, ScheduledTime: "25h"}}
	_, err = h.tours.Create(ctx, carrier, bad)
	assert.ErrorIs(t, err, types.ErrBadRequest)

	tour, err := h.tours.Create(ctx, carrier, valid)
	require.NoError(t, err)
	assert.Equal(t, types.TourPlanned, tour.Status)
	assert.Equal(t, tour.TotalCapacity, tour.RemainingCapacity)
	assert.Equal(t, types.VisibilityPublic, tour.Visibility)
}

// TestFullLifecycle walks a tour from planning to completion with the guard
// rejections a carrier meets on the way.
func TestFullLifecycle(t *testing.T) {
	h := newHarness(t, KeepBookings)
	ctx := context.Background()
	tour := h.createTour(t, types.Kg(100))

	a := h.book(t, alice, tour.ID, types.Kg(60))
	_, err := h.bookings.Create(ctx, bob, booking.CreateCommand{TourID: tour.ID, Weight: types.Kg(50)})
	require.ErrorIs(t, err, types.ErrInsufficientCapacity)
	assert.Equal(t, types.Kg(40), h.tour(t, tour.ID).RemainingCapacity)

	res, err := h.transition(carrier, tour.ID, types.TourCollecting)
	require.NoError(t, err)
	assert.Equal(t, types.TourCollecting, res.Tour.Status)
	assert.Equal(t, types.BookingPending, h.booking(t, a.ID).Status)

	_, err = h.transition(carrier, tour.ID, types.TourInTransit)
	var pe *types.PreconditionError
	require.True(t, errors.As(err, &pe), "expected precondition error, got %v", err)
	assert.Equal(t, []int64{a.ID}, pe.BookingIDs)
	assert.Equal(t, types.TourCollecting, h.tour(t, tour.ID).Status, "rejected transition must not write")

	h.setStatus(t, carrier, a.ID, types.BookingCollected)

	res, err = h.transition(carrier, tour.ID, types.TourInTransit)
	require.NoError(t, err)
	require.Len(t, res.Affected, 1)
	assert.Equal(t, types.BookingInTransit, h.booking(t, a.ID).Status)

	_, err = h.transition(carrier, tour.ID, types.TourCompleted)
	require.ErrorIs(t, err, types.ErrPreconditionFailed)

	h.setStatus(t, carrier, a.ID, types.BookingDelivered)
	res, err = h.transition(carrier, tour.ID, types.TourCompleted)
	require.NoError(t, err)
	assert.Equal(t, types.TourCompleted, res.Tour.Status)
	assert.Equal(t, types.BookingTransportCompleted, h.booking(t, a.ID).Status)

	_, err = h.transition(carrier, tour.ID, types.TourCancelled)
	assert.ErrorIs(t, err, types.ErrIllegalTransition)

	h.dispatch.Wait()
	assert.Contains(t, h.events.kinds(), notify.TourTransitioned)
}

func TestCascadeKeepsProgressedAndCancelledBookings(t *testing.T) {
	h := newHarness(t, KeepBookings)
	tour := h.createTour(t, types.Kg(100))
	a := h.book(t, alice, tour.ID, types.Kg(10))
	b := h.book(t, bob, tour.ID, types.Kg(10))

	c := h.book(t, dave, tour.ID, types.Kg(10))

	h.setStatus(t, carrier, a.ID, types.BookingConfirmed)
	h.setStatus(t, bob, b.ID, types.BookingCancelled)
	h.setStatus(t, carrier, c.ID, types.BookingCollected)

	res, err := h.transition(carrier, tour.ID, types.TourCollecting)
	require.NoError(t, err)
	require.Len(t, res.Affected, 1)
	assert.Equal(t, a.ID, res.Affected[0].ID)
	assert.Equal(t, types.BookingPending, h.booking(t, a.ID).Status, "confirmed bookings restart collection as pending")
	assert.Equal(t, types.BookingCancelled, h.booking(t, b.ID).Status)
	assert.Equal(t, types.BookingCollected, h.booking(t, c.ID).Status, "collected bookings stay collected")

	h.setStatus(t, carrier, a.ID, types.BookingCollected)
	_, err = h.transition(carrier, tour.ID, types.TourInTransit)
	require.NoError(t, err)
	assert.Equal(t, types.BookingInTransit, h.booking(t, a.ID).Status)
	assert.Equal(t, types.BookingCancelled, h.booking(t, b.ID).Status)
}

func TestTransitionRejections(t *testing.T) {
	h := newHarness(t, KeepBookings)
	ctx := context.Background()
	tour := h.createTour(t, types.Kg(10))

	_, err := h.transition(rival, tour.ID, types.TourCollecting)
	assert.ErrorIs(t, err, types.ErrForbidden)

	_, err = h.transition(alice, tour.ID, types.TourCollecting)
	assert.ErrorIs(t, err, types.ErrForbidden)

	_, err = h.transition(carrier, tour.ID, types.TourCompleted)
	assert.ErrorIs(t, err, types.ErrIllegalTransition)

	_, err = h.transition(carrier, 999, types.TourCollecting)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = h.tours.RequestTransition(ctx, carrier, TransitionCommand{TourID: tour.ID, Target: "Perdue"})
	assert.ErrorIs(t, err, types.ErrIllegalTransition)
	_, err = h.tours.RequestTransition(ctx, admin, TransitionCommand{TourID: tour.ID, Target: "Perdue", Override: true})
	assert.ErrorIs(t, err, types.ErrIllegalTransition, "overrides are bound to the same status vocabulary")

	_, err = h.tours.RequestTransition(ctx, carrier, TransitionCommand{TourID: tour.ID, Target: types.TourCancelled})
	assert.ErrorIs(t, err, types.ErrPreconditionFailed, "cancel without confirmation")
	assert.Equal(t, types.TourPlanned, h.tour(t, tour.ID).Status)
}

func TestSameStatusIsNoOp(t *testing.T) {
	h := newHarness(t, KeepBookings)
	tour := h.createTour(t, types.Kg(10))
	before := len(h.store.Events())

	res, err := h.transition(carrier, tour.ID, types.TourPlanned)
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Len(t, h.store.Events(), before)
}

func TestCancelKeepsBookings(t *testing.T) {
	h := newHarness(t, KeepBookings)
	tour := h.createTour(t, types.Kg(100))
	a := h.book(t, alice, tour.ID, types.Kg(25))

	res, err := h.transition(carrier, tour.ID, types.TourCancelled)
	require.NoError(t, err)
	assert.Empty(t, res.Affected)
	assert.Equal(t, types.TourCancelled, res.Tour.Status)
	assert.Equal(t, types.BookingPending, h.booking(t, a.ID).Status)
	assert.Equal(t, types.Kg(75), res.Tour.RemainingCapacity)
}

func TestCancelCancelsBookings(t *testing.T) {
	h := newHarness(t, CancelBookings)
	tour := h.createTour(t, types.Kg(100))
	a := h.book(t, alice, tour.ID, types.Kg(25))
	b := h.book(t, bob, tour.ID, types.Kg(15))
	h.setStatus(t, bob, b.ID, types.BookingCancelled)

	res, err := h.transition(carrier, tour.ID, types.TourCancelled)
	require.NoError(t, err)
	require.Len(t, res.Affected, 1)
	assert.Equal(t, a.ID, res.Affected[0].ID)
	assert.Equal(t, types.BookingCancelled, h.booking(t, a.ID).Status)
	assert.Equal(t, types.Kg(100), res.Tour.RemainingCapacity)
}

func TestOverride(t *testing.T) {
	h := newHarness(t, KeepBookings)
	ctx := context.Background()
	tour := h.createTour(t, types.Kg(100))
	a := h.book(t, alice, tour.ID, types.Kg(10))
	_, err := h.transition(carrier, tour.ID, types.TourCollecting)
	require.NoError(t, err)
	h.setStatus(t, carrier, a.ID, types.BookingCollected)
	_, err = h.transition(carrier, tour.ID, types.TourInTransit)
	require.NoError(t, err)

	override := func(actor types.Actor, target types.TourStatus) (*TransitionResult, error) {
		return h.tours.RequestTransition(ctx, actor, TransitionCommand{TourID: tour.ID, Target: target, Override: true})
	}

	_, err = override(carrier, types.TourCollecting)
	assert.ErrorIs(t, err, types.ErrForbidden)

	_, err = override(admin, types.TourPlanned)
	assert.ErrorIs(t, err, types.ErrIllegalTransition, "override may only step back one phase")

	res, err := override(admin, types.TourCollecting)
	require.NoError(t, err)
	assert.Equal(t, types.TourCollecting, res.Tour.Status)
	assert.Equal(t, types.BookingInTransit, h.booking(t, a.ID).Status, "override does not cascade")

	events := h.store.Events()
	last := events[len(events)-1]
	assert.Equal(t, types.EntityTour, last.Entity)
	assert.Equal(t, admin.UserID, last.ActorID)
	assert.Equal(t, string(types.TourInTransit), last.FromStatus)
}

func TestTransitionWritesAuditTrail(t *testing.T) {
	h := newHarness(t, KeepBookings)
	tour := h.createTour(t, types.Kg(100))
	a := h.book(t, alice, tour.ID, types.Kg(10))

	_, err := h.transition(carrier, tour.ID, types.TourCollecting)
	require.NoError(t, err)
	h.setStatus(t, carrier, a.ID, types.BookingCollected)
	_, err = h.transition(carrier, tour.ID, types.TourInTransit)
	require.NoError(t, err)

	var tourEvents, bookingEvents int
	for _, e := range h.store.Events() {
		switch e.Entity {
		case types.EntityTour:
			tourEvents++
		case types.EntityBooking:
			bookingEvents++
		}
	}
	// create + two transitions
	assert.Equal(t, 3, tourEvents)
	// create + collected + cascade to in_transit
	assert.Equal(t, 3, bookingEvents)
}

// TestConcurrentTransitions races the same transition; exactly one caller
// changes the tour and the rest see a no-op.
func TestConcurrentTransitions(t *testing.T) {
	h := newHarness(t, KeepBookings)
	tour := h.createTour(t, types.Kg(100))

	const workers = 8
	start := make(chan struct{})
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		moved int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := h.transition(carrier, tour.ID, types.TourCollecting)
			if !assert.NoError(t, err) {
				return
			}
			if !res.NoOp {
				mu.Lock()
				moved++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, moved)
	assert.Equal(t, 1, h.tour(t, tour.ID).StatusVersion)
}

func TestListByCarrier(t *testing.T) {
	h := newHarness(t, KeepBookings)
	h.createTour(t, types.Kg(10))
	h.createTour(t, types.Kg(20))
	_, err := h.tours.Create(context.Background(), rival, CreateCommand{
		DepartureCountry: "A", DestinationCountry: "B", DepartureDate: time.Now(), TotalCapacity: types.Kg(5),
	})
	require.NoError(t, err)

	tours, err := h.tours.ListByCarrier(context.Background(), carrier)
	require.NoError(t, err)
	assert.Len(t, tours, 2)

	_, err = h.tours.ListByCarrier(context.Background(), alice)
	assert.ErrorIs(t, err, types.ErrForbidden)

	err = h.store.Do(context.Background(), func(ctx context.Context, tx store.Tx) error {
		list, err := tx.ListToursByCarrier(ctx, rival.UserID)
		assert.Len(t, list, 1)
		return err
	})
	require.NoError(t, err)
}

func TestPrivateToursHiddenFromOtherUsers(t *testing.T) {
	h := newHarness(t, KeepBookings)
	ctx := context.Background()
	private, err := h.tours.Create(ctx, carrier, CreateCommand{
		DepartureCountry:   "France",
		DestinationCountry: "Mali",
		DepartureDate:      time.Now().Add(72 * time.Hour),
		Visibility:         types.VisibilityPrivate,
		TotalCapacity:      types.Kg(10),
	})
	require.NoError(t, err)
	public := h.createTour(t, types.Kg(10))

	for _, actor := range []types.Actor{carrier, admin} {
		got, err := h.tours.Get(ctx, actor, private.ID)
		require.NoError(t, err, actor.UserID)
		assert.Equal(t, types.VisibilityPrivate, got.Visibility)
	}
	for _, actor := range []types.Actor{alice, rival, {}} {
		_, err := h.tours.Get(ctx, actor, private.ID)
		assert.ErrorIs(t, err, types.ErrNotFound, actor.UserID)
	}

	got, err := h.tours.Get(ctx, alice, public.ID)
	require.NoError(t, err)
	assert.Equal(t, types.VisibilityPublic, got.Visibility)
}

type stubResolver map[string]string

func (r stubResolver) ResolveAddress(_ context.Context, q string) (string, error) {
	if a, ok := r[q]; ok {
		return a, nil
	}
	return "", errors.New("zero results")
}

func TestCreateResolvesMissingAddresses(t *testing.T) {
	st := memory.New()
	ledger := capacity.NewLedger(st, nil)
	svc := NewService(Deps{
		UoW:       st,
		Projector: booking.NewProjector(ledger, nil),
		Resolver:  stubResolver{"Gare de Lille": "Place des Buisses, 59000 Lille"},
	})

	tour, err := svc.Create(context.Background(), carrier, CreateCommand{
		DepartureCountry:   "France",
		DestinationCountry: "Guinée",
		DepartureDate:      time.Now().Add(24 * time.Hour),
		TotalCapacity:      types.Kg(40),
		Route: []types.CollectionPoint{
			{Name: "Gare de Lille", Type: types.PointPickup},
			{Name: "Entrepôt", Address: "12 rue du Port", Type: types.PointPickup},
			{Name: "Conakry", Type: types.PointDropoff},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Place des Buisses, 59000 Lille", tour.Route[0].Address)
	assert.Equal(t, "12 rue du Port", tour.Route[1].Address)
	assert.Empty(t, tour.Route[2].Address, "lookup failures leave the address empty")
}
