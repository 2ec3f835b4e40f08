// README: In-memory unit of work; serialises transactions and applies staged writes on commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"convoy/internal/store"
	"convoy/internal/types"
)

// Store keeps tours, bookings and events in maps guarded by a single mutex.
// Holding the mutex for the whole unit of work gives the same isolation a
// row lock gives in Postgres: check-then-write sequences cannot interleave.
type Store struct {
	mu sync.Mutex

	tours    map[int64]types.Tour
	bookings map[int64]types.Booking
	events   []types.StateEvent

	nextTourID    int64
	nextBookingID int64
	nextEventID   int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		tours:    make(map[int64]types.Tour),
		bookings: make(map[int64]types.Booking),
		now:      time.Now,
	}
}

var _ store.UnitOfWork = (*Store)(nil)

func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:        s,
		tours:    make(map[int64]types.Tour),
		bookings: make(map[int64]types.Booking),
		tourID:   s.nextTourID,
		bookID:   s.nextBookingID,
		eventID:  s.nextEventID,
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, t := range tx.tours {
		s.tours[id] = t
	}
	for id, b := range tx.bookings {
		s.bookings[id] = b
	}
	s.events = append(s.events, tx.events...)
	s.nextTourID = tx.tourID
	s.nextBookingID = tx.bookID
	s.nextEventID = tx.eventID
	return nil
}

// Events returns a copy of the committed audit trail.
func (s *Store) Events() []types.StateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.StateEvent, len(s.events))
	copy(out, s.events)
	return out
}

type memTx struct {
	s        *Store
	tours    map[int64]types.Tour
	bookings map[int64]types.Booking
	events   []types.StateEvent

	tourID  int64
	bookID  int64
	eventID int64
}

func (tx *memTx) tour(id int64) (types.Tour, bool) {
	if t, ok := tx.tours[id]; ok {
		return t, true
	}
	t, ok := tx.s.tours[id]
	return t, ok
}

func (tx *memTx) booking(id int64) (types.Booking, bool) {
	if b, ok := tx.bookings[id]; ok {
		return b, true
	}
	b, ok := tx.s.bookings[id]
	return b, ok
}

func (tx *memTx) InsertTour(_ context.Context, t *types.Tour) error {
	tx.tourID++
	now := tx.s.now()
	t.ID = tx.tourID
	t.CreatedAt = now
	t.UpdatedAt = now
	tx.tours[t.ID] = cloneTour(*t)
	return nil
}

func (tx *memTx) GetTour(_ context.Context, id int64) (*types.Tour, error) {
	t, ok := tx.tour(id)
	if !ok {
		return nil, types.ErrNotFound
	}
	c := cloneTour(t)
	return &c, nil
}

func (tx *memTx) LockTour(ctx context.Context, id int64) (*types.Tour, error) {
	return tx.GetTour(ctx, id)
}

func (tx *memTx) UpdateTourStatus(_ context.Context, id int64, from, to types.TourStatus, version int) error {
	t, ok := tx.tour(id)
	if !ok {
		return types.ErrNotFound
	}
	if t.Status != from || t.StatusVersion != version {
		return types.ErrConflict
	}
	t.Status = to
	t.StatusVersion++
	t.UpdatedAt = tx.s.now()
	tx.tours[id] = t
	return nil
}

func (tx *memTx) UpdateRemainingCapacity(_ context.Context, id int64, remaining types.Weight) error {
	t, ok := tx.tour(id)
	if !ok {
		return types.ErrNotFound
	}
	// Mirrors the CHECK constraint on tours.remaining_capacity.
	if remaining < 0 || remaining > t.TotalCapacity {
		return types.ErrConsistencyViolation
	}
	t.RemainingCapacity = remaining
	t.UpdatedAt = tx.s.now()
	tx.tours[id] = t
	return nil
}

func (tx *memTx) ListToursByCarrier(_ context.Context, carrierID string) ([]types.Tour, error) {
	seen := make(map[int64]bool)
	var out []types.Tour
	collect := func(t types.Tour) {
		if seen[t.ID] || t.CarrierID != carrierID {
			return
		}
		seen[t.ID] = true
		out = append(out, cloneTour(t))
	}
	for _, t := range tx.tours {
		collect(t)
	}
	for _, t := range tx.s.tours {
		if _, staged := tx.tours[t.ID]; !staged {
			collect(t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureDate.Before(out[j].DepartureDate) })
	return out, nil
}

func (tx *memTx) InsertBooking(_ context.Context, b *types.Booking) error {
	if _, ok := tx.tour(b.TourID); !ok {
		return types.ErrNotFound
	}
	tx.bookID++
	now := tx.s.now()
	b.ID = tx.bookID
	b.CreatedAt = now
	b.UpdatedAt = now
	tx.bookings[b.ID] = *b
	return nil
}

func (tx *memTx) GetBooking(_ context.Context, id int64) (*types.Booking, error) {
	b, ok := tx.booking(id)
	if !ok {
		return nil, types.ErrNotFound
	}
	return &b, nil
}

func (tx *memTx) LockBooking(ctx context.Context, id int64) (*types.Booking, error) {
	return tx.GetBooking(ctx, id)
}

func (tx *memTx) UpdateBookingStatus(_ context.Context, id int64, status types.BookingStatus) error {
	b, ok := tx.booking(id)
	if !ok {
		return types.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = tx.s.now()
	tx.bookings[id] = b
	return nil
}

func (tx *memTx) UpdateBookingWeight(_ context.Context, id int64, w types.Weight) error {
	b, ok := tx.booking(id)
	if !ok {
		return types.ErrNotFound
	}
	b.Weight = w
	b.UpdatedAt = tx.s.now()
	tx.bookings[id] = b
	return nil
}

func (tx *memTx) listBookings(match func(types.Booking) bool) []types.Booking {
	var out []types.Booking
	for _, b := range tx.bookings {
		if match(b) {
			out = append(out, b)
		}
	}
	for id, b := range tx.s.bookings {
		if _, staged := tx.bookings[id]; staged {
			continue
		}
		if match(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (tx *memTx) ListBookingsByTour(_ context.Context, tourID int64) ([]types.Booking, error) {
	return tx.listBookings(func(b types.Booking) bool { return b.TourID == tourID }), nil
}

func (tx *memTx) ListBookingsByUser(_ context.Context, userID string) ([]types.Booking, error) {
	return tx.listBookings(func(b types.Booking) bool { return b.UserID == userID }), nil
}

func (tx *memTx) HasActiveBooking(_ context.Context, tourID int64, userID string, exclude int64) (bool, error) {
	found := tx.listBookings(func(b types.Booking) bool {
		return b.TourID == tourID && b.UserID == userID && b.ID != exclude && b.Status.Active()
	})
	return len(found) > 0, nil
}

func (tx *memTx) AppendEvent(_ context.Context, e *types.StateEvent) error {
	tx.eventID++
	e.ID = tx.eventID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = tx.s.now()
	}
	tx.events = append(tx.events, *e)
	return nil
}

func cloneTour(t types.Tour) types.Tour {
	t.Route = append([]types.CollectionPoint(nil), t.Route...)
	t.CollectionDates = append([]time.Time(nil), t.CollectionDates...)
	return t
}
