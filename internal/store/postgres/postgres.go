// README: Postgres unit of work backed by pgxpool; tour and booking rows are locked with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"convoy/internal/store"
	"convoy/internal/types"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

var _ store.UnitOfWork = (*Store)(nil)

// Do opens a transaction, runs fn and commits. Any error from fn, including a
// consistency violation, rolls the whole unit back.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

// routePoint is the JSONB shape of a collection point.
type routePoint struct {
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	ScheduledDate time.Time `json:"scheduled_date"`
	ScheduledTime string    `json:"scheduled_time"`
	Type          string    `json:"type"`
}

func encodeRoute(route []types.CollectionPoint) ([]byte, error) {
	points := make([]routePoint, len(route))
	for i, p := range route {
		points[i] = routePoint{
			Name:          p.Name,
			Address:       p.Address,
			ScheduledDate: p.ScheduledDate,
			ScheduledTime: p.ScheduledTime,
			Type:          string(p.Type),
		}
	}
	return json.Marshal(points)
}

func decodeRoute(raw []byte) ([]types.CollectionPoint, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var points []routePoint
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, err
	}
	route := make([]types.CollectionPoint, len(points))
	for i, p := range points {
		route[i] = types.CollectionPoint{
			Name:          p.Name,
			Address:       p.Address,
			ScheduledDate: p.ScheduledDate,
			ScheduledTime: p.ScheduledTime,
			Type:          types.PointType(p.Type),
		}
	}
	return route, nil
}

func (t *pgTx) InsertTour(ctx context.Context, tour *types.Tour) error {
	route, err := encodeRoute(tour.Route)
	if err != nil {
		return fmt.Errorf("encode route: %w", err)
	}
	dates := tour.CollectionDates
	if dates == nil {
		dates = []time.Time{}
	}
	err = t.tx.QueryRow(ctx, `
        INSERT INTO tours (
            carrier_id, departure_country, destination_country, departure_date,
            collection_dates, route, visibility, total_capacity, remaining_capacity,
            status, status_version
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id, created_at, updated_at`,
		tour.CarrierID,
		tour.DepartureCountry,
		tour.DestinationCountry,
		tour.DepartureDate,
		dates,
		route,
		string(tour.Visibility),
		int64(tour.TotalCapacity),
		int64(tour.RemainingCapacity),
		string(tour.Status),
		tour.StatusVersion,
	).Scan(&tour.ID, &tour.CreatedAt, &tour.UpdatedAt)
	if err != nil {
		return mapErr("insert tour", err)
	}
	return nil
}

const tourColumns = `
        id, carrier_id, departure_country, destination_country, departure_date,
        collection_dates, route, visibility, total_capacity, remaining_capacity,
        status, status_version, created_at, updated_at`

func scanTour(row pgx.Row) (*types.Tour, error) {
	var (
		t                  types.Tour
		route              []byte
		visibility, status string
		total, remaining   int64
		collectionDates    []time.Time
	)
	err := row.Scan(
		&t.ID, &t.CarrierID, &t.DepartureCountry, &t.DestinationCountry, &t.DepartureDate,
		&collectionDates, &route, &visibility, &total, &remaining,
		&status, &t.StatusVersion, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.CollectionDates = collectionDates
	t.Visibility = types.Visibility(visibility)
	t.Status = types.TourStatus(status)
	t.TotalCapacity = types.Weight(total)
	t.RemainingCapacity = types.Weight(remaining)
	if t.Route, err = decodeRoute(route); err != nil {
		return nil, fmt.Errorf("decode route: %w", err)
	}
	return &t, nil
}

func (t *pgTx) GetTour(ctx context.Context, id int64) (*types.Tour, error) {
	tour, err := scanTour(t.tx.QueryRow(ctx, `SELECT `+tourColumns+` FROM tours WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("get tour", err)
	}
	return tour, nil
}

func (t *pgTx) LockTour(ctx context.Context, id int64) (*types.Tour, error) {
	tour, err := scanTour(t.tx.QueryRow(ctx, `SELECT `+tourColumns+` FROM tours WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapErr("lock tour", err)
	}
	return tour, nil
}

func (t *pgTx) UpdateTourStatus(ctx context.Context, id int64, from, to types.TourStatus, version int) error {
	tag, err := t.tx.Exec(ctx, `
        UPDATE tours
        SET status = $1,
            status_version = status_version + 1,
            updated_at = NOW()
        WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), id, string(from), version,
	)
	if err != nil {
		return mapErr("update tour status", err)
	}
	if tag.RowsAffected() != 1 {
		return types.ErrConflict
	}
	return nil
}

func (t *pgTx) UpdateRemainingCapacity(ctx context.Context, id int64, remaining types.Weight) error {
	tag, err := t.tx.Exec(ctx, `
        UPDATE tours SET remaining_capacity = $1, updated_at = NOW() WHERE id = $2`,
		int64(remaining), id,
	)
	if err != nil {
		return mapErr("update remaining capacity", err)
	}
	if tag.RowsAffected() != 1 {
		return types.ErrNotFound
	}
	return nil
}

func (t *pgTx) ListToursByCarrier(ctx context.Context, carrierID string) ([]types.Tour, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+tourColumns+` FROM tours WHERE carrier_id = $1 ORDER BY departure_date ASC`, carrierID)
	if err != nil {
		return nil, mapErr("list tours", err)
	}
	defer rows.Close()

	var tours []types.Tour
	for rows.Next() {
		tour, err := scanTour(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tour: %w", err)
		}
		tours = append(tours, *tour)
	}
	return tours, rows.Err()
}

func (t *pgTx) InsertBooking(ctx context.Context, b *types.Booking) error {
	err := t.tx.QueryRow(ctx, `
        INSERT INTO bookings (
            tour_id, user_id, pickup_city, delivery_city, pickup_point, weight,
            item_category, item_description, sender_name, sender_phone,
            recipient_name, recipient_phone, tracking_number, status
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        RETURNING id, created_at, updated_at`,
		b.TourID, b.UserID, b.PickupCity, b.DeliveryCity, b.PickupPoint, int64(b.Weight),
		b.ItemCategory, b.ItemDescription, b.Sender.Name, b.Sender.Phone,
		b.Recipient.Name, b.Recipient.Phone, b.TrackingNumber, string(b.Status),
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return mapErr("insert booking", err)
	}
	return nil
}

const bookingColumns = `
        id, tour_id, user_id, pickup_city, delivery_city, pickup_point, weight,
        item_category, item_description, sender_name, sender_phone,
        recipient_name, recipient_phone, tracking_number, status, created_at, updated_at`

func scanBooking(row pgx.Row) (*types.Booking, error) {
	var (
		b      types.Booking
		weight int64
		status string
	)
	err := row.Scan(
		&b.ID, &b.TourID, &b.UserID, &b.PickupCity, &b.DeliveryCity, &b.PickupPoint, &weight,
		&b.ItemCategory, &b.ItemDescription, &b.Sender.Name, &b.Sender.Phone,
		&b.Recipient.Name, &b.Recipient.Phone, &b.TrackingNumber, &status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Weight = types.Weight(weight)
	b.Status = types.BookingStatus(status)
	return &b, nil
}

func (t *pgTx) GetBooking(ctx context.Context, id int64) (*types.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("get booking", err)
	}
	return b, nil
}

func (t *pgTx) LockBooking(ctx context.Context, id int64) (*types.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapErr("lock booking", err)
	}
	return b, nil
}

func (t *pgTx) UpdateBookingStatus(ctx context.Context, id int64, status types.BookingStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
	if err != nil {
		return mapErr("update booking status", err)
	}
	if tag.RowsAffected() != 1 {
		return types.ErrNotFound
	}
	return nil
}

func (t *pgTx) UpdateBookingWeight(ctx context.Context, id int64, w types.Weight) error {
	tag, err := t.tx.Exec(ctx, `UPDATE bookings SET weight = $1, updated_at = NOW() WHERE id = $2`, int64(w), id)
	if err != nil {
		return mapErr("update booking weight", err)
	}
	if tag.RowsAffected() != 1 {
		return types.ErrNotFound
	}
	return nil
}

func (t *pgTx) listBookings(ctx context.Context, where string, arg any) ([]types.Booking, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE `+where+` ORDER BY id ASC`, arg)
	if err != nil {
		return nil, mapErr("list bookings", err)
	}
	defer rows.Close()

	var bookings []types.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func (t *pgTx) ListBookingsByTour(ctx context.Context, tourID int64) ([]types.Booking, error) {
	return t.listBookings(ctx, "tour_id = $1", tourID)
}

func (t *pgTx) ListBookingsByUser(ctx context.Context, userID string) ([]types.Booking, error) {
	return t.listBookings(ctx, "user_id = $1", userID)
}

func (t *pgTx) HasActiveBooking(ctx context.Context, tourID int64, userID string, exclude int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM bookings
            WHERE tour_id = $1
              AND user_id = $2
              AND id <> $3
              AND status IN ('pending','confirmed','collected','in_transit')
        )`, tourID, userID, exclude,
	).Scan(&exists)
	if err != nil {
		return false, mapErr("check active booking", err)
	}
	return exists, nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e *types.StateEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	err := t.tx.QueryRow(ctx, `
        INSERT INTO state_events (
            entity, entity_id, from_status, to_status, actor_id, actor_role, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id`,
		e.Entity, e.EntityID, e.FromStatus, e.ToStatus,
		nullString(e.ActorID), nullString(string(e.ActorRole)), e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return mapErr("append event", err)
	}
	return nil
}

// mapErr translates driver errors into the engine taxonomy.
func mapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return types.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if pgErr.ConstraintName == "bookings_active_user_tour_uidx" {
				return types.ErrDuplicateBooking
			}
			return fmt.Errorf("%s: %w: %s", op, types.ErrConflict, pgErr.ConstraintName)
		case pgCheckViolation:
			return fmt.Errorf("%s: %w: %s", op, types.ErrConsistencyViolation, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
