package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sawaari/driveshare-backend/internal/models"
)

const bookingColumns = `id, trip_id, rider_id, seats_booked, status, expires_at,
	cancel_reason, created_at, updated_at, cancelled_at`

// ReservationRepository handles trip, booking and payment persistence
type ReservationRepository struct {
	db     *sqlx.DB
	ledger TripLedger
}

// NewReservationRepository creates a new ReservationRepository
func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// WithTx runs fn inside a database transaction
func (r *ReservationRepository) WithTx(ctx context.Context, fn func(tx ReservationTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&reservationTx{tx: tx, ledger: r.ledger}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ============================================================================
// READS
// ============================================================================

// GetTrip retrieves a trip by ID
func (r *ReservationRepository) GetTrip(ctx context.Context, tripID uuid.UUID) (*models.Trip, error) {
	return r.ledger.GetTrip(ctx, r.db, tripID)
}

// GetBooking retrieves a booking by ID without locking it
func (r *ReservationRepository) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	return getBooking(ctx, r.db, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, bookingID)
}

// GetPayment retrieves the most recent payment recorded for a booking
func (r *ReservationRepository) GetPayment(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.GetContext(ctx, &payment, r.db.Rebind(`
		SELECT id, booking_id, amount, mode, reference, status, paid_at, refunded_at
		FROM payments
		WHERE booking_id = ?
		ORDER BY paid_at DESC
		LIMIT 1`), bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewReservationError(models.KindNotFound, "no payment recorded for booking %s", bookingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment: %w", err)
	}
	return &payment, nil
}

// ListBookableTrips returns every Open or Full trip in departure order
func (r *ReservationRepository) ListBookableTrips(ctx context.Context) ([]models.Trip, error) {
	trips := []models.Trip{}
	err := r.db.SelectContext(ctx, &trips, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE status IN ('Open', 'Full')
		ORDER BY trip_date, trip_time`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	return trips, nil
}

// ListTripBookings returns every booking on a trip, newest first
func (r *ReservationRepository) ListTripBookings(ctx context.Context, tripID uuid.UUID) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := r.db.SelectContext(ctx, &bookings, r.db.Rebind(`
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE trip_id = ?
		ORDER BY created_at DESC`), tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trip bookings: %w", err)
	}
	return bookings, nil
}

const bookingWithTripQuery = `
	SELECT b.id, b.trip_id, b.rider_id, b.seats_booked, b.status, b.expires_at,
	       b.cancel_reason, b.created_at, b.updated_at, b.cancelled_at,
	       t.source, t.destination, t.trip_date, t.trip_time, t.price_per_seat,
	       t.status AS trip_status, t.owner_id
	FROM bookings b
	JOIN trips t ON t.id = b.trip_id`

// ListRiderBookings returns a rider's bookings with their trip details
func (r *ReservationRepository) ListRiderBookings(ctx context.Context, riderID uuid.UUID) ([]models.BookingWithTrip, error) {
	bookings := []models.BookingWithTrip{}
	err := r.db.SelectContext(ctx, &bookings, r.db.Rebind(bookingWithTripQuery+`
	WHERE b.rider_id = ?
	ORDER BY b.created_at DESC`), riderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rider bookings: %w", err)
	}
	return bookings, nil
}

// ListOwnerBookings returns the bookings on every trip a driver owns
func (r *ReservationRepository) ListOwnerBookings(ctx context.Context, ownerID uuid.UUID) ([]models.BookingWithTrip, error) {
	bookings := []models.BookingWithTrip{}
	err := r.db.SelectContext(ctx, &bookings, r.db.Rebind(bookingWithTripQuery+`
	WHERE t.owner_id = ?
	ORDER BY t.trip_date, b.created_at DESC`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner bookings: %w", err)
	}
	return bookings, nil
}

// ListOwnerTrips returns a driver's Open or Full trips in departure order
func (r *ReservationRepository) ListOwnerTrips(ctx context.Context, ownerID uuid.UUID) ([]models.Trip, error) {
	trips := []models.Trip{}
	err := r.db.SelectContext(ctx, &trips, r.db.Rebind(`
		SELECT `+tripColumns+`
		FROM trips
		WHERE owner_id = ? AND status IN ('Open', 'Full')
		ORDER BY trip_date, trip_time`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner trips: %w", err)
	}
	return trips, nil
}

// OwnerEarnings sums the completed (not refunded) payments on a driver's trips
func (r *ReservationRepository) OwnerEarnings(ctx context.Context, ownerID uuid.UUID) (float64, error) {
	var earnings float64
	err := r.db.GetContext(ctx, &earnings, r.db.Rebind(`
		SELECT COALESCE(SUM(p.amount), 0)
		FROM payments p
		JOIN bookings b ON b.id = p.booking_id
		JOIN trips t ON t.id = b.trip_id
		WHERE t.owner_id = ? AND p.status = 'Completed'`), ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum owner earnings: %w", err)
	}
	return earnings, nil
}

// TripsWithLapsedHolds returns the trips that have at least one pending booking past its deadline
func (r *ReservationRepository) TripsWithLapsedHolds(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	tripIDs := []uuid.UUID{}
	err := r.db.SelectContext(ctx, &tripIDs, r.db.Rebind(`
		SELECT DISTINCT trip_id
		FROM bookings
		WHERE status = 'pending' AND expires_at < ?`), now)
	if err != nil {
		return nil, fmt.Errorf("failed to find lapsed holds: %w", err)
	}
	return tripIDs, nil
}

// CompletePastTrips marks trips dated before today as Completed
func (r *ReservationRepository) CompletePastTrips(ctx context.Context, today time.Time) (int64, error) {
	return r.ledger.CompletePastTrips(ctx, r.db, today)
}

// CheckConsistency compares a trip's seat count with its active bookings
func (r *ReservationRepository) CheckConsistency(ctx context.Context, tripID uuid.UUID) (*models.ConsistencyReport, error) {
	return r.ledger.CheckConsistency(ctx, r.db, tripID)
}

// ============================================================================
// TRANSACTIONAL STATEMENTS
// ============================================================================

type reservationTx struct {
	tx     *sqlx.Tx
	ledger TripLedger
}

func (t *reservationTx) LockTrip(ctx context.Context, tripID uuid.UUID) (*models.Trip, error) {
	return t.ledger.LockTrip(ctx, t.tx, tripID)
}

func (t *reservationTx) ReserveSeats(ctx context.Context, tripID uuid.UUID, n int) error {
	return t.ledger.ReserveSeats(ctx, t.tx, tripID, n)
}

func (t *reservationTx) ReleaseSeats(ctx context.Context, tripID uuid.UUID, n int) error {
	return t.ledger.ReleaseSeats(ctx, t.tx, tripID, n)
}

func (t *reservationTx) MarkTripCancelled(ctx context.Context, tripID uuid.UUID) error {
	return t.ledger.MarkCancelled(ctx, t.tx, tripID)
}

func (t *reservationTx) FindActiveBooking(ctx context.Context, tripID, riderID uuid.UUID) (*models.Booking, error) {
	booking, err := getBooking(ctx, t.tx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE trip_id = ? AND rider_id = ? AND status IN ('pending', 'confirmed')
		LIMIT 1`, tripID, riderID)
	if models.KindOf(err) == models.KindNotFound {
		return nil, nil
	}
	return booking, err
}

func (t *reservationTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	return insertBooking(ctx, t.tx, booking)
}

func (t *reservationTx) LockBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	return getBooking(ctx, t.tx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, bookingID)
}

func (t *reservationTx) ConfirmPendingBooking(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	result, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE bookings
		SET status = 'confirmed', expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'`), bookingID)
	if err != nil {
		return false, fmt.Errorf("failed to confirm booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (t *reservationTx) CancelBooking(ctx context.Context, bookingID uuid.UUID, reason string, at time.Time, from ...models.BookingStatus) (bool, error) {
	return cancelBooking(ctx, t.tx, bookingID, reason, at, from...)
}

func (t *reservationTx) LapsedPendingBookings(ctx context.Context, tripID uuid.UUID, now time.Time) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := t.tx.SelectContext(ctx, &bookings, t.tx.Rebind(`
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE trip_id = ? AND status = 'pending' AND expires_at < ?
		ORDER BY expires_at
		FOR UPDATE`), tripID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find lapsed bookings: %w", err)
	}
	return bookings, nil
}

func (t *reservationTx) ActiveBookings(ctx context.Context, tripID uuid.UUID) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := t.tx.SelectContext(ctx, &bookings, t.tx.Rebind(`
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE trip_id = ? AND status IN ('pending', 'confirmed')
		FOR UPDATE`), tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active bookings: %w", err)
	}
	return bookings, nil
}

func (t *reservationTx) InsertPayment(ctx context.Context, payment *models.Payment) error {
	_, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		INSERT INTO payments (id, booking_id, amount, mode, reference, status, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		payment.ID, payment.BookingID, payment.Amount, payment.Mode,
		payment.Reference, payment.Status, payment.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}
	return nil
}

func (t *reservationTx) RefundPayments(ctx context.Context, bookingID uuid.UUID, at time.Time) (int64, error) {
	result, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE payments
		SET status = 'Refunded', refunded_at = ?
		WHERE booking_id = ? AND status = 'Completed'`), at, bookingID)
	if err != nil {
		return 0, fmt.Errorf("failed to refund payments: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// ============================================================================
// SHARED BOOKING STATEMENTS
// ============================================================================

func getBooking(ctx context.Context, q sqlx.ExtContext, query string, args ...interface{}) (*models.Booking, error) {
	var booking models.Booking
	err := sqlx.GetContext(ctx, q, &booking, q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewReservationError(models.KindNotFound, "booking not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch booking: %w", err)
	}
	return &booking, nil
}

func insertBooking(ctx context.Context, q sqlx.ExtContext, booking *models.Booking) error {
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO bookings (id, trip_id, rider_id, seats_booked, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		booking.ID, booking.TripID, booking.RiderID, booking.SeatsBooked,
		booking.Status, booking.ExpiresAt, booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// cancelBooking moves a booking to cancelled only if it is still in one of the from states
func cancelBooking(ctx context.Context, q sqlx.ExtContext, bookingID uuid.UUID, reason string, at time.Time, from ...models.BookingStatus) (bool, error) {
	if len(from) == 0 {
		from = []models.BookingStatus{models.BookingStatusPending, models.BookingStatusConfirmed}
	}
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	query, args, err := sqlx.In(`
		UPDATE bookings
		SET status = 'cancelled', expires_at = NULL, cancel_reason = ?, cancelled_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN (?)`, reason, at, bookingID, statuses)
	if err != nil {
		return false, fmt.Errorf("failed to build cancel query: %w", err)
	}

	result, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("failed to cancel booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}
