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

// ============================================================================
// INVENTORY LEDGER
//
// The only code that writes trips.available_seats or trips.status. Every
// adjustment is a single conditional UPDATE whose affected-row count decides
// the outcome, so concurrent callers can never oversubscribe a trip.
// ============================================================================

const tripColumns = `id, owner_id, source, destination, trip_date, trip_time, capacity,
	available_seats, price_per_seat, status, pink_mode, created_at, updated_at`

// TripLedger holds the seat-count primitives. It is stateless; callers pass the
// handle (a *sqlx.DB or a *sqlx.Tx) the statement should run on.
type TripLedger struct{}

// GetTrip reads a trip without locking it
func (TripLedger) GetTrip(ctx context.Context, q sqlx.ExtContext, tripID uuid.UUID) (*models.Trip, error) {
	return getTrip(ctx, q, `SELECT `+tripColumns+` FROM trips WHERE id = ?`, tripID)
}

// LockTrip reads a trip and holds its row lock until the transaction ends
func (TripLedger) LockTrip(ctx context.Context, q sqlx.ExtContext, tripID uuid.UUID) (*models.Trip, error) {
	return getTrip(ctx, q, `SELECT `+tripColumns+` FROM trips WHERE id = ? FOR UPDATE`, tripID)
}

func getTrip(ctx context.Context, q sqlx.ExtContext, query string, tripID uuid.UUID) (*models.Trip, error) {
	var trip models.Trip
	err := sqlx.GetContext(ctx, q, &trip, q.Rebind(query), tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewReservationError(models.KindNotFound, "trip %s not found", tripID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trip: %w", err)
	}
	return &trip, nil
}

// ReserveSeats subtracts n seats if at least n are available and the trip still
// accepts bookings, flipping the trip to Full when the count reaches zero.
// Status is assigned before the seat count so both MySQL and PostgreSQL evaluate
// the CASE against the pre-update value.
func (TripLedger) ReserveSeats(ctx context.Context, q sqlx.ExtContext, tripID uuid.UUID, n int) error {
	if n < 1 {
		return models.NewReservationError(models.KindInvalidRequest, "seats must be at least 1")
	}

	query := q.Rebind(`
		UPDATE trips
		SET status = CASE WHEN available_seats - ? <= 0 THEN 'Full' ELSE status END,
		    available_seats = available_seats - ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND available_seats >= ? AND status IN ('Open', 'Full')`)

	result, err := q.ExecContext(ctx, query, n, n, tripID, n)
	if err != nil {
		return fmt.Errorf("failed to reserve seats: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	return classifyRejectedReservation(ctx, q, tripID, n)
}

// classifyRejectedReservation explains why the conditional update matched no row
func classifyRejectedReservation(ctx context.Context, q sqlx.ExtContext, tripID uuid.UUID, n int) error {
	var state struct {
		Status         models.TripStatus `db:"status"`
		AvailableSeats int               `db:"available_seats"`
	}
	err := sqlx.GetContext(ctx, q, &state, q.Rebind(`SELECT status, available_seats FROM trips WHERE id = ?`), tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewReservationError(models.KindNotFound, "trip %s not found", tripID)
	}
	if err != nil {
		return fmt.Errorf("failed to read trip after rejected reservation: %w", err)
	}

	if !state.Status.AcceptsBookings() {
		return models.NewReservationError(models.KindTripUnavailable, "trip is %s", state.Status)
	}
	return models.NewReservationError(models.KindInsufficientSeats,
		"requested %d seat(s), only %d available", n, state.AvailableSeats)
}

// ReleaseSeats adds n seats back and reopens a Full trip. Releasing beyond the
// trip's capacity is a bookkeeping bug and is reported as an internal error.
func (TripLedger) ReleaseSeats(ctx context.Context, q sqlx.ExtContext, tripID uuid.UUID, n int) error {
	if n < 1 {
		return nil
	}

	query := q.Rebind(`
		UPDATE trips
		SET status = CASE WHEN status = 'Full' THEN 'Open' ELSE status END,
		    available_seats = available_seats + ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND available_seats + ? <= capacity`)

	result, err := q.ExecContext(ctx, query, n, tripID, n)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows != 1 {
		return fmt.Errorf("ledger: releasing %d seat(s) on trip %s would exceed capacity", n, tripID)
	}
	return nil
}

// MarkCancelled stops a trip from accepting bookings
func (TripLedger) MarkCancelled(ctx context.Context, q sqlx.ExtContext, tripID uuid.UUID) error {
	result, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE trips
		SET status = 'Cancelled', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('Open', 'Full')`), tripID)
	if err != nil {
		return fmt.Errorf("failed to cancel trip: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.NewReservationError(models.KindInvalidState, "trip %s can no longer be cancelled", tripID)
	}
	return nil
}

// CompletePastTrips marks every bookable trip dated before today as Completed
func (TripLedger) CompletePastTrips(ctx context.Context, q sqlx.ExtContext, today time.Time) (int64, error) {
	result, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE trips
		SET status = 'Completed', updated_at = CURRENT_TIMESTAMP
		WHERE trip_date < ? AND status IN ('Open', 'Full')`), today.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("failed to complete past trips: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// CheckConsistency recomputes available seats from the active bookings and compares
func (l TripLedger) CheckConsistency(ctx context.Context, q sqlx.ExtContext, tripID uuid.UUID) (*models.ConsistencyReport, error) {
	trip, err := l.GetTrip(ctx, q, tripID)
	if err != nil {
		return nil, err
	}

	var held int
	err = sqlx.GetContext(ctx, q, &held, q.Rebind(`
		SELECT COALESCE(SUM(seats_booked), 0)
		FROM bookings
		WHERE trip_id = ? AND status IN ('pending', 'confirmed')`), tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum held seats: %w", err)
	}

	report := &models.ConsistencyReport{
		TripID:            trip.ID,
		Capacity:          trip.Capacity,
		AvailableSeats:    trip.AvailableSeats,
		HeldSeats:         held,
		ExpectedAvailable: trip.Capacity - held,
		Status:            trip.Status,
	}
	report.ExpectedStatus = models.ExpectedStatus(trip.Status, report.ExpectedAvailable)
	report.Consistent = report.AvailableSeats == report.ExpectedAvailable && report.Status == report.ExpectedStatus
	return report, nil
}
