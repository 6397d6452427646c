package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sawaari/driveshare-backend/internal/models"
)

// ReservationTx is the set of statements a reservation transaction may run.
// Implementations lock the trip row before touching its bookings.
type ReservationTx interface {
	LockTrip(ctx context.Context, tripID uuid.UUID) (*models.Trip, error)
	ReserveSeats(ctx context.Context, tripID uuid.UUID, n int) error
	ReleaseSeats(ctx context.Context, tripID uuid.UUID, n int) error
	MarkTripCancelled(ctx context.Context, tripID uuid.UUID) error

	FindActiveBooking(ctx context.Context, tripID, riderID uuid.UUID) (*models.Booking, error)
	InsertBooking(ctx context.Context, booking *models.Booking) error
	LockBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	ConfirmPendingBooking(ctx context.Context, bookingID uuid.UUID) (bool, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID, reason string, at time.Time, from ...models.BookingStatus) (bool, error)
	LapsedPendingBookings(ctx context.Context, tripID uuid.UUID, now time.Time) ([]models.Booking, error)
	ActiveBookings(ctx context.Context, tripID uuid.UUID) ([]models.Booking, error)

	InsertPayment(ctx context.Context, payment *models.Payment) error
	RefundPayments(ctx context.Context, bookingID uuid.UUID, at time.Time) (int64, error)
}

// ReservationStore is the storage handle injected into the reservation services
type ReservationStore interface {
	// WithTx runs fn in one transaction, committing only when fn returns nil
	WithTx(ctx context.Context, fn func(tx ReservationTx) error) error

	GetTrip(ctx context.Context, tripID uuid.UUID) (*models.Trip, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	GetPayment(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	ListBookableTrips(ctx context.Context) ([]models.Trip, error)
	ListTripBookings(ctx context.Context, tripID uuid.UUID) ([]models.Booking, error)
	ListRiderBookings(ctx context.Context, riderID uuid.UUID) ([]models.BookingWithTrip, error)
	ListOwnerBookings(ctx context.Context, ownerID uuid.UUID) ([]models.BookingWithTrip, error)
	ListOwnerTrips(ctx context.Context, ownerID uuid.UUID) ([]models.Trip, error)
	OwnerEarnings(ctx context.Context, ownerID uuid.UUID) (float64, error)

	TripsWithLapsedHolds(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	CompletePastTrips(ctx context.Context, today time.Time) (int64, error)
	CheckConsistency(ctx context.Context, tripID uuid.UUID) (*models.ConsistencyReport, error)
}
