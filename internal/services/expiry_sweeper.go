package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sawaari/driveshare-backend/internal/database"
	"github.com/sawaari/driveshare-backend/internal/models"
)

// ExpirySweeper cancels pending bookings whose payment window has lapsed and
// gives their seats back to the trip. It has no timer of its own: reservation
// paths call SweepTrip inline, listings and the cron job call SweepAll.
type ExpirySweeper struct {
	store  database.ReservationStore
	events EventPublisher
	now    func() time.Time
	logger *logrus.Logger
}

// NewExpirySweeper creates a new expiry sweeper
func NewExpirySweeper(
	store database.ReservationStore,
	events EventPublisher,
	now func() time.Time,
	logger *logrus.Logger,
) *ExpirySweeper {
	if events == nil {
		events = NopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	return &ExpirySweeper{
		store:  store,
		events: events,
		now:    now,
		logger: logger,
	}
}

// SweepTrip expires lapsed holds on one trip. Sweeping twice in a row changes nothing the second time.
func (s *ExpirySweeper) SweepTrip(ctx context.Context, tripID uuid.UUID) (models.SweepResult, error) {
	now := s.now()

	var (
		result models.SweepResult
		events []models.SeatEvent
	)
	err := s.store.WithTx(ctx, func(tx database.ReservationTx) error {
		result, events = models.SweepResult{}, nil

		trip, err := tx.LockTrip(ctx, tripID)
		if err != nil {
			return err
		}

		lapsed, err := tx.LapsedPendingBookings(ctx, tripID, now)
		if err != nil {
			return err
		}

		available, status := trip.AvailableSeats, trip.Status
		for _, booking := range lapsed {
			// Conditional on pending: a confirm that committed first wins.
			cancelled, err := tx.CancelBooking(ctx, booking.ID, models.CancelReasonExpired, now, models.BookingStatusPending)
			if err != nil {
				return err
			}
			if !cancelled {
				continue
			}
			if err := tx.ReleaseSeats(ctx, tripID, booking.SeatsBooked); err != nil {
				return err
			}

			available += booking.SeatsBooked
			if status == models.TripStatusFull {
				status = models.TripStatusOpen
			}
			result.Expired = append(result.Expired, booking.ID)
			result.SeatsReleased += booking.SeatsBooked
			events = append(events, newSeatEvent(models.EventBookingExpired, &booking, available, status, now))
		}
		result.TripsSwept = 1
		return nil
	})
	if err != nil {
		return models.SweepResult{}, err
	}

	if len(result.Expired) > 0 {
		s.logger.WithFields(logrus.Fields{
			"trip_id":        tripID,
			"expired":        len(result.Expired),
			"seats_released": result.SeatsReleased,
		}).Info("Expired lapsed seat holds")
		publishAll(ctx, s.events, events)
	}

	return result, nil
}

// SweepAll completes trips whose date has passed, then sweeps every trip holding a lapsed booking
func (s *ExpirySweeper) SweepAll(ctx context.Context) (models.SweepResult, error) {
	now := s.now()
	var result models.SweepResult

	completed, err := s.CompletePastTrips(ctx)
	if err != nil {
		return result, err
	}
	result.TripsCompleted = completed

	tripIDs, err := s.store.TripsWithLapsedHolds(ctx, now)
	if err != nil {
		return result, err
	}

	for _, tripID := range tripIDs {
		tripResult, err := s.SweepTrip(ctx, tripID)
		if err != nil {
			s.logger.WithError(err).WithField("trip_id", tripID).Error("Failed to sweep trip")
			continue
		}
		result.Merge(tripResult)
	}

	return result, nil
}

// CompletePastTrips marks bookable trips dated before today as Completed
func (s *ExpirySweeper) CompletePastTrips(ctx context.Context) (int64, error) {
	completed, err := s.store.CompletePastTrips(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if completed > 0 {
		s.logger.WithField("count", completed).Info("Marked past trips as completed")
	}
	return completed, nil
}

func newSeatEvent(eventType models.SeatEventType, booking *models.Booking, available int, status models.TripStatus, at time.Time) models.SeatEvent {
	bookingID, riderID := booking.ID, booking.RiderID
	return models.SeatEvent{
		ID:             uuid.New(),
		Type:           eventType,
		TripID:         booking.TripID,
		BookingID:      &bookingID,
		RiderID:        &riderID,
		Seats:          booking.SeatsBooked,
		AvailableSeats: available,
		TripStatus:     status,
		OccurredAt:     at,
	}
}
