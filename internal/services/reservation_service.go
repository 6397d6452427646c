package services

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sawaari/driveshare-backend/internal/database"
	"github.com/sawaari/driveshare-backend/internal/models"
)

// ReservationConfig holds configuration for the reservation service
type ReservationConfig struct {
	PaymentWindow time.Duration    // How long a pending booking holds its seats (default 30s)
	Currency      string           // Currency shown on reservations and receipts (default INR)
	Now           func() time.Time // Clock, replaced in tests
}

// DefaultReservationConfig returns default configuration
func DefaultReservationConfig() ReservationConfig {
	return ReservationConfig{
		PaymentWindow: 30 * time.Second,
		Currency:      "INR",
		Now:           time.Now,
	}
}

// Scope selects what SweepAndList sweeps and returns. Filter only applies to
// the all-trips scope.
type Scope struct {
	TripID uuid.UUID
	Filter models.TripFilter
}

// ScopeAll covers every bookable trip
var ScopeAll = Scope{}

// ScopeSearch covers every bookable trip that passes the filter
func ScopeSearch(filter models.TripFilter) Scope {
	return Scope{Filter: filter}
}

// ScopeTrip covers a single trip
func ScopeTrip(tripID uuid.UUID) Scope {
	return Scope{TripID: tripID}
}

// IsAll reports whether the scope covers every trip
func (s Scope) IsAll() bool {
	return s.TripID == uuid.Nil
}

// ReservationService runs the booking state machine on top of the trip ledger:
// pending -> confirmed, pending -> cancelled and confirmed -> cancelled.
type ReservationService struct {
	store   database.ReservationStore
	sweeper *ExpirySweeper
	policy  AccessPolicy
	events  EventPublisher
	config  ReservationConfig
	logger  *logrus.Logger
}

// NewReservationService creates a new reservation service
func NewReservationService(
	store database.ReservationStore,
	sweeper *ExpirySweeper,
	policy AccessPolicy,
	events EventPublisher,
	config ReservationConfig,
	logger *logrus.Logger,
) *ReservationService {
	if policy == nil {
		policy = DefaultAccessPolicy{}
	}
	if events == nil {
		events = NopPublisher{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &ReservationService{
		store:   store,
		sweeper: sweeper,
		policy:  policy,
		events:  events,
		config:  config,
		logger:  logger,
	}
}

// ============================================================================
// RESERVE
// ============================================================================

// CreateBooking holds seats for a rider until the payment window closes
func (s *ReservationService) CreateBooking(
	ctx context.Context,
	tripID uuid.UUID,
	rider models.Actor,
	seats int,
) (*models.ReservationResponse, error) {
	if seats < 1 {
		return nil, models.NewReservationError(models.KindInvalidRequest, "seats must be at least 1")
	}

	// 1. Release stale holds before looking at capacity
	if _, err := s.sweeper.SweepTrip(ctx, tripID); err != nil {
		return nil, err
	}

	var (
		booking *models.Booking
		trip    *models.Trip
	)
	err := s.store.WithTx(ctx, func(tx database.ReservationTx) error {
		var err error

		// 2. Lock the trip so the checks below hold until commit
		trip, err = tx.LockTrip(ctx, tripID)
		if err != nil {
			return err
		}

		// 3. One live booking per rider per trip
		existing, err := tx.FindActiveBooking(ctx, tripID, rider.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return models.ErrDuplicateBooking
		}

		// 4. Role, ownership and pink mode
		if err := s.policy.CanReserve(rider, trip); err != nil {
			return err
		}

		// 5. Conditional seat deduction
		if err := tx.ReserveSeats(ctx, tripID, seats); err != nil {
			return err
		}

		// 6. Pending booking with deadline
		now := s.config.Now()
		expiresAt := now.Add(s.config.PaymentWindow)
		booking = &models.Booking{
			ID:          uuid.New(),
			TripID:      tripID,
			RiderID:     rider.UserID,
			SeatsBooked: seats,
			Status:      models.BookingStatusPending,
			ExpiresAt:   &expiresAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return tx.InsertBooking(ctx, booking)
	})
	if err != nil {
		return nil, err
	}

	available := trip.AvailableSeats - seats
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"trip_id":    tripID,
		"rider_id":   rider.UserID,
		"seats":      seats,
		"expires_at": booking.ExpiresAt,
	}).Info("Seats held pending payment")

	s.events.Publish(ctx, newSeatEvent(models.EventBookingReserved, booking, available,
		models.ExpectedStatus(trip.Status, available), booking.CreatedAt))

	return &models.ReservationResponse{
		BookingID:        booking.ID,
		TripID:           tripID,
		Status:           booking.Status,
		SeatsBooked:      seats,
		Deadline:         *booking.ExpiresAt,
		ExpiresInSeconds: int(s.config.PaymentWindow.Seconds()),
		TotalAmount:      totalAmount(seats, trip.PricePerSeat),
		Currency:         s.config.Currency,
	}, nil
}

// ============================================================================
// CONFIRM
// ============================================================================

// ConfirmBooking records the payment for a pending booking. A booking whose
// window has lapsed is swept and BookingExpired is returned.
func (s *ReservationService) ConfirmBooking(
	ctx context.Context,
	bookingID uuid.UUID,
	riderID uuid.UUID,
	details models.PaymentDetails,
) (*models.ConfirmationResponse, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.RiderID != riderID {
		return nil, models.NewReservationError(models.KindNotFound, "booking not found")
	}

	trip, err := s.store.GetTrip(ctx, booking.TripID)
	if err != nil {
		return nil, err
	}

	var (
		payment *models.Payment
		lapsed  bool
	)
	now := s.config.Now()
	err = s.store.WithTx(ctx, func(tx database.ReservationTx) error {
		payment, lapsed = nil, false

		locked, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}

		switch {
		case locked.WasExpired():
			return models.ErrBookingExpired
		case locked.Status != models.BookingStatusPending:
			return models.NewReservationError(models.KindInvalidState, "booking is %s", locked.Status)
		case locked.Lapsed(now):
			lapsed = true
			return models.ErrBookingExpired
		}

		confirmed, err := tx.ConfirmPendingBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !confirmed {
			return models.NewReservationError(models.KindInvalidState, "booking is no longer pending")
		}

		payment = newPayment(locked, trip, details, now)
		return tx.InsertPayment(ctx, payment)
	})

	if lapsed {
		if _, sweepErr := s.sweeper.SweepTrip(ctx, booking.TripID); sweepErr != nil {
			s.logger.WithError(sweepErr).WithField("trip_id", booking.TripID).Error("Failed to sweep trip after lapsed confirm")
		}
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"amount":     payment.Amount,
		"mode":       payment.Mode,
	}).Info("Booking confirmed")

	booking.Status = models.BookingStatusConfirmed
	s.events.Publish(ctx, newSeatEvent(models.EventBookingConfirmed, booking, trip.AvailableSeats, trip.Status, now))

	return &models.ConfirmationResponse{
		BookingID: bookingID,
		Status:    models.BookingStatusConfirmed,
		Payment:   payment,
	}, nil
}

func newPayment(booking *models.Booking, trip *models.Trip, details models.PaymentDetails, now time.Time) *models.Payment {
	payment := &models.Payment{
		ID:        uuid.New(),
		BookingID: booking.ID,
		Amount:    details.Amount,
		Mode:      details.Mode,
		Reference: details.Reference,
		Status:    models.PaymentStatusCompleted,
		PaidAt:    now,
	}
	if payment.Amount == 0 {
		payment.Amount = totalAmount(booking.SeatsBooked, trip.PricePerSeat)
	}
	if payment.Mode == "" {
		payment.Mode = models.PaymentModeUPI
	}
	if payment.Reference == "" {
		payment.Reference = "TXN-" + strings.ToUpper(payment.ID.String()[:8])
	}
	return payment
}

// ============================================================================
// CANCEL
// ============================================================================

// CancelBooking cancels a pending or confirmed booking and releases its seats immediately.
// The rider who made the booking and the trip owner may cancel.
func (s *ReservationService) CancelBooking(ctx context.Context, bookingID uuid.UUID, actor models.Actor) error {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	var (
		trip     *models.Trip
		refunded int64
	)
	now := s.config.Now()
	err = s.store.WithTx(ctx, func(tx database.ReservationTx) error {
		var err error
		trip, err = tx.LockTrip(ctx, booking.TripID)
		if err != nil {
			return err
		}

		locked, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}

		var reason string
		switch actor.UserID {
		case locked.RiderID:
			reason = models.CancelReasonRider
		case trip.OwnerID:
			reason = models.CancelReasonOwner
		default:
			return models.NewReservationError(models.KindAccessDenied, "only the rider or the trip owner can cancel this booking")
		}

		if !locked.Status.IsActive() {
			return models.NewReservationError(models.KindInvalidState, "booking is already %s", locked.Status)
		}

		cancelled, err := tx.CancelBooking(ctx, bookingID, reason, now)
		if err != nil {
			return err
		}
		if !cancelled {
			return models.NewReservationError(models.KindInvalidState, "booking is no longer active")
		}

		if err := tx.ReleaseSeats(ctx, trip.ID, locked.SeatsBooked); err != nil {
			return err
		}

		refunded, err = tx.RefundPayments(ctx, bookingID, now)
		if err != nil {
			return err
		}

		booking = locked
		return nil
	})
	if err != nil {
		return err
	}

	available := trip.AvailableSeats + booking.SeatsBooked
	status := trip.Status
	if status == models.TripStatusFull {
		status = models.TripStatusOpen
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":        bookingID,
		"trip_id":           trip.ID,
		"actor_id":          actor.UserID,
		"seats_released":    booking.SeatsBooked,
		"payments_refunded": refunded,
	}).Info("Booking cancelled")

	booking.Status = models.BookingStatusCancelled
	s.events.Publish(ctx, newSeatEvent(models.EventBookingCancelled, booking, available, status, now))
	return nil
}

// CancelTrip cancels every active booking on a trip, refunds their payments and
// stops the trip from taking new bookings. Only the owner or an admin may do this.
func (s *ReservationService) CancelTrip(ctx context.Context, tripID uuid.UUID, actor models.Actor) (*models.TripCancellation, error) {
	var (
		trip   *models.Trip
		result *models.TripCancellation
		events []models.SeatEvent
	)
	now := s.config.Now()
	err := s.store.WithTx(ctx, func(tx database.ReservationTx) error {
		var err error
		result = &models.TripCancellation{TripID: tripID, CancelledBookings: []uuid.UUID{}}
		events = nil

		trip, err = tx.LockTrip(ctx, tripID)
		if err != nil {
			return err
		}
		if trip.OwnerID != actor.UserID && actor.Role != models.RoleAdmin {
			return models.NewReservationError(models.KindAccessDenied, "only the trip owner can cancel this trip")
		}
		if !trip.Status.AcceptsBookings() {
			return models.NewReservationError(models.KindInvalidState, "trip is already %s", trip.Status)
		}

		active, err := tx.ActiveBookings(ctx, tripID)
		if err != nil {
			return err
		}

		available := trip.AvailableSeats
		for _, booking := range active {
			cancelled, err := tx.CancelBooking(ctx, booking.ID, models.CancelReasonTripCancelled, now)
			if err != nil {
				return err
			}
			if !cancelled {
				continue
			}
			if err := tx.ReleaseSeats(ctx, tripID, booking.SeatsBooked); err != nil {
				return err
			}
			refunded, err := tx.RefundPayments(ctx, booking.ID, now)
			if err != nil {
				return err
			}

			available += booking.SeatsBooked
			result.CancelledBookings = append(result.CancelledBookings, booking.ID)
			result.SeatsReleased += booking.SeatsBooked
			result.PaymentsRefunded += refunded

			booking.Status = models.BookingStatusCancelled
			events = append(events, newSeatEvent(models.EventBookingCancelled, &booking, available, models.TripStatusCancelled, now))
		}

		if err := tx.MarkTripCancelled(ctx, tripID); err != nil {
			return err
		}

		events = append(events, models.SeatEvent{
			ID:             uuid.New(),
			Type:           models.EventTripCancelled,
			TripID:         tripID,
			AvailableSeats: available,
			TripStatus:     models.TripStatusCancelled,
			OccurredAt:     now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":            tripID,
		"actor_id":           actor.UserID,
		"bookings_cancelled": len(result.CancelledBookings),
		"seats_released":     result.SeatsReleased,
		"payments_refunded":  result.PaymentsRefunded,
	}).Info("Trip cancelled")

	publishAll(ctx, s.events, events)
	return result, nil
}

// ============================================================================
// LISTINGS
// ============================================================================

// SweepAndList sweeps the scope and returns the current trip and booking state.
// Pink-mode trips are hidden from viewers who may not book them.
func (s *ReservationService) SweepAndList(ctx context.Context, scope Scope, viewer models.Actor) ([]models.TripDetail, error) {
	if scope.IsAll() {
		if _, err := s.sweeper.SweepAll(ctx); err != nil {
			return nil, err
		}

		trips, err := s.store.ListBookableTrips(ctx)
		if err != nil {
			return nil, err
		}

		details := make([]models.TripDetail, 0, len(trips))
		for i := range trips {
			if trips[i].VisibleTo(viewer.UserID, viewer.Gender) && scope.Filter.Matches(&trips[i]) {
				details = append(details, models.TripDetail{Trip: &trips[i]})
			}
		}
		return details, nil
	}

	if _, err := s.sweeper.SweepTrip(ctx, scope.TripID); err != nil {
		return nil, err
	}

	trip, err := s.store.GetTrip(ctx, scope.TripID)
	if err != nil {
		return nil, err
	}
	if !trip.VisibleTo(viewer.UserID, viewer.Gender) && viewer.Role != models.RoleAdmin {
		return nil, models.NewReservationError(models.KindNotFound, "trip %s not found", scope.TripID)
	}

	bookings, err := s.store.ListTripBookings(ctx, scope.TripID)
	if err != nil {
		return nil, err
	}
	if trip.OwnerID != viewer.UserID && viewer.Role != models.RoleAdmin {
		own := bookings[:0]
		for _, b := range bookings {
			if b.RiderID == viewer.UserID {
				own = append(own, b)
			}
		}
		bookings = own
	}

	return []models.TripDetail{{Trip: trip, Bookings: bookings}}, nil
}

// ListRiderBookings returns a rider's bookings after sweeping lapsed holds
func (s *ReservationService) ListRiderBookings(ctx context.Context, riderID uuid.UUID) ([]models.BookingWithTrip, error) {
	if _, err := s.sweeper.SweepAll(ctx); err != nil {
		return nil, err
	}
	return s.store.ListRiderBookings(ctx, riderID)
}

// ListOwnerBookings returns the bookings on a driver's trips after sweeping lapsed holds
func (s *ReservationService) ListOwnerBookings(ctx context.Context, ownerID uuid.UUID) ([]models.BookingWithTrip, error) {
	if _, err := s.sweeper.SweepAll(ctx); err != nil {
		return nil, err
	}
	return s.store.ListOwnerBookings(ctx, ownerID)
}

// DriverStats sweeps every trip, then summarises a driver's earnings and the
// Open or Full trips departing today or later
func (s *ReservationService) DriverStats(ctx context.Context, ownerID uuid.UUID) (*models.DriverStats, error) {
	if _, err := s.sweeper.SweepAll(ctx); err != nil {
		return nil, err
	}

	earnings, err := s.store.OwnerEarnings(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	trips, err := s.store.ListOwnerTrips(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	stats := &models.DriverStats{
		Earnings:      earnings,
		TotalTrips:    len(trips),
		TodaysTrips:   []models.Trip{},
		UpcomingTrips: []models.Trip{},
	}
	today := s.config.Now().Format("2006-01-02")
	for _, t := range trips {
		switch day := t.TripDate.Format("2006-01-02"); {
		case day == today:
			stats.TodaysTrips = append(stats.TodaysTrips, t)
		case day > today:
			stats.UpcomingTrips = append(stats.UpcomingTrips, t)
		}
	}
	return stats, nil
}

// CheckConsistency reports whether a trip's seat count matches its active bookings
func (s *ReservationService) CheckConsistency(ctx context.Context, tripID uuid.UUID) (*models.ConsistencyReport, error) {
	return s.store.CheckConsistency(ctx, tripID)
}

// GetReceipt gathers a confirmed booking with its trip and payment
func (s *ReservationService) GetReceipt(ctx context.Context, bookingID uuid.UUID, viewer models.Actor) (*models.BookingReceipt, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	trip, err := s.store.GetTrip(ctx, booking.TripID)
	if err != nil {
		return nil, err
	}
	if booking.RiderID != viewer.UserID && trip.OwnerID != viewer.UserID && viewer.Role != models.RoleAdmin {
		return nil, models.NewReservationError(models.KindNotFound, "booking not found")
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, models.NewReservationError(models.KindInvalidState, "receipts are only issued for confirmed bookings")
	}

	payment, err := s.store.GetPayment(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	return &models.BookingReceipt{
		Booking:  booking,
		Trip:     trip,
		Payment:  payment,
		Currency: s.config.Currency,
	}, nil
}

func totalAmount(seats int, pricePerSeat float64) float64 {
	return math.Round(float64(seats)*pricePerSeat*100) / 100
}
