package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the state of a rider's seat claim
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// IsActive reports whether the booking still holds seats on its trip
func (s BookingStatus) IsActive() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// Cancel reasons recorded on cancelled bookings
const (
	CancelReasonExpired       = "expired"
	CancelReasonRider         = "rider"
	CancelReasonOwner         = "owner"
	CancelReasonTripCancelled = "trip_cancelled"
)

// Booking represents one rider's claim on N seats of a trip
type Booking struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	TripID       uuid.UUID     `json:"trip_id" db:"trip_id"`
	RiderID      uuid.UUID     `json:"rider_id" db:"rider_id"`
	SeatsBooked  int           `json:"seats_booked" db:"seats_booked"`
	Status       BookingStatus `json:"status" db:"status"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty" db:"expires_at"`
	CancelReason *string       `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
	CancelledAt  *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// Lapsed reports whether a pending booking's payment window closed before now
func (b *Booking) Lapsed(now time.Time) bool {
	return b.Status == BookingStatusPending && b.ExpiresAt != nil && now.After(*b.ExpiresAt)
}

// WasExpired reports whether the booking was cancelled by the sweeper
func (b *Booking) WasExpired() bool {
	return b.Status == BookingStatusCancelled && b.CancelReason != nil && *b.CancelReason == CancelReasonExpired
}

// BookingWithTrip is a booking joined with the trip fields riders and drivers see in their lists
type BookingWithTrip struct {
	Booking
	Source       string     `json:"source" db:"source"`
	Destination  string     `json:"destination" db:"destination"`
	TripDate     time.Time  `json:"trip_date" db:"trip_date"`
	TripTime     string     `json:"trip_time" db:"trip_time"`
	PricePerSeat float64    `json:"price_per_seat" db:"price_per_seat"`
	TripStatus   TripStatus `json:"trip_status" db:"trip_status"`
	OwnerID      uuid.UUID  `json:"owner_id" db:"owner_id"`
}

// PaymentStatus represents the settlement state of a payment record
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "Completed"
	PaymentStatusRefunded  PaymentStatus = "Refunded"
)

// Payment modes accepted on confirmation
const (
	PaymentModeUPI  = "UPI"
	PaymentModeCard = "Card"
	PaymentModeCash = "Cash"
)

// ValidPaymentMode reports whether mode is one of the accepted payment modes
func ValidPaymentMode(mode string) bool {
	switch mode {
	case PaymentModeUPI, PaymentModeCard, PaymentModeCash:
		return true
	}
	return false
}

// Payment is the record of an opaque external payment confirmation
type Payment struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	BookingID  uuid.UUID     `json:"booking_id" db:"booking_id"`
	Amount     float64       `json:"amount" db:"amount"`
	Mode       string        `json:"mode" db:"mode"`
	Reference  string        `json:"reference" db:"reference"`
	Status     PaymentStatus `json:"status" db:"status"`
	PaidAt     time.Time     `json:"paid_at" db:"paid_at"`
	RefundedAt *time.Time    `json:"refunded_at,omitempty" db:"refunded_at"`
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// CreateBookingRequest is the body of POST /bookings
type CreateBookingRequest struct {
	TripID string `json:"trip_id" binding:"required,uuid"`
	Seats  int    `json:"seats" binding:"required,min=1"`
}

// PaymentDetails is the opaque payment confirmation attached to POST /bookings/:id/confirm
type PaymentDetails struct {
	Amount    float64 `json:"amount" binding:"omitempty,gte=0"`
	Mode      string  `json:"mode" binding:"omitempty,payment_mode"`
	Reference string  `json:"reference" binding:"omitempty,max=100"`
}

// ReservationResponse is returned when seats are held for a rider
type ReservationResponse struct {
	BookingID        uuid.UUID     `json:"booking_id"`
	TripID           uuid.UUID     `json:"trip_id"`
	Status           BookingStatus `json:"status"`
	SeatsBooked      int           `json:"seats_booked"`
	Deadline         time.Time     `json:"deadline"`
	ExpiresInSeconds int           `json:"expires_in_seconds"`
	TotalAmount      float64       `json:"total_amount"`
	Currency         string        `json:"currency"`
}

// ConfirmationResponse is returned after a pending booking is paid
type ConfirmationResponse struct {
	BookingID uuid.UUID     `json:"booking_id"`
	Status    BookingStatus `json:"status"`
	Payment   *Payment      `json:"payment"`
}

// BookingReceipt is everything a printed receipt needs about one confirmed booking
type BookingReceipt struct {
	Booking  *Booking
	Trip     *Trip
	Payment  *Payment
	Currency string
}

// SweepResult summarises one expiry pass
type SweepResult struct {
	TripsSwept     int         `json:"trips_swept"`
	Expired        []uuid.UUID `json:"expired_booking_ids"`
	SeatsReleased  int         `json:"seats_released"`
	TripsCompleted int64       `json:"trips_completed"`
}

// Merge folds another pass into r
func (r *SweepResult) Merge(other SweepResult) {
	r.TripsSwept += other.TripsSwept
	r.Expired = append(r.Expired, other.Expired...)
	r.SeatsReleased += other.SeatsReleased
	r.TripsCompleted += other.TripsCompleted
}
