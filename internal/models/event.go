package models

import (
	"time"

	"github.com/google/uuid"
)

// SeatEventType names a change to a trip's seat inventory
type SeatEventType string

const (
	EventBookingReserved  SeatEventType = "booking.reserved"
	EventBookingConfirmed SeatEventType = "booking.confirmed"
	EventBookingCancelled SeatEventType = "booking.cancelled"
	EventBookingExpired   SeatEventType = "booking.expired"
	EventTripCancelled    SeatEventType = "trip.cancelled"
)

// SeatEvent is published after a reservation transaction commits
type SeatEvent struct {
	ID             uuid.UUID     `json:"id"`
	Type           SeatEventType `json:"type"`
	TripID         uuid.UUID     `json:"trip_id"`
	BookingID      *uuid.UUID    `json:"booking_id,omitempty"`
	RiderID        *uuid.UUID    `json:"rider_id,omitempty"`
	Seats          int           `json:"seats"`
	AvailableSeats int           `json:"available_seats"`
	TripStatus     TripStatus    `json:"trip_status"`
	OccurredAt     time.Time     `json:"occurred_at"`
}
