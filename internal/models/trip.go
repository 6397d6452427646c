package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TripStatus represents the seat-derived or terminal status of a trip
type TripStatus string

const (
	TripStatusOpen      TripStatus = "Open"
	TripStatusFull      TripStatus = "Full"
	TripStatusCompleted TripStatus = "Completed"
	TripStatusCancelled TripStatus = "Cancelled"
)

// AcceptsBookings reports whether new seat holds may be taken on a trip in this status
func (s TripStatus) AcceptsBookings() bool {
	return s == TripStatusOpen || s == TripStatusFull
}

// Trip represents one scheduled, seat-limited journey offered by a driver
type Trip struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	OwnerID        uuid.UUID  `json:"owner_id" db:"owner_id"`
	Source         string     `json:"source" db:"source"`
	Destination    string     `json:"destination" db:"destination"`
	TripDate       time.Time  `json:"trip_date" db:"trip_date"`
	TripTime       string     `json:"trip_time" db:"trip_time"`
	Capacity       int        `json:"capacity" db:"capacity"`
	AvailableSeats int        `json:"available_seats" db:"available_seats"`
	PricePerSeat   float64    `json:"price_per_seat" db:"price_per_seat"`
	Status         TripStatus `json:"status" db:"status"`
	PinkMode       bool       `json:"pink_mode" db:"pink_mode"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// VisibleTo reports whether a viewer may see the trip in listings.
// Pink-mode trips are hidden from non-female viewers unless they own the trip.
func (t *Trip) VisibleTo(viewerID uuid.UUID, gender string) bool {
	if !t.PinkMode {
		return true
	}
	return t.OwnerID == viewerID || IsFemale(gender)
}

// IsFemale normalises the gender claim carried by the identity token
func IsFemale(gender string) bool {
	return strings.EqualFold(strings.TrimSpace(gender), "female")
}

// TripFilter narrows a trip listing. Empty fields match every trip.
type TripFilter struct {
	Source      string
	Destination string
	PinkOnly    bool
}

// Matches reports whether a trip passes the filter. A place matches when either
// name contains the other, ignoring case, so "Pune" finds "Pune Station".
func (f TripFilter) Matches(t *Trip) bool {
	if f.PinkOnly && !t.PinkMode {
		return false
	}
	return placeMatches(t.Source, f.Source) && placeMatches(t.Destination, f.Destination)
}

func placeMatches(place, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	place = strings.ToLower(strings.TrimSpace(place))
	return strings.Contains(place, query) || strings.Contains(query, place)
}

// DriverStats is the driver dashboard summary
type DriverStats struct {
	Earnings      float64 `json:"earnings"`
	TotalTrips    int     `json:"total_trips"`
	TodaysTrips   []Trip  `json:"todays_trips"`
	UpcomingTrips []Trip  `json:"upcoming_trips"`
}

// TripDetail is a trip together with its bookings, as served by the trip view
type TripDetail struct {
	Trip     *Trip     `json:"trip"`
	Bookings []Booking `json:"bookings,omitempty"`
}

// TripCancellation summarises an owner cancelling a whole trip
type TripCancellation struct {
	TripID            uuid.UUID   `json:"trip_id"`
	CancelledBookings []uuid.UUID `json:"cancelled_booking_ids"`
	SeatsReleased     int         `json:"seats_released"`
	PaymentsRefunded  int64       `json:"payments_refunded"`
}

// ConsistencyReport compares the stored seat count against the active bookings
type ConsistencyReport struct {
	TripID            uuid.UUID  `json:"trip_id"`
	Capacity          int        `json:"capacity"`
	AvailableSeats    int        `json:"available_seats"`
	HeldSeats         int        `json:"held_seats"`
	ExpectedAvailable int        `json:"expected_available"`
	Status            TripStatus `json:"status"`
	ExpectedStatus    TripStatus `json:"expected_status"`
	Consistent        bool       `json:"consistent"`
}

// ExpectedStatus derives the status a trip should have for a given seat count
func ExpectedStatus(current TripStatus, available int) TripStatus {
	if current == TripStatusCancelled || current == TripStatusCompleted {
		return current
	}
	if available == 0 {
		return TripStatusFull
	}
	return TripStatusOpen
}
