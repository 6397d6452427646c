package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an expected reservation outcome
type ErrorKind string

const (
	KindInsufficientSeats ErrorKind = "insufficient_seats"
	KindTripUnavailable   ErrorKind = "trip_unavailable"
	KindDuplicateBooking  ErrorKind = "duplicate_booking"
	KindAccessDenied      ErrorKind = "access_denied"
	KindBookingExpired    ErrorKind = "booking_expired"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidState      ErrorKind = "invalid_state"
	KindInvalidRequest    ErrorKind = "invalid_request"
)

// ReservationError is returned for every business outcome the caller is expected to show.
// Storage failures are never ReservationErrors.
type ReservationError struct {
	Kind    ErrorKind `json:"error"`
	Message string    `json:"message"`
}

func (e *ReservationError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any ReservationError of the same kind, so errors.Is(err, ErrNotFound) works
// for a NewReservationError(KindNotFound, "...") value.
func (e *ReservationError) Is(target error) bool {
	t, ok := target.(*ReservationError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewReservationError creates a ReservationError with a specific message
func NewReservationError(kind ErrorKind, format string, args ...interface{}) *ReservationError {
	return &ReservationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInsufficientSeats = &ReservationError{Kind: KindInsufficientSeats, Message: "not enough seats available"}
	ErrTripUnavailable   = &ReservationError{Kind: KindTripUnavailable, Message: "trip is no longer accepting bookings"}
	ErrDuplicateBooking  = &ReservationError{Kind: KindDuplicateBooking, Message: "rider already holds a booking on this trip"}
	ErrAccessDenied      = &ReservationError{Kind: KindAccessDenied, Message: "not allowed"}
	ErrBookingExpired    = &ReservationError{Kind: KindBookingExpired, Message: "payment window has lapsed, seats were released"}
	ErrNotFound          = &ReservationError{Kind: KindNotFound, Message: "not found"}
	ErrInvalidState      = &ReservationError{Kind: KindInvalidState, Message: "operation not allowed in current state"}
	ErrInvalidRequest    = &ReservationError{Kind: KindInvalidRequest, Message: "invalid request"}
)

// KindOf returns the kind of a ReservationError anywhere in err's chain, or "" for other errors
func KindOf(err error) ErrorKind {
	var re *ReservationError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
