package services

import (
	"github.com/sawaari/driveshare-backend/internal/models"
)

// AccessPolicy decides whether a caller may take seats on a trip
type AccessPolicy interface {
	CanReserve(rider models.Actor, trip *models.Trip) error
}

// DefaultAccessPolicy enforces the marketplace rules: only riders book, drivers
// never book their own trip, and pink-mode trips admit female riders only.
type DefaultAccessPolicy struct{}

// CanReserve implements AccessPolicy
func (DefaultAccessPolicy) CanReserve(rider models.Actor, trip *models.Trip) error {
	if rider.Role != models.RoleRider {
		return models.NewReservationError(models.KindAccessDenied, "only riders can book seats")
	}
	if trip.OwnerID == rider.UserID {
		return models.NewReservationError(models.KindAccessDenied, "drivers cannot book their own trip")
	}
	if trip.PinkMode && !models.IsFemale(rider.Gender) {
		return models.NewReservationError(models.KindAccessDenied, "pink mode trips are reserved for female riders")
	}
	return nil
}
