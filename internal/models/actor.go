package models

import "github.com/google/uuid"

// Roles carried by identity tokens
const (
	RoleRider  = "rider"
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

// Actor is the authenticated caller of a reservation operation
type Actor struct {
	UserID uuid.UUID
	Role   string
	Gender string
}
