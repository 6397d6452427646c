package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sawaari/driveshare-backend/internal/database"
	"github.com/sawaari/driveshare-backend/internal/utils"
)

// Audit actions recorded for reservation traffic
const (
	AuditBookingReserved  = "booking_reserved"
	AuditBookingConfirmed = "booking_confirmed"
	AuditBookingCancelled = "booking_cancelled"
	AuditTripCancelled    = "trip_cancelled"
	AuditBookingRejected  = "booking_rejected"
	AuditManualSweep      = "manual_sweep"
)

// AuditService handles audit logging for reservation events
type AuditService struct {
	db database.DB
}

// NewAuditService creates a new audit service
func NewAuditService(db database.DB) *AuditService {
	return &AuditService{
		db: db,
	}
}

// AuditEvent represents a reservation event to be logged
type AuditEvent struct {
	UserID     *uuid.UUID             // Can be nil for system events (sweeps)
	Action     string                 // Action type (e.g., "booking_reserved", "trip_cancelled")
	EntityType string                 // Type of entity affected ("booking", "trip")
	EntityID   *uuid.UUID             // ID of the affected entity (can be nil)
	IPAddress  string                 // Client IP address
	UserAgent  string                 // Client user agent
	Details    map[string]interface{} // Additional details stored as JSON
}

// AuditRecord is one row read back from audit_logs
type AuditRecord struct {
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   *uuid.UUID      `json:"entity_id,omitempty" db:"entity_id"`
	IPAddress  string          `json:"ip_address" db:"ip_address"`
	UserAgent  string          `json:"user_agent" db:"user_agent"`
	Details    json.RawMessage `json:"details" db:"details"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// LogBookingEvent logs a reserve, confirm or cancel on a booking
func (s *AuditService) LogBookingEvent(userID uuid.UUID, action string, bookingID uuid.UUID, ipAddress, userAgent string, details map[string]interface{}) error {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["device_info"] = utils.ParseUserAgent(userAgent)

	return s.logEvent(AuditEvent{
		UserID:     &userID,
		Action:     action,
		EntityType: "booking",
		EntityID:   &bookingID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details:    details,
	})
}

// LogTripCancellation logs an owner cancelling a whole trip
func (s *AuditService) LogTripCancellation(userID, tripID uuid.UUID, bookingsCancelled int, paymentsRefunded int64, ipAddress, userAgent string) error {
	details := map[string]interface{}{
		"bookings_cancelled": bookingsCancelled,
		"payments_refunded":  paymentsRefunded,
		"device_info":        utils.ParseUserAgent(userAgent),
	}

	return s.logEvent(AuditEvent{
		UserID:     &userID,
		Action:     AuditTripCancelled,
		EntityType: "trip",
		EntityID:   &tripID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details:    details,
	})
}

// LogRejectedReservation logs a reservation refused for a business reason (pink mode, duplicate, capacity)
func (s *AuditService) LogRejectedReservation(userID, tripID uuid.UUID, seats int, kind string, ipAddress, userAgent string) error {
	details := map[string]interface{}{
		"seats":       seats,
		"reason":      kind,
		"device_info": utils.ParseUserAgent(userAgent),
	}

	return s.logEvent(AuditEvent{
		UserID:     &userID,
		Action:     AuditBookingRejected,
		EntityType: "trip",
		EntityID:   &tripID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details:    details,
	})
}

// LogManualSweep logs an admin-triggered expiry pass
func (s *AuditService) LogManualSweep(userID uuid.UUID, expired, seatsReleased int, ipAddress, userAgent string) error {
	return s.logEvent(AuditEvent{
		UserID:     &userID,
		Action:     AuditManualSweep,
		EntityType: "trip",
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details: map[string]interface{}{
			"expired":        expired,
			"seats_released": seatsReleased,
		},
	})
}

// logEvent is the internal method that writes to the audit_logs table
func (s *AuditService) logEvent(event AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := s.db.Rebind(`
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`)

	_, err = s.db.Exec(
		query,
		event.UserID,
		event.Action,
		event.EntityType,
		event.EntityID,
		event.IPAddress,
		event.UserAgent,
		string(details),
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}

	return nil
}

// GetRecentEvents retrieves recent audit events for a user
func (s *AuditService) GetRecentEvents(userID uuid.UUID, limit int) ([]AuditRecord, error) {
	query := s.db.Rebind(`
		SELECT action, entity_type, entity_id, ip_address, user_agent, details, created_at
		FROM audit_logs
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`)

	events := []AuditRecord{}
	if err := s.db.Select(&events, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to get recent events: %w", err)
	}

	return events, nil
}

// CleanupOldAuditLogs removes audit logs older than the specified duration
func (s *AuditService) CleanupOldAuditLogs(olderThan time.Duration) (int64, error) {
	cutoffTime := time.Now().Add(-olderThan)

	result, err := s.db.Exec(s.db.Rebind(`DELETE FROM audit_logs WHERE created_at < ?`), cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
