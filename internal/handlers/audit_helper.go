package handlers

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sawaari/driveshare-backend/internal/models"
	"github.com/sawaari/driveshare-backend/internal/utils"
)

// logAuditError is a helper to log audit service errors without failing the request
func logAuditError(operation string, err error) {
	if err != nil {
		log.Printf("AUDIT ERROR [%s]: %v", operation, err)
	}
}

// Helper functions to log audit events with error handling. A nil audit service disables them.

func (h *ReservationHandler) safeLogBookingEvent(c *gin.Context, userID uuid.UUID, action string, bookingID uuid.UUID, details map[string]interface{}) {
	if h.auditService == nil {
		return
	}
	err := h.auditService.LogBookingEvent(userID, action, bookingID, utils.GetRealIP(c), utils.GetUserAgent(c), details)
	logAuditError("LogBookingEvent", err)
}

func (h *ReservationHandler) safeLogRejectedReservation(c *gin.Context, userID, tripID uuid.UUID, seats int, kind string) {
	if h.auditService == nil {
		return
	}
	err := h.auditService.LogRejectedReservation(userID, tripID, seats, kind, utils.GetRealIP(c), utils.GetUserAgent(c))
	logAuditError("LogRejectedReservation", err)
}

func (h *TripHandler) safeLogTripCancellation(c *gin.Context, userID uuid.UUID, result *models.TripCancellation) {
	if h.auditService == nil {
		return
	}
	err := h.auditService.LogTripCancellation(userID, result.TripID, len(result.CancelledBookings), result.PaymentsRefunded,
		utils.GetRealIP(c), utils.GetUserAgent(c))
	logAuditError("LogTripCancellation", err)
}

func (h *AdminHandler) safeLogManualSweep(c *gin.Context, userID uuid.UUID, result *models.SweepResult) {
	if h.auditService == nil {
		return
	}
	err := h.auditService.LogManualSweep(userID, len(result.Expired), result.SeatsReleased, utils.GetRealIP(c), utils.GetUserAgent(c))
	logAuditError("LogManualSweep", err)
}
