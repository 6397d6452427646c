package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sawaari/driveshare-backend/internal/models"
	"github.com/sawaari/driveshare-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// SweepRunner runs the all-trips expiry pass on demand and reports the schedule
type SweepRunner interface {
	RunSweepNow() (models.SweepResult, error)
	GetJobStatus() map[string]interface{}
}

// AdminHandler handles operator endpoints: manual sweeps, ledger checks and the audit trail
type AdminHandler struct {
	reservations Reservations
	sweeps       SweepRunner
	auditService *services.AuditService
	logger       *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	reservations Reservations,
	sweeps SweepRunner,
	auditService *services.AuditService,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		reservations: reservations,
		sweeps:       sweeps,
		auditService: auditService,
		logger:       logger,
	}
}

// RunSweep handles POST /api/v1/admin/sweep
func (h *AdminHandler) RunSweep(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	result, err := h.sweeps.RunSweepNow()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.safeLogManualSweep(c, userCtx.UserID, &result)
	c.JSON(http.StatusOK, result)
}

// GetJobStatus handles GET /api/v1/admin/jobs
func (h *AdminHandler) GetJobStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.sweeps.GetJobStatus())
}

// CheckConsistency handles GET /api/v1/admin/trips/:id/consistency
func (h *AdminHandler) CheckConsistency(c *gin.Context) {
	tripID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	report, err := h.reservations.CheckConsistency(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if !report.Consistent {
		h.logger.WithFields(logrus.Fields{
			"trip_id":            report.TripID,
			"available_seats":    report.AvailableSeats,
			"expected_available": report.ExpectedAvailable,
			"status":             report.Status,
			"expected_status":    report.ExpectedStatus,
		}).Warn("Seat ledger drift detected")
	}
	c.JSON(http.StatusOK, report)
}

// GetAuditTrail handles GET /api/v1/admin/users/:id/audit?limit=N
func (h *AdminHandler) GetAuditTrail(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if h.auditService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit_disabled", "message": "Audit logging is disabled"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		badRequest(c, "limit must be between 1 and 500")
		return
	}

	events, err := h.auditService.GetRecentEvents(userID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
