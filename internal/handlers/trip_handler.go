package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sawaari/driveshare-backend/internal/models"
	"github.com/sawaari/driveshare-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// TripHandler serves trip listings and the owner's cancel-trip action
type TripHandler struct {
	reservations Reservations
	auditService *services.AuditService
	logger       *logrus.Logger
}

// NewTripHandler creates a new TripHandler. auditService may be nil.
func NewTripHandler(reservations Reservations, auditService *services.AuditService, logger *logrus.Logger) *TripHandler {
	return &TripHandler{
		reservations: reservations,
		auditService: auditService,
		logger:       logger,
	}
}

// ListTrips expires lapsed holds everywhere and lists the bookable trips the caller may see
// GET /api/v1/trips?source=&destination=&pink_mode=
func (h *TripHandler) ListTrips(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	filter := models.TripFilter{
		Source:      c.Query("source"),
		Destination: c.Query("destination"),
	}
	if raw := c.Query("pink_mode"); raw != "" {
		pinkOnly, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "pink_mode must be true or false")
			return
		}
		filter.PinkOnly = pinkOnly
	}

	trips, err := h.reservations.SweepAndList(c.Request.Context(), services.ScopeSearch(filter), userCtx.Actor())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trips": trips, "count": len(trips)})
}

// GetTrip expires lapsed holds on one trip and returns it with its bookings
// GET /api/v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	tripID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	trips, err := h.reservations.SweepAndList(c.Request.Context(), services.ScopeTrip(tripID), userCtx.Actor())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if len(trips) == 0 {
		respondError(c, h.logger, models.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, trips[0])
}

// CancelTrip cancels a trip and every active booking on it
// POST /api/v1/trips/:id/cancel
func (h *TripHandler) CancelTrip(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	tripID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.reservations.CancelTrip(c.Request.Context(), tripID, userCtx.Actor())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.safeLogTripCancellation(c, userCtx.UserID, result)
	c.JSON(http.StatusOK, gin.H{"success": true, "cancellation": result})
}
