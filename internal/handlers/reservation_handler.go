package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sawaari/driveshare-backend/internal/middleware"
	"github.com/sawaari/driveshare-backend/internal/models"
	"github.com/sawaari/driveshare-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// Reservations is the reservation surface the HTTP layer drives
type Reservations interface {
	CreateBooking(ctx context.Context, tripID uuid.UUID, rider models.Actor, seats int) (*models.ReservationResponse, error)
	ConfirmBooking(ctx context.Context, bookingID, riderID uuid.UUID, details models.PaymentDetails) (*models.ConfirmationResponse, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID, actor models.Actor) error
	CancelTrip(ctx context.Context, tripID uuid.UUID, actor models.Actor) (*models.TripCancellation, error)
	SweepAndList(ctx context.Context, scope services.Scope, viewer models.Actor) ([]models.TripDetail, error)
	ListRiderBookings(ctx context.Context, riderID uuid.UUID) ([]models.BookingWithTrip, error)
	ListOwnerBookings(ctx context.Context, ownerID uuid.UUID) ([]models.BookingWithTrip, error)
	DriverStats(ctx context.Context, ownerID uuid.UUID) (*models.DriverStats, error)
	GetReceipt(ctx context.Context, bookingID uuid.UUID, viewer models.Actor) (*models.BookingReceipt, error)
	CheckConsistency(ctx context.Context, tripID uuid.UUID) (*models.ConsistencyReport, error)
}

// ReservationHandler handles seat holds, confirmation and cancellation
type ReservationHandler struct {
	reservations Reservations
	auditService *services.AuditService
	logger       *logrus.Logger
}

// NewReservationHandler creates a new ReservationHandler. auditService may be nil.
func NewReservationHandler(reservations Reservations, auditService *services.AuditService, logger *logrus.Logger) *ReservationHandler {
	return &ReservationHandler{
		reservations: reservations,
		auditService: auditService,
		logger:       logger,
	}
}

// CreateBooking holds seats on a trip for the calling rider
// POST /api/v1/bookings
func (h *ReservationHandler) CreateBooking(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	tripID := uuid.MustParse(req.TripID)

	res, err := h.reservations.CreateBooking(c.Request.Context(), tripID, userCtx.Actor(), req.Seats)
	if err != nil {
		if kind := models.KindOf(err); kind != "" && kind != models.KindInvalidRequest {
			h.safeLogRejectedReservation(c, userCtx.UserID, tripID, req.Seats, string(kind))
		}
		respondError(c, h.logger, err)
		return
	}

	h.safeLogBookingEvent(c, userCtx.UserID, services.AuditBookingReserved, res.BookingID, map[string]interface{}{
		"trip_id": tripID,
		"seats":   res.SeatsBooked,
	})
	c.JSON(http.StatusCreated, res)
}

// ConfirmBooking records payment for a pending booking
// POST /api/v1/bookings/:id/confirm
func (h *ReservationHandler) ConfirmBooking(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var details models.PaymentDetails
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&details); err != nil {
			badRequest(c, "Invalid payment details: "+err.Error())
			return
		}
	}

	res, err := h.reservations.ConfirmBooking(c.Request.Context(), bookingID, userCtx.UserID, details)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.safeLogBookingEvent(c, userCtx.UserID, services.AuditBookingConfirmed, bookingID, map[string]interface{}{
		"amount": res.Payment.Amount,
		"mode":   res.Payment.Mode,
	})
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"booking_id": res.BookingID,
		"status":     res.Status,
		"payment":    res.Payment,
	})
}

// CancelBooking cancels a pending or confirmed booking as its rider or the trip owner
// POST /api/v1/bookings/:id/cancel
func (h *ReservationHandler) CancelBooking(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.reservations.CancelBooking(c.Request.Context(), bookingID, userCtx.Actor()); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.safeLogBookingEvent(c, userCtx.UserID, services.AuditBookingCancelled, bookingID, nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "booking_id": bookingID})
}

// ListRiderBookings lists the caller's bookings as a rider
// GET /api/v1/rider/bookings
func (h *ReservationHandler) ListRiderBookings(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	bookings, err := h.reservations.ListRiderBookings(c.Request.Context(), userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// ListOwnerBookings lists bookings on the caller's trips
// GET /api/v1/driver/bookings
func (h *ReservationHandler) ListOwnerBookings(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	bookings, err := h.reservations.ListOwnerBookings(c.Request.Context(), userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// GetDriverStats returns the caller's earnings and upcoming trips
// GET /api/v1/driver/stats
func (h *ReservationHandler) GetDriverStats(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	stats, err := h.reservations.DriverStats(c.Request.Context(), userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetReceipt renders the PDF receipt of a confirmed booking
// GET /api/v1/bookings/:id/receipt
func (h *ReservationHandler) GetReceipt(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	receipt, err := h.reservations.GetReceipt(c.Request.Context(), bookingID, userCtx.Actor())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	pdf, err := services.RenderReceipt(receipt, time.Now())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="receipt-%s.pdf"`, bookingID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func requireUser(c *gin.Context) (middleware.UserContext, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Unauthorized"})
		return middleware.UserContext{}, false
	}
	return userCtx, true
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
