package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sawaari/driveshare-backend/internal/models"
	"github.com/sirupsen/logrus"
)

var kindStatus = map[models.ErrorKind]int{
	models.KindInsufficientSeats: http.StatusConflict,
	models.KindTripUnavailable:   http.StatusConflict,
	models.KindDuplicateBooking:  http.StatusConflict,
	models.KindInvalidState:      http.StatusConflict,
	models.KindAccessDenied:      http.StatusForbidden,
	models.KindBookingExpired:    http.StatusGone,
	models.KindNotFound:          http.StatusNotFound,
	models.KindInvalidRequest:    http.StatusBadRequest,
}

// respondError writes {"error": kind, "message": text}. Anything that is not
// a ReservationError is logged and answered as a 500.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	kind := models.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("Reservation request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Something went wrong, please try again",
		})
		return
	}

	message := string(kind)
	var re *models.ReservationError
	if errors.As(err, &re) && re.Message != "" {
		message = re.Message
	}
	c.JSON(status, gin.H{
		"error":   kind,
		"message": message,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   models.KindInvalidRequest,
		"message": message,
	})
}
