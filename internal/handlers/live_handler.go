package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/sawaari/driveshare-backend/internal/services"
	"github.com/sawaari/driveshare-backend/pkg/websocket"
	"github.com/sirupsen/logrus"
)

// LiveHandler streams seat events for one trip over a websocket
type LiveHandler struct {
	reservations Reservations
	hub          *websocket.Hub
	upgrader     gorilla.Upgrader
	logger       *logrus.Logger
}

// NewLiveHandler creates a new LiveHandler. allowedOrigins of ["*"] accepts any origin.
func NewLiveHandler(reservations Reservations, hub *websocket.Hub, allowedOrigins []string, logger *logrus.Logger) *LiveHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &LiveHandler{
		reservations: reservations,
		hub:          hub,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
		logger: logger,
	}
}

// WatchTrip handles GET /api/v1/trips/:id/live. The client joins the hub before
// the snapshot is read, so every event committed after the snapshot reaches it.
// Events queued ahead of the snapshot frame are already reflected in it.
func (h *LiveHandler) WatchTrip(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	tripID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	// visibility and pink-mode rules apply before the upgrade
	trips, err := h.reservations.SweepAndList(c.Request.Context(), services.ScopeTrip(tripID), userCtx.Actor())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).WithField("trip_id", tripID).Warn("Failed to upgrade to WebSocket")
		return
	}

	client := websocket.NewClient(h.hub, conn, userCtx.UserID.String(), h.logger, tripID.String())
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	snapshot, err := h.reservations.SweepAndList(context.WithoutCancel(c.Request.Context()), services.ScopeTrip(tripID), userCtx.Actor())
	if err != nil {
		h.logger.WithError(err).WithField("trip_id", tripID).Warn("Failed to read live feed snapshot")
		snapshot = trips
	}
	if len(snapshot) > 0 {
		h.hub.SendToClient(client, websocket.Message{Type: "snapshot", Data: snapshot[0]})
	}
}
