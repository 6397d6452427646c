package events

import (
	"context"

	"github.com/sawaari/driveshare-backend/internal/models"
	"github.com/sawaari/driveshare-backend/pkg/monitoring"
	"github.com/sawaari/driveshare-backend/pkg/websocket"
)

// Publisher matches services.EventPublisher
type Publisher interface {
	Publish(ctx context.Context, event models.SeatEvent)
}

// HubPublisher pushes seat events to live-feed clients watching the trip
type HubPublisher struct {
	hub *websocket.Hub
}

// NewHubPublisher creates a new hub publisher
func NewHubPublisher(hub *websocket.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

// Publish implements Publisher
func (p *HubPublisher) Publish(ctx context.Context, event models.SeatEvent) {
	p.hub.BroadcastToTrip(event.TripID.String(), websocket.Message{
		Type: string(event.Type),
		Data: event,
	})
}

// MetricsPublisher records seat events as New Relic custom events
type MetricsPublisher struct {
	app *monitoring.NewRelicApp
}

// NewMetricsPublisher creates a new metrics publisher
func NewMetricsPublisher(app *monitoring.NewRelicApp) *MetricsPublisher {
	return &MetricsPublisher{app: app}
}

// Publish implements Publisher
func (p *MetricsPublisher) Publish(ctx context.Context, event models.SeatEvent) {
	p.app.RecordSeatEvent(string(event.Type), event.TripID.String(), event.Seats, event.AvailableSeats)
}

// Multi fans one event out to several publishers in order
type Multi []Publisher

// Publish implements Publisher
func (m Multi) Publish(ctx context.Context, event models.SeatEvent) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, event)
		}
	}
}
