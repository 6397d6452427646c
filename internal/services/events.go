package services

import (
	"context"

	"github.com/sawaari/driveshare-backend/internal/models"
)

// EventPublisher receives seat events after the transaction that produced them commits.
// Publishing is best effort; implementations log their own failures.
type EventPublisher interface {
	Publish(ctx context.Context, event models.SeatEvent)
}

// NopPublisher discards events
type NopPublisher struct{}

// Publish implements EventPublisher
func (NopPublisher) Publish(context.Context, models.SeatEvent) {}

func publishAll(ctx context.Context, publisher EventPublisher, events []models.SeatEvent) {
	for _, event := range events {
		publisher.Publish(ctx, event)
	}
}
