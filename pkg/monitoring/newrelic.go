package monitoring

import (
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// Config holds New Relic configuration
type Config struct {
	LicenseKey string
	AppName    string
	Enabled    bool
}

// NewRelicApp wraps the New Relic application. A disabled or nil app turns every call into a no-op.
type NewRelicApp struct {
	*newrelic.Application
	enabled bool
}

// New creates a new New Relic application
func New(cfg Config) (*NewRelicApp, error) {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return &NewRelicApp{nil, false}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create New Relic application: %w", err)
	}

	return &NewRelicApp{app, true}, nil
}

// IsEnabled returns whether New Relic is enabled
func (nr *NewRelicApp) IsEnabled() bool {
	return nr != nil && nr.enabled && nr.Application != nil
}

// StartTransaction starts a background transaction, nil when disabled
func (nr *NewRelicApp) StartTransaction(name string) *newrelic.Transaction {
	if !nr.IsEnabled() {
		return nil
	}
	return nr.Application.StartTransaction(name)
}

// RecordCustomEvent records a custom event
func (nr *NewRelicApp) RecordCustomEvent(eventType string, params map[string]interface{}) {
	if !nr.IsEnabled() {
		return
	}
	nr.Application.RecordCustomEvent(eventType, params)
}

// RecordCustomMetric records a custom metric
func (nr *NewRelicApp) RecordCustomMetric(name string, value float64) {
	if !nr.IsEnabled() {
		return
	}
	nr.Application.RecordCustomMetric(name, value)
}

// Shutdown gracefully shuts down the New Relic application
func (nr *NewRelicApp) Shutdown(timeout time.Duration) {
	if !nr.IsEnabled() {
		return
	}
	nr.Application.Shutdown(timeout)
}

// Custom metric helpers

// RecordSweep records the outcome of one expiry pass
func (nr *NewRelicApp) RecordSweep(expired, seatsReleased int, tripsCompleted int64, duration time.Duration) {
	nr.RecordCustomMetric("custom/reservation/sweep_expired", float64(expired))
	nr.RecordCustomMetric("custom/reservation/sweep_seats_released", float64(seatsReleased))
	nr.RecordCustomMetric("custom/reservation/trips_completed", float64(tripsCompleted))
	nr.RecordCustomMetric("custom/reservation/sweep_duration_ms", float64(duration.Milliseconds()))
}

// RecordSeatEvent records a booking lifecycle change
func (nr *NewRelicApp) RecordSeatEvent(eventType, tripID string, seats, availableSeats int) {
	nr.RecordCustomEvent("SeatInventoryChanged", map[string]interface{}{
		"type":            eventType,
		"trip_id":         tripID,
		"seats":           seats,
		"available_seats": availableSeats,
	})
}
