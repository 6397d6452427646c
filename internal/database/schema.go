package database

import (
	"context"
	"fmt"
	"strings"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS trips (
		id UUID PRIMARY KEY,
		owner_id UUID NOT NULL,
		source VARCHAR(255) NOT NULL,
		destination VARCHAR(255) NOT NULL,
		trip_date DATE NOT NULL,
		trip_time VARCHAR(5) NOT NULL,
		capacity INTEGER NOT NULL CHECK (capacity >= 0),
		available_seats INTEGER NOT NULL CHECK (available_seats >= 0 AND available_seats <= capacity),
		price_per_seat NUMERIC(10, 2) NOT NULL DEFAULT 0 CHECK (price_per_seat >= 0),
		status VARCHAR(16) NOT NULL DEFAULT 'Open',
		pink_mode BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id UUID PRIMARY KEY,
		trip_id UUID NOT NULL REFERENCES trips(id),
		rider_id UUID NOT NULL,
		seats_booked INTEGER NOT NULL CHECK (seats_booked >= 1),
		status VARCHAR(16) NOT NULL,
		expires_at TIMESTAMPTZ NULL,
		cancel_reason VARCHAR(32) NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		cancelled_at TIMESTAMPTZ NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS bookings_one_active_per_rider
		ON bookings (trip_id, rider_id) WHERE status <> 'cancelled'`,
	`CREATE INDEX IF NOT EXISTS bookings_pending_expiry
		ON bookings (expires_at) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY,
		booking_id UUID NOT NULL REFERENCES bookings(id),
		amount NUMERIC(10, 2) NOT NULL,
		mode VARCHAR(16) NOT NULL,
		reference VARCHAR(100) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL,
		paid_at TIMESTAMPTZ NOT NULL,
		refunded_at TIMESTAMPTZ NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		user_id UUID NULL,
		action VARCHAR(64) NOT NULL,
		entity_type VARCHAR(32) NOT NULL,
		entity_id UUID NULL,
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL,
		details JSONB NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS trips (
		id CHAR(36) PRIMARY KEY,
		owner_id CHAR(36) NOT NULL,
		source VARCHAR(255) NOT NULL,
		destination VARCHAR(255) NOT NULL,
		trip_date DATE NOT NULL,
		trip_time VARCHAR(5) NOT NULL,
		capacity INT NOT NULL,
		available_seats INT NOT NULL,
		price_per_seat DECIMAL(10, 2) NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'Open',
		pink_mode BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		CHECK (available_seats >= 0 AND available_seats <= capacity)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id CHAR(36) PRIMARY KEY,
		trip_id CHAR(36) NOT NULL,
		rider_id CHAR(36) NOT NULL,
		seats_booked INT NOT NULL,
		status VARCHAR(16) NOT NULL,
		expires_at DATETIME(6) NULL,
		cancel_reason VARCHAR(32) NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		cancelled_at DATETIME(6) NULL,
		INDEX bookings_trip_rider (trip_id, rider_id),
		INDEX bookings_status_expiry (status, expires_at),
		FOREIGN KEY (trip_id) REFERENCES trips(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS payments (
		id CHAR(36) PRIMARY KEY,
		booking_id CHAR(36) NOT NULL,
		amount DECIMAL(10, 2) NOT NULL,
		mode VARCHAR(16) NOT NULL,
		reference VARCHAR(100) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL,
		paid_at DATETIME(6) NOT NULL,
		refunded_at DATETIME(6) NULL,
		INDEX payments_booking (booking_id),
		FOREIGN KEY (booking_id) REFERENCES bookings(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id CHAR(36) NULL,
		action VARCHAR(64) NOT NULL,
		entity_type VARCHAR(32) NOT NULL,
		entity_id CHAR(36) NULL,
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL,
		details JSON NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
	) ENGINE=InnoDB`,
}

// Migrate creates the reservation tables if they do not exist yet.
// MySQL has no partial unique index, so one-active-booking-per-rider is enforced under the trip lock only.
func Migrate(ctx context.Context, conn *Conn) error {
	statements := postgresSchema
	if conn.IsMySQL() {
		statements = mysqlSchema
	}

	for _, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema (%s): %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	if i := strings.Index(stmt, "("); i > 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return stmt
}
