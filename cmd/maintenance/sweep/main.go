package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sawaari/driveshare-backend/internal/config"
	"github.com/sawaari/driveshare-backend/internal/database"
	"github.com/sawaari/driveshare-backend/internal/models"
	"github.com/sawaari/driveshare-backend/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("sweep", pflag.ContinueOnError)
	dbURL := flagSet.String("database-url", "", "database connection string (overrides DATABASE_URL)")
	driver := flagSet.String("driver", "", "database driver: postgres, pgx or mysql (overrides DATABASE_DRIVER)")
	tripFlag := flagSet.String("trip", "", "sweep only this trip id")
	verify := flagSet.Bool("verify", false, "check the seat ledger after sweeping")
	timeout := flagSet.Duration("timeout", 2*time.Minute, "overall deadline")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbCfg := config.DatabaseConfig{
		Driver:             firstNonEmpty(*driver, os.Getenv("DATABASE_DRIVER"), "postgres"),
		URL:                firstNonEmpty(*dbURL, os.Getenv("DATABASE_URL")),
		MaxConnections:     5,
		MaxIdleConnections: 2,
	}
	if dbCfg.URL == "" {
		return errors.New("DATABASE_URL is not set and --database-url was not provided")
	}

	var tripID uuid.UUID
	if *tripFlag != "" {
		id, err := uuid.Parse(*tripFlag)
		if err != nil {
			return fmt.Errorf("invalid --trip: %w", err)
		}
		tripID = id
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	db, err := database.NewConnection(dbCfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store := database.NewReservationRepository(db.DB)
	sweeper := services.NewExpirySweeper(store, nil, time.Now, logger)

	var result models.SweepResult
	if tripID != uuid.Nil {
		result, err = sweeper.SweepTrip(ctx, tripID)
	} else {
		result, err = sweeper.SweepAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	fmt.Printf("Swept %d trip(s): expired %d booking(s), released %d seat(s), completed %d trip(s)\n",
		result.TripsSwept, len(result.Expired), result.SeatsReleased, result.TripsCompleted)

	if !*verify {
		return nil
	}
	return verifyLedger(ctx, store, tripID)
}

// verifyLedger prints one line per checked trip and fails when any trip drifted
func verifyLedger(ctx context.Context, store *database.ReservationRepository, tripID uuid.UUID) error {
	tripIDs := []uuid.UUID{tripID}
	if tripID == uuid.Nil {
		trips, err := store.ListBookableTrips(ctx)
		if err != nil {
			return fmt.Errorf("failed to list trips: %w", err)
		}
		tripIDs = tripIDs[:0]
		for _, t := range trips {
			tripIDs = append(tripIDs, t.ID)
		}
	}

	drifted := 0
	for _, id := range tripIDs {
		report, err := store.CheckConsistency(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to check trip %s: %w", id, err)
		}
		state := "ok"
		if !report.Consistent {
			state = "DRIFT"
			drifted++
		}
		fmt.Printf("  %-5s %s capacity=%d available=%d held=%d expected=%d status=%s/%s\n",
			state, report.TripID, report.Capacity, report.AvailableSeats, report.HeldSeats,
			report.ExpectedAvailable, report.Status, report.ExpectedStatus)
	}

	if drifted > 0 {
		return fmt.Errorf("%d of %d trip(s) failed the seat ledger check", drifted, len(tripIDs))
	}
	fmt.Printf("Seat ledger consistent on %d trip(s)\n", len(tripIDs))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
