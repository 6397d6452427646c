package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/sawaari/driveshare-backend/internal/config"
	"github.com/sawaari/driveshare-backend/internal/database"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// child tables first so MySQL's foreign keys never block a delete
var tables = []string{"payments", "bookings", "trips", "audit_logs"}

func main() {
	dbURLFlag := pflag.String("database-url", "", "database connection string (overrides DATABASE_URL)")
	driverFlag := pflag.String("driver", "", "database driver: postgres, pgx or mysql (overrides DATABASE_DRIVER)")
	confirm := pflag.Bool("yes", false, "really delete every trip, booking, payment and audit row")
	pflag.Parse()

	// Try loading .env from current working directory (optional)
	// This avoids having to pass secrets on the command line.
	_ = godotenv.Load()

	dbURL := *dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and --database-url was not provided")
	}
	driver := *driverFlag
	if driver == "" {
		driver = os.Getenv("DATABASE_DRIVER")
	}
	if !*confirm {
		log.Fatal("refusing to clear data without --yes")
	}

	logger := logrus.New()
	db, err := database.NewConnection(config.DatabaseConfig{
		Driver:             driver,
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	}, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("Connected to database. Clearing reservation data...")

	if db.IsMySQL() {
		for _, table := range tables {
			if _, err := db.Exec("DELETE FROM " + table); err != nil {
				log.Fatalf("failed to clear %s: %v", table, err)
			}
		}
	} else {
		if _, err := db.Exec(`TRUNCATE TABLE payments, bookings, trips, audit_logs RESTART IDENTITY CASCADE`); err != nil {
			log.Fatalf("failed to truncate tables: %v", err)
		}
	}

	fmt.Println("Post-clear row counts:")
	for _, table := range tables {
		var count int
		if err := db.Get(&count, "SELECT COUNT(*) FROM "+table); err != nil {
			log.Printf("  %s: error: %v", table, err)
			continue
		}
		fmt.Printf("  %s: %d\n", table, count)
	}
}
