package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sawaari/driveshare-backend/internal/config"
	"github.com/sirupsen/logrus"
)

// DB interface defines database operations
type DB interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...interface{}) (sql.Result, error)
	Rebind(query string) string
	Ping() error
	Close() error
}

// Conn implements the DB interface using sqlx and remembers which dialect it speaks
type Conn struct {
	*sqlx.DB
	Driver string
}

// maskPassword masks the password in a database URL for safe logging
func maskPassword(url string) string {
	re := regexp.MustCompile(`((?:postgres(?:ql)?://)?[^:/@]+:)([^@]+)(@.+)`)
	return re.ReplaceAllString(url, "${1}****${3}")
}

// NewConnection creates a new database connection for the configured driver
func NewConnection(cfg config.DatabaseConfig, logger *logrus.Logger) (*Conn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	logger.WithFields(logrus.Fields{
		"driver": cfg.Driver,
		"url":    maskPassword(cfg.URL),
	}).Info("Opening database connection")

	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.Driver {
	case "", "postgres":
		db, err = sqlx.Connect("postgres", cfg.URL)
	case "pgx":
		db, err = connectPgx(cfg.URL, logger)
	case "mysql":
		db, err = sqlx.Connect("mysql", mysqlDSN(cfg.URL))
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxLifetime / 2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn := &Conn{DB: db, Driver: db.DriverName()}
	if cfg.AutoMigrate {
		if err := Migrate(context.Background(), conn); err != nil {
			db.Close()
			return nil, err
		}
	}

	return conn, nil
}

// connectPgx opens a pgx-backed handle; transaction-mode poolers (port 6543) need the simple protocol
func connectPgx(url string, logger *logrus.Logger) (*sqlx.DB, error) {
	pgxConfig, err := pgx.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if strings.Contains(url, ":6543") {
		pgxConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
		logger.Info("Transaction pooler detected, using simple query protocol")
	}

	connStr := stdlib.RegisterConnConfig(pgxConfig)
	return sqlx.Connect("pgx", connStr)
}

// mysqlDSN makes DATE/DATETIME columns scan into time.Time
func mysqlDSN(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "parseTime=true&loc=UTC"
}

// IsMySQL reports whether the handle speaks the MySQL dialect
func (c *Conn) IsMySQL() bool {
	return c.Driver == "mysql"
}
