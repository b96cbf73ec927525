package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var DB *sql.DB

const schema = `
CREATE TABLE IF NOT EXISTS daily_cache (
	kind       TEXT NOT NULL,
	day        TEXT NOT NULL,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (kind, day)
);
`

// Connect establishes the database connection with pooled configuration.
func Connect(dbURL string) error {
	var err error
	DB, err = sql.Open("postgres", dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(10)
	DB.SetMaxIdleConns(5)
	DB.SetConnMaxLifetime(30 * time.Minute)
	DB.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Connected to database successfully")
	return nil
}

// Migrate creates the daily_cache table when it does not exist yet.
func Migrate() error {
	if DB == nil {
		return fmt.Errorf("database connection not established")
	}

	if _, err := DB.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	logrus.Info("Database schema is up to date")
	return nil
}

func Close() {
	if DB != nil {
		DB.Close()
		logrus.Info("Database connection closed")
	}
}
