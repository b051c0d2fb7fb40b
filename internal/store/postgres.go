// Package store provides storage backends for CallBridge.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/ortholink/callbridge/internal/models"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// AddContact records a phone number as a known contact.
func (s *PostgresStore) AddContact(phone string) error {
	_, err := s.db.Exec(`INSERT INTO contacts (phone) VALUES ($1) ON CONFLICT (phone) DO NOTHING`, phone)
	if err != nil {
		slog.Error("PostgresStore AddContact failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to insert contact %s: %w", phone, err)
	}
	return nil
}

// IsKnownContact reports whether a phone number is in the contact directory.
func (s *PostgresStore) IsKnownContact(phone string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM contacts WHERE phone = $1`, phone).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("PostgresStore IsKnownContact failed", "error", err, "phone", phone)
		return false, fmt.Errorf("failed to look up contact %s: %w", phone, err)
	}
	return true, nil
}

// RecordMessage appends a terminal delivery outcome to the message log.
func (s *PostgresStore) RecordMessage(rec models.MessageRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO message_log (recipient, channel, status, reason, time) VALUES ($1, $2, $3, $4, $5)`,
		rec.Recipient, rec.Channel, rec.Status, rec.Reason, rec.Time,
	)
	if err != nil {
		slog.Error("PostgresStore RecordMessage failed", "error", err, "recipient", rec.Recipient)
		return fmt.Errorf("failed to insert message record for %s: %w", rec.Recipient, err)
	}
	slog.Debug("PostgresStore RecordMessage succeeded", "recipient", rec.Recipient, "channel", rec.Channel, "status", rec.Status)
	return nil
}

// ListMessages returns the most recent delivery log entries, newest first.
func (s *PostgresStore) ListMessages(limit int) ([]models.MessageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT recipient, channel, status, reason, time FROM message_log ORDER BY id DESC LIMIT $1`, limit,
	)
	if err != nil {
		slog.Error("PostgresStore ListMessages failed", "error", err)
		return nil, fmt.Errorf("failed to query message log: %w", err)
	}
	defer rows.Close()
	return scanMessageRecords(rows)
}

// Close releases the underlying database resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
