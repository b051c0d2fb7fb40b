// Package store provides storage backends for CallBridge.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ortholink/callbridge/internal/models"
)

// Constants for SQLite store configuration.
const (
	// DefaultDirPermissions defines the default permissions for database directories.
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// AddContact records a phone number as a known contact.
func (s *SQLiteStore) AddContact(phone string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO contacts (phone) VALUES (?)`, phone)
	if err != nil {
		slog.Error("SQLiteStore AddContact failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to insert contact %s: %w", phone, err)
	}
	return nil
}

// IsKnownContact reports whether a phone number is in the contact directory.
func (s *SQLiteStore) IsKnownContact(phone string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM contacts WHERE phone = ?`, phone).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore IsKnownContact failed", "error", err, "phone", phone)
		return false, fmt.Errorf("failed to look up contact %s: %w", phone, err)
	}
	return true, nil
}

// RecordMessage appends a terminal delivery outcome to the message log.
func (s *SQLiteStore) RecordMessage(rec models.MessageRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO message_log (recipient, channel, status, reason, time) VALUES (?, ?, ?, ?, ?)`,
		rec.Recipient, rec.Channel, rec.Status, rec.Reason, rec.Time,
	)
	if err != nil {
		slog.Error("SQLiteStore RecordMessage failed", "error", err, "recipient", rec.Recipient)
		return fmt.Errorf("failed to insert message record for %s: %w", rec.Recipient, err)
	}
	slog.Debug("SQLiteStore RecordMessage succeeded", "recipient", rec.Recipient, "channel", rec.Channel, "status", rec.Status)
	return nil
}

// ListMessages returns the most recent delivery log entries, newest first.
func (s *SQLiteStore) ListMessages(limit int) ([]models.MessageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT recipient, channel, status, reason, time FROM message_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		slog.Error("SQLiteStore ListMessages failed", "error", err)
		return nil, fmt.Errorf("failed to query message log: %w", err)
	}
	defer rows.Close()
	return scanMessageRecords(rows)
}

// Close releases the underlying database resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
