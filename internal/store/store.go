// Package store provides storage backends for CallBridge.
//
// It persists the local contact directory and the message delivery log, with
// SQLite for single-device deployments and PostgreSQL for shared ones.
package store

import (
	"strings"
	"sync"

	"github.com/ortholink/callbridge/internal/models"
)

// Store is the persistence interface shared by the contact directory and the
// message delivery log.
type Store interface {
	// AddContact records a phone number as a known contact.
	AddContact(phone string) error

	// IsKnownContact reports whether a phone number is in the contact directory.
	IsKnownContact(phone string) (bool, error)

	// RecordMessage appends a terminal delivery outcome to the message log.
	RecordMessage(rec models.MessageRecord) error

	// ListMessages returns the most recent delivery log entries, newest first.
	ListMessages(limit int) ([]models.MessageRecord, error)

	// Close releases the underlying database resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite3" otherwise (file paths are treated as SQLite databases).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore is a simple in-memory store used by tests and as a default
// when no DSN is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	contacts map[string]struct{}
	messages []models.MessageRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{contacts: make(map[string]struct{})}
}

// AddContact records a phone number as a known contact.
func (s *InMemoryStore) AddContact(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[phone] = struct{}{}
	return nil
}

// IsKnownContact reports whether a phone number is in the contact directory.
func (s *InMemoryStore) IsKnownContact(phone string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.contacts[phone]
	return ok, nil
}

// RecordMessage appends a terminal delivery outcome to the message log.
func (s *InMemoryStore) RecordMessage(rec models.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, rec)
	return nil
}

// ListMessages returns the most recent delivery log entries, newest first.
func (s *InMemoryStore) ListMessages(limit int) ([]models.MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.messages)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.MessageRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.messages[i])
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
