// Package contacts resolves phone numbers against the local contact
// directory.
//
// Overlay policy depends on this lookup: numbers present in the directory
// suppress the caller overlay entirely. Lookups fail open toward "unknown"
// so a permission or I/O error shows information rather than silence.
package contacts

import (
	"context"
	"log/slog"

	"github.com/ortholink/callbridge/internal/models"
	"github.com/ortholink/callbridge/internal/store"
)

// Directory resolves a phone number to known/unknown.
type Directory interface {
	// IsKnown reports whether the canonical phone number belongs to a saved contact.
	IsKnown(ctx context.Context, phone string) (bool, error)
}

// StoreDirectory is a Directory backed by the persistence layer.
type StoreDirectory struct {
	store store.Store
}

// NewStoreDirectory creates a Directory backed by a Store.
func NewStoreDirectory(st store.Store) *StoreDirectory {
	return &StoreDirectory{store: st}
}

// IsKnown looks up the canonical form of the number in the contact table.
func (d *StoreDirectory) IsKnown(ctx context.Context, phone string) (bool, error) {
	canonical, err := models.CanonicalizePhone(phone)
	if err != nil {
		return false, err
	}
	return d.store.IsKnownContact(canonical)
}

// FailOpen wraps a Directory so any lookup error resolves to "unknown".
type FailOpen struct {
	inner Directory
}

// NewFailOpen wraps a Directory with the fail-open policy.
func NewFailOpen(inner Directory) *FailOpen {
	return &FailOpen{inner: inner}
}

// IsKnown returns the inner result, or false when the lookup errs.
func (f *FailOpen) IsKnown(ctx context.Context, phone string) (bool, error) {
	known, err := f.inner.IsKnown(ctx, phone)
	if err != nil {
		slog.Warn("ContactDirectory lookup failed, treating caller as unknown", "error", err, "phone", phone)
		return false, nil
	}
	return known, nil
}
