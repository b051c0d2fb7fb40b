// Package aggregator assembles caller context from the clinic backend.
//
// The patient search and the calendar search run concurrently and are joined
// before anything downstream sees the result: the overlay never receives
// partial context. A failed sub-fetch degrades to an empty sequence with a
// logged failure instead of blocking the other.
package aggregator

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ortholink/callbridge/internal/models"
)

// Backend is the subset of the backend client the aggregator depends on.
type Backend interface {
	SearchPatients(ctx context.Context, phone string) ([]models.PatientRecord, error)
	SearchCalendarEvents(ctx context.Context, phone string) ([]models.CalendarEvent, error)
}

// Aggregator issues the two caller-context queries and joins their results.
type Aggregator struct {
	backend Backend
}

// New creates an Aggregator over a backend client.
func New(backend Backend) *Aggregator {
	return &Aggregator{backend: backend}
}

// Fetch builds the CallerContext for one call session. The phone number is
// canonicalized once; both sub-fetches query the canonical form. Overall
// latency is bounded by the slower of the two queries, not their sum.
// Patients are ordered most-recent-first before delivery.
func (a *Aggregator) Fetch(ctx context.Context, phone string) (models.CallerContext, error) {
	canonical, err := models.CanonicalizePhone(phone)
	if err != nil {
		return models.CallerContext{}, err
	}

	var (
		patients []models.PatientRecord
		events   []models.CalendarEvent
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := a.backend.SearchPatients(gctx, canonical)
		if err != nil {
			// Degrade to empty, never block the join.
			slog.Warn("Aggregator patient search failed, degrading to empty", "error", err, "phone", canonical)
			return nil
		}
		patients = result
		return nil
	})
	g.Go(func() error {
		result, err := a.backend.SearchCalendarEvents(gctx, canonical)
		if err != nil {
			slog.Warn("Aggregator calendar search failed, degrading to empty", "error", err, "phone", canonical)
			return nil
		}
		events = result
		return nil
	})

	// Both goroutines always return nil; Wait is the join point.
	_ = g.Wait()

	sort.SliceStable(patients, func(i, j int) bool {
		return patients[i].CreatedAt > patients[j].CreatedAt
	})

	slog.Debug("Aggregator fetch completed", "phone", canonical, "patients", len(patients), "events", len(events))
	return models.CallerContext{Phone: phone, Patients: patients, Events: events}, nil
}
