package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ortholink/callbridge/internal/models"
)

// mockBackend lets each sub-fetch be delayed or failed independently.
type mockBackend struct {
	mu sync.Mutex

	patients    []models.PatientRecord
	patientsErr error
	patientsLag time.Duration

	events    []models.CalendarEvent
	eventsErr error
	eventsLag time.Duration

	patientCalls int
	eventCalls   int
}

func (m *mockBackend) SearchPatients(ctx context.Context, phone string) ([]models.PatientRecord, error) {
	m.mu.Lock()
	m.patientCalls++
	m.mu.Unlock()
	if m.patientsLag > 0 {
		time.Sleep(m.patientsLag)
	}
	return m.patients, m.patientsErr
}

func (m *mockBackend) SearchCalendarEvents(ctx context.Context, phone string) ([]models.CalendarEvent, error) {
	m.mu.Lock()
	m.eventCalls++
	m.mu.Unlock()
	if m.eventsLag > 0 {
		time.Sleep(m.eventsLag)
	}
	return m.events, m.eventsErr
}

func TestFetchJoinsBothResults(t *testing.T) {
	backend := &mockBackend{
		patients: []models.PatientRecord{{Name: "Asha Rao", CreatedAt: "2024-05-01T10:00:00"}},
		events:   []models.CalendarEvent{{Start: "2024-06-10T09:30:00", Description: "Review"}},
	}
	agg := New(backend)

	ctx, err := agg.Fetch(context.Background(), "+919876543210")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(ctx.Patients) != 1 || len(ctx.Events) != 1 {
		t.Errorf("context = %d patients, %d events; want 1 and 1", len(ctx.Patients), len(ctx.Events))
	}
	if backend.patientCalls != 1 || backend.eventCalls != 1 {
		t.Errorf("sub-fetch calls = %d, %d; want exactly one each", backend.patientCalls, backend.eventCalls)
	}
}

func TestFetchSortsPatientsMostRecentFirst(t *testing.T) {
	backend := &mockBackend{
		patients: []models.PatientRecord{
			{Name: "Old", CreatedAt: "2021-01-05T08:00:00"},
			{Name: "New", CreatedAt: "2024-05-01T10:00:00"},
			{Name: "Mid", CreatedAt: "2023-11-20T15:30:00"},
		},
	}
	agg := New(backend)

	ctx, err := agg.Fetch(context.Background(), "9876543210")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	want := []string{"New", "Mid", "Old"}
	for i, name := range want {
		if ctx.Patients[i].Name != name {
			t.Fatalf("patient order = %v, want %v", ctx.Patients, want)
		}
	}
}

func TestFetchDegradesFailedSubFetch(t *testing.T) {
	backend := &mockBackend{
		patientsErr: errors.New("backend unavailable"),
		events:      []models.CalendarEvent{{Start: "2024-06-10T09:30:00"}},
	}
	agg := New(backend)

	ctx, err := agg.Fetch(context.Background(), "9876543210")
	if err != nil {
		t.Fatalf("a failed sub-fetch must degrade, not fail the join: %v", err)
	}
	if len(ctx.Patients) != 0 {
		t.Errorf("failed patient search should yield empty sequence, got %d", len(ctx.Patients))
	}
	if len(ctx.Events) != 1 {
		t.Errorf("calendar result should survive the degraded patient search, got %d", len(ctx.Events))
	}
}

func TestFetchRunsSubFetchesConcurrently(t *testing.T) {
	const lag = 100 * time.Millisecond
	backend := &mockBackend{patientsLag: lag, eventsLag: lag}
	agg := New(backend)

	start := time.Now()
	if _, err := agg.Fetch(context.Background(), "9876543210"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	elapsed := time.Since(start)

	// Serialized fetches would take at least 2*lag.
	if elapsed >= 2*lag {
		t.Errorf("fetch took %v, sub-fetches appear serialized", elapsed)
	}
}

func TestFetchRejectsUnusablePhone(t *testing.T) {
	agg := New(&mockBackend{})
	if _, err := agg.Fetch(context.Background(), "not a number"); err == nil {
		t.Error("expected error for phone with no digits")
	}
}
