package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ortholink/callbridge/internal/models"
	"github.com/ortholink/callbridge/internal/overlay"
	"github.com/ortholink/callbridge/internal/updates"
)

type mockMonitor struct {
	events []models.CallEvent
	err    error
}

func (m *mockMonitor) HandleCallEvent(ctx context.Context, event models.CallEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

type mockSummary struct {
	stats     []models.LocationStats
	refreshed time.Time
}

func (m *mockSummary) Stats() ([]models.LocationStats, time.Time) {
	return m.stats, m.refreshed
}

type mockChecker struct {
	info updates.Info
	err  error
}

func (m *mockChecker) Check(ctx context.Context) (updates.Info, error) {
	return m.info, m.err
}

type mockLog struct {
	records []models.MessageRecord
	limit   int
}

func (m *mockLog) ListMessages(limit int) ([]models.MessageRecord, error) {
	m.limit = limit
	if limit < len(m.records) {
		return m.records[:limit], nil
	}
	return m.records, nil
}

type nopCallControl struct{}

func (nopCallControl) Accept(ctx context.Context) error { return nil }
func (nopCallControl) End(ctx context.Context) error    { return nil }

type nopArmer struct{}

func (nopArmer) Arm(ctx context.Context, req *models.AutomationRequest) error { return nil }

type testServer struct {
	monitor *mockMonitor
	machine *overlay.Machine
	summary *mockSummary
	checker *mockChecker
	log     *mockLog
	srv     *Server
}

func newTestServer() *testServer {
	ts := &testServer{
		monitor: &mockMonitor{},
		machine: overlay.NewMachine(nopCallControl{}, nopArmer{}, nil),
		summary: &mockSummary{},
		checker: &mockChecker{},
		log:     &mockLog{},
	}
	ts.srv = NewServer(ts.monitor, ts.machine, ts.summary, ts.checker, ts.log)
	return ts
}

func (ts *testServer) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestCallEventsHandler(t *testing.T) {
	ts := newTestServer()

	rec := ts.request(t, http.MethodPost, "/call-events",
		`{"direction":"incoming","phone_number":"9876543210","state":"ringing"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(ts.monitor.events) != 1 || ts.monitor.events[0].State != models.StateRinging {
		t.Errorf("Expected one ringing event, got %+v", ts.monitor.events)
	}
}

func TestCallEventsHandlerRejectsBadRequests(t *testing.T) {
	ts := newTestServer()

	if rec := ts.request(t, http.MethodGet, "/call-events", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", rec.Code)
	}
	if rec := ts.request(t, http.MethodPost, "/call-events", `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid JSON, got %d", rec.Code)
	}

	ts.monitor.err = models.ErrInvalidCallState
	if rec := ts.request(t, http.MethodPost, "/call-events",
		`{"direction":"incoming","phone_number":"9876543210","state":"ringing"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for rejected event, got %d", rec.Code)
	}
}

func TestOverlayHandler(t *testing.T) {
	ts := newTestServer()
	ts.machine.StartSession("session_a", "9876543210", models.DirectionIncoming)

	rec := ts.request(t, http.MethodGet, "/overlay", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("Expected ok status, got %q", resp.Status)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected object result, got %T", resp.Result)
	}
	if result["phone"] != "9876543210" {
		t.Errorf("Expected session phone in snapshot, got %v", result["phone"])
	}
}

func TestOverlayActionHandler(t *testing.T) {
	ts := newTestServer()
	ts.machine.StartSession("session_a", "9876543210", models.DirectionIncoming)

	rec := ts.request(t, http.MethodPost, "/overlay/action", `{"action":"minimize"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if snap := ts.machine.Snapshot(); snap.State != models.OverlayMinimized {
		t.Errorf("Expected minimized overlay, got %v", snap.State)
	}

	rec = ts.request(t, http.MethodPost, "/overlay/action", `{"action":"restore"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for restore, got %d", rec.Code)
	}

	if rec := ts.request(t, http.MethodPost, "/overlay/action", `{"action":"explode"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown action, got %d", rec.Code)
	}
}

func TestOverlayActionConflicts(t *testing.T) {
	ts := newTestServer()

	// Restore without a session conflicts with the overlay state.
	rec := ts.request(t, http.MethodPost, "/overlay/action", `{"action":"restore"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for restore without session, got %d", rec.Code)
	}
}

func TestSummaryHandler(t *testing.T) {
	ts := newTestServer()
	ts.summary.stats = []models.LocationStats{{Location: "Madhapur", Pending: 2, Completed: 1, Total: 3}}
	ts.summary.refreshed = time.Now()

	rec := ts.request(t, http.MethodGet, "/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Madhapur") {
		t.Errorf("Expected summary body to carry locations, got %s", rec.Body.String())
	}
}

func TestUpdatesHandler(t *testing.T) {
	ts := newTestServer()
	ts.checker.info = updates.Info{Available: true, CurrentVersion: "1.0.0", LatestVersion: "1.1.0"}

	rec := ts.request(t, http.MethodGet, "/updates/check", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"latest_version":"1.1.0"`) {
		t.Errorf("Expected update info in body, got %s", rec.Body.String())
	}

	ts.checker.err = errors.New("rate limited")
	if rec := ts.request(t, http.MethodGet, "/updates/check", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 on checker failure, got %d", rec.Code)
	}
}

func TestMessagesHandler(t *testing.T) {
	ts := newTestServer()
	ts.log.records = []models.MessageRecord{
		{Recipient: "9876543210", Channel: models.ChannelWhatsApp, Status: models.MessageStatusSent},
	}

	rec := ts.request(t, http.MethodGet, "/messages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ts.log.limit != defaultMessageLimit {
		t.Errorf("Expected default limit %d, got %d", defaultMessageLimit, ts.log.limit)
	}

	if rec := ts.request(t, http.MethodGet, "/messages?limit=5", ""); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with explicit limit, got %d", rec.Code)
	}
	if ts.log.limit != 5 {
		t.Errorf("Expected limit 5, got %d", ts.log.limit)
	}
	if rec := ts.request(t, http.MethodGet, "/messages?limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative limit, got %d", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	ts := newTestServer()
	if rec := ts.request(t, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from health check, got %d", rec.Code)
	}
}
