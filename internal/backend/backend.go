// Package backend wraps the clinic's document-oriented HTTPS backend.
//
// It provides the two caller-context lookups (patient search and calendar
// search) plus the consultation listing used by the pending summary. All
// calls are single-attempt keyed lookups authenticated with a static bearer
// token; retry policy belongs to the callers, not this layer.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ortholink/callbridge/internal/models"
)

// Default configuration constants.
const (
	// DefaultTimeout bounds a single backend request.
	DefaultTimeout = 10 * time.Second

	searchPatientsPath = "/functions/v1/search-patients"
	searchCalendarPath = "/functions/v1/search-calendar-events"
	consultationsPath  = "/functions/v1/get-consultations"
)

// Opts holds configuration options for the backend client.
type Opts struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Option defines a configuration option for the backend client.
type Option func(*Opts)

// WithBaseURL sets the backend base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithAPIKey sets the static API key used for both the apikey header and the
// bearer token.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithHTTPClient overrides the HTTP client (used by tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client is the clinic backend API client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a backend client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL must be provided")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("backend API key must be provided")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	slog.Debug("Backend client configured", "base_url", cfg.BaseURL, "api_key_set", cfg.APIKey != "")
	return &Client{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, http: httpClient}, nil
}

// searchRequest is the patient-search request body.
type searchRequest struct {
	SearchTerm string `json:"searchTerm"`
}

// calendarRequest is the calendar-search request body.
type calendarRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// calendarResponse wraps the calendar-search response body.
type calendarResponse struct {
	CalendarEvents []models.CalendarEvent `json:"calendarEvents"`
}

// consultationsRequest is the consultation-listing request body.
type consultationsRequest struct {
	Date string `json:"date"`
}

// consultationsResponse wraps the consultation-listing response body.
type consultationsResponse struct {
	Consultations []models.Consultation `json:"consultations"`
}

// SearchPatients looks up all patient records matching a canonical phone
// number, as returned by the backend (unordered).
func (c *Client) SearchPatients(ctx context.Context, phone string) ([]models.PatientRecord, error) {
	var patients []models.PatientRecord
	if err := c.post(ctx, searchPatientsPath, searchRequest{SearchTerm: phone}, &patients); err != nil {
		return nil, fmt.Errorf("patient search failed: %w", err)
	}
	slog.Debug("Backend SearchPatients succeeded", "phone", phone, "count", len(patients))
	return patients, nil
}

// SearchCalendarEvents looks up calendar events whose description references
// a canonical phone number.
func (c *Client) SearchCalendarEvents(ctx context.Context, phone string) ([]models.CalendarEvent, error) {
	var resp calendarResponse
	if err := c.post(ctx, searchCalendarPath, calendarRequest{PhoneNumber: phone}, &resp); err != nil {
		return nil, fmt.Errorf("calendar search failed: %w", err)
	}
	slog.Debug("Backend SearchCalendarEvents succeeded", "phone", phone, "count", len(resp.CalendarEvents))
	return resp.CalendarEvents, nil
}

// GetConsultations lists the consultations recorded for a given date
// (formatted 2006-01-02).
func (c *Client) GetConsultations(ctx context.Context, date string) ([]models.Consultation, error) {
	var resp consultationsResponse
	if err := c.post(ctx, consultationsPath, consultationsRequest{Date: date}, &resp); err != nil {
		return nil, fmt.Errorf("consultation listing failed: %w", err)
	}
	slog.Debug("Backend GetConsultations succeeded", "date", date, "count", len(resp.Consultations))
	return resp.Consultations, nil
}

// post performs one authenticated JSON POST and decodes the response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("Backend request failed", "path", path, "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a little of the body for diagnostics; the caller only needs the status.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("Backend request returned error status", "path", path, "status", resp.StatusCode, "body", string(snippet))
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
