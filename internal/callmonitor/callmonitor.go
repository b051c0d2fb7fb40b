// Package callmonitor turns raw telephony state changes into overlay
// sessions. It decides which calls deserve an overlay, starts the session,
// and runs the context fetch in the background so the telephony path never
// blocks.
package callmonitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ortholink/callbridge/internal/models"
	"github.com/ortholink/callbridge/internal/overlay"
)

// DefaultFetchTimeout bounds the background context fetch for one call.
const DefaultFetchTimeout = 15 * time.Second

// ContextFetcher resolves caller context for a phone number.
type ContextFetcher interface {
	Fetch(ctx context.Context, phone string) (models.CallerContext, error)
}

// Directory answers whether a phone number belongs to a saved contact.
type Directory interface {
	IsKnown(ctx context.Context, phone string) (bool, error)
}

// Opts holds monitor configuration options.
type Opts struct {
	FetchTimeout time.Duration
}

// Option configures monitor options.
type Option func(*Opts)

// WithFetchTimeout overrides the background fetch timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Opts) { o.FetchTimeout = d }
}

// Monitor consumes call events and drives the overlay machine.
type Monitor struct {
	fetcher   ContextFetcher
	directory Directory
	machine   *overlay.Machine
	opts      Opts

	mu             sync.Mutex
	activeSession  string
	lastState      models.TelephonyState
	newSessionID   func() string
	pendingFetches sync.WaitGroup
}

// NewMonitor creates a call monitor over the given collaborators.
func NewMonitor(fetcher ContextFetcher, directory Directory, machine *overlay.Machine, opts ...Option) *Monitor {
	o := Opts{FetchTimeout: DefaultFetchTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Monitor{
		fetcher:      fetcher,
		directory:    directory,
		machine:      machine,
		opts:         o,
		newSessionID: func() string { return uuid.NewString() },
	}
}

// HandleCallEvent processes one telephony state change. Ringing and active
// events for unsaved numbers start an overlay session and a background
// context fetch; idle events tear the overlay down. Invalid events are
// logged and dropped.
func (m *Monitor) HandleCallEvent(ctx context.Context, event models.CallEvent) error {
	if err := event.Validate(); err != nil {
		slog.Warn("CallMonitor dropping invalid event", "state", event.State, "error", err)
		return err
	}

	switch event.State {
	case models.StateIdle:
		m.handleIdle()
		return nil
	case models.StateRinging, models.StateActive:
		return m.handleActive(ctx, event)
	default:
		slog.Warn("CallMonitor unknown state", "state", event.State)
		return models.ErrInvalidCallState
	}
}

func (m *Monitor) handleIdle() {
	m.mu.Lock()
	m.activeSession = ""
	m.lastState = models.StateIdle
	m.mu.Unlock()
	m.machine.HandleIdle()
}

func (m *Monitor) handleActive(ctx context.Context, event models.CallEvent) error {
	phone, err := models.CanonicalizePhone(event.PhoneNumber)
	if err != nil {
		slog.Warn("CallMonitor unusable number", "error", err)
		return err
	}

	// An active state following ringing is the same call being answered; the
	// overlay machine already tracks the in-call transition through its
	// own session, so only a fresh call starts one.
	m.mu.Lock()
	if m.activeSession != "" && m.lastState != models.StateIdle {
		m.lastState = event.State
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	known, err := m.directory.IsKnown(ctx, phone)
	if err != nil {
		// Fail open: an unreadable directory must not hide the overlay.
		slog.Warn("CallMonitor contact lookup failed", "error", err)
		known = false
	}
	if known {
		slog.Debug("CallMonitor suppressing overlay for saved contact", "phone", phone)
		m.mu.Lock()
		m.lastState = event.State
		m.mu.Unlock()
		return nil
	}

	sessionID := m.newSessionID()
	m.mu.Lock()
	m.activeSession = sessionID
	m.lastState = event.State
	m.mu.Unlock()

	slog.Info("CallMonitor session started", "sessionID", sessionID, "direction", event.Direction, "state", event.State)
	m.machine.StartSession(sessionID, phone, event.Direction)

	m.pendingFetches.Add(1)
	go m.fetchContext(sessionID, phone)
	return nil
}

// fetchContext runs the backend fetch off the telephony path and delivers
// the result to the overlay; the machine discards it if the session has
// since ended.
func (m *Monitor) fetchContext(sessionID, phone string) {
	defer m.pendingFetches.Done()
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.FetchTimeout)
	defer cancel()

	cctx, err := m.fetcher.Fetch(ctx, phone)
	if err != nil {
		slog.Warn("CallMonitor context fetch failed", "sessionID", sessionID, "error", err)
		cctx = models.CallerContext{Phone: phone}
	}
	m.machine.DeliverContext(sessionID, cctx)
}

// Wait blocks until in-flight context fetches finish. Used in shutdown and
// tests.
func (m *Monitor) Wait() {
	m.pendingFetches.Wait()
}
