package overlay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ortholink/callbridge/internal/models"
)

// Package-level errors for overlay operations.
var (
	ErrNoActiveSession = errors.New("no active call session")
	ErrUnknownAction   = errors.New("unknown quick action")
	ErrNotMinimized    = errors.New("overlay is not minimized")
	ErrNotIncoming     = errors.New("call is not an incoming call")
)

// CallControl answers or ends the underlying call session, where the
// platform allows it.
type CallControl interface {
	Accept(ctx context.Context) error
	End(ctx context.Context) error
}

// MessageArmer arms one automation request for a templated message send.
// Arming fails when a request is already in flight.
type MessageArmer interface {
	Arm(ctx context.Context, req *models.AutomationRequest) error
}

// QuickAction is a configured overlay shortcut carrying a templated message.
type QuickAction struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	Message       string `json:"-"`
	SundayMessage string `json:"-"`
	AutoSend      bool   `json:"-"`
}

// messageFor picks the template variant for the given time.
func (a *QuickAction) messageFor(now time.Time) string {
	if a.SundayMessage != "" && now.Weekday() == time.Sunday {
		return a.SundayMessage
	}
	return a.Message
}

// Snapshot is a point-in-time copy of the overlay surface for the rendering
// client.
type Snapshot struct {
	State      models.OverlayState    `json:"state"`
	SessionID  string                 `json:"session_id,omitempty"`
	Phone      string                 `json:"phone,omitempty"`
	Direction  models.Direction       `json:"direction,omitempty"`
	CallerName string                 `json:"caller_name,omitempty"`
	Patients   []models.PatientRecord `json:"patients,omitempty"`
	Event      *EventDetails          `json:"event,omitempty"`
	Actions    []QuickAction          `json:"actions,omitempty"`
}

// Machine is the per-call overlay state machine. Exactly one Machine is live
// per process; a new call session supersedes, never stacks, a prior one.
// All event handling is serialized.
type Machine struct {
	callCtl CallControl
	armer   MessageArmer
	actions []QuickAction
	now     func() time.Time

	mu         sync.Mutex
	state      models.OverlayState
	prevState  models.OverlayState
	sessionID  string
	phone      string
	direction  models.Direction
	callerCtx  *models.CallerContext
	callerName string
	event      *EventDetails
}

// NewMachine creates the overlay state machine in the Hidden state.
func NewMachine(callCtl CallControl, armer MessageArmer, actions []QuickAction) *Machine {
	return &Machine{
		callCtl: callCtl,
		armer:   armer,
		actions: actions,
		now:     time.Now,
		state:   models.OverlayHidden,
	}
}

// StartSession begins a new call session with a content-less placeholder.
// Any prior session is superseded. Content arrives asynchronously via
// DeliverContext.
func (m *Machine) StartSession(sessionID, phone string, direction models.Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionID != "" {
		slog.Info("Overlay superseding prior session", "old_session", m.sessionID, "new_session", sessionID)
		m.teardownLocked()
	}
	m.sessionID = sessionID
	m.phone = phone
	m.direction = direction
	m.state = models.OverlayHidden
	slog.Debug("Overlay session started", "session", sessionID, "direction", direction)
}

// DeliverContext attaches the fetched caller context to the session and
// performs the Hidden -> UnknownCallerStrip/FullInfo transition. A stale
// session id (the call already went idle, or a new call superseded it) makes
// this a no-op.
func (m *Machine) DeliverContext(sessionID string, cctx models.CallerContext) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID != m.sessionID {
		slog.Debug("Overlay dropping stale caller context", "session", sessionID, "current_session", m.sessionID)
		return
	}

	m.callerCtx = &cctx

	// Resolve the caller name from the most recent patient record.
	m.callerName = ""
	if len(cctx.Patients) > 0 {
		m.callerName = cctx.Patients[0].DisplayName()
	}

	// Parse the most recent relevant calendar event for display.
	m.event = nil
	if len(cctx.Events) > 0 {
		ev := cctx.Events[0]
		lines, patientName := ParseEventDescription(ev.Description, m.now())
		m.event = &EventDetails{
			Start:         FormatEventStart(ev.Start),
			Lines:         lines,
			AttachmentURL: ev.AttachmentURL,
		}
		// The event's Patient field names the caller only when nothing else did.
		if m.callerName == "" && patientName != "" {
			m.callerName = patientName
		}
		m.event.PatientName = m.callerName
	}

	switch {
	case m.state == models.OverlayInCall:
		// Call was answered before the fetch settled; keep the in-call surface.
	case m.direction == models.DirectionOutgoing:
		// Outgoing calls are already connecting; only end/minimize apply.
		m.state = models.OverlayInCall
	case len(cctx.Patients) == 0:
		m.state = models.OverlayUnknownCallerStrip
	default:
		m.state = models.OverlayFullInfo
	}
	slog.Info("Overlay content delivered", "session", sessionID, "state", m.state, "patients", len(cctx.Patients), "events", len(cctx.Events))
}

// Accept answers an incoming call. A call-control failure keeps the current
// surface so the user can retry or answer manually.
func (m *Machine) Accept(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionID == "" {
		return ErrNoActiveSession
	}
	if m.direction != models.DirectionIncoming {
		return ErrNotIncoming
	}
	if err := m.callCtl.Accept(ctx); err != nil {
		slog.Error("Overlay failed to answer call", "error", err, "session", m.sessionID)
		return err
	}
	m.state = models.OverlayInCall
	slog.Info("Overlay call accepted", "session", m.sessionID)
	return nil
}

// End attempts to terminate the call session and unconditionally tears down
// the overlay. UI cleanup is never conditioned on call-control success.
func (m *Machine) End(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionID == "" {
		return
	}
	if err := m.callCtl.End(ctx); err != nil {
		slog.Error("Overlay failed to end call, tearing down anyway", "error", err, "session", m.sessionID)
	}
	m.teardownLocked()
}

// Minimize reduces the visual footprint to a restore affordance while
// keeping the call and backing state alive.
func (m *Machine) Minimize() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case models.OverlayFullInfo, models.OverlayUnknownCallerStrip, models.OverlayInCall:
		m.prevState = m.state
		m.state = models.OverlayMinimized
		slog.Debug("Overlay minimized", "session", m.sessionID, "restore_to", m.prevState)
	}
}

// Restore returns a minimized overlay to its previous surface.
func (m *Machine) Restore() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.OverlayMinimized {
		return ErrNotMinimized
	}
	m.state = m.prevState
	slog.Debug("Overlay restored", "session", m.sessionID, "state", m.state)
	return nil
}

// HandleIdle tears down the overlay unconditionally, from any state.
// Tearing down an already-hidden overlay is a no-op.
func (m *Machine) HandleIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionID == "" && m.state == models.OverlayHidden {
		return
	}
	slog.Info("Overlay teardown on idle", "session", m.sessionID)
	m.teardownLocked()
}

// TriggerQuickAction arms exactly one AutomationRequest for the given action
// and minimizes the overlay: the automation runs in the external application,
// which needs foreground focus.
func (m *Machine) TriggerQuickAction(ctx context.Context, actionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionID == "" {
		return ErrNoActiveSession
	}
	var action *QuickAction
	for i := range m.actions {
		if m.actions[i].ID == actionID {
			action = &m.actions[i]
			break
		}
	}
	if action == nil {
		return ErrUnknownAction
	}

	req, err := models.NewAutomationRequest(m.phone, action.messageFor(m.now()), action.AutoSend)
	if err != nil {
		return err
	}
	if err := m.armer.Arm(ctx, req); err != nil {
		slog.Error("Overlay failed to arm automation request", "error", err, "action", actionID)
		return err
	}

	if m.state != models.OverlayMinimized && m.state != models.OverlayHidden {
		m.prevState = m.state
	}
	m.state = models.OverlayMinimized
	slog.Info("Overlay quick action armed", "session", m.sessionID, "action", actionID, "auto_send", action.AutoSend)
	return nil
}

// Snapshot returns a copy of the current overlay surface.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:      m.state,
		SessionID:  m.sessionID,
		Phone:      m.phone,
		Direction:  m.direction,
		CallerName: m.callerName,
		Event:      m.event,
		Actions:    m.actions,
	}
	if m.callerCtx != nil {
		snap.Patients = append([]models.PatientRecord(nil), m.callerCtx.Patients...)
	}
	return snap
}

// teardownLocked resets all per-session state. Must hold m.mu. Safe to call
// repeatedly.
func (m *Machine) teardownLocked() {
	m.state = models.OverlayHidden
	m.prevState = models.OverlayHidden
	m.sessionID = ""
	m.phone = ""
	m.direction = ""
	m.callerCtx = nil
	m.callerName = ""
	m.event = nil
}
