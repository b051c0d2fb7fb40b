package automation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ortholink/callbridge/internal/models"
	"github.com/ortholink/callbridge/internal/timer"
)

// State identifies the controller's position in its delivery lifecycle.
type State string

const (
	StateIdle          State = "idle"
	StateArmed         State = "armed"
	StateObserving     State = "observing"
	StateSending       State = "sending"
	StateErrorHandling State = "error_handling"
	StateRetrying      State = "retrying"
)

// UI interaction timing. The chat application renders a link preview before
// the send button becomes reliably clickable, hence the longer delay for
// messages carrying a URL.
const (
	SendDelay        = 500 * time.Millisecond
	LinkPreviewDelay = 2500 * time.Millisecond

	BackDelay = 500 * time.Millisecond

	FirstBackAfterSendDelay  = 1 * time.Second
	SecondBackAfterSendDelay = 1500 * time.Millisecond
)

// Markers is the set of UI landmarks the controller looks for when it
// inspects the observed application's tree.
type Markers struct {
	// SendButtonID is the resource identifier of the send affordance.
	SendButtonID string
	// SendButtonText is the fallback text match for the send affordance.
	SendButtonText string
	// SendButtonRoles restricts the text match to clickable widget roles.
	SendButtonRoles []string

	// UnreachableText marks the recipient-not-on-service dialog. Terminal:
	// retrying cannot help.
	UnreachableText string
	// ConnectionText marks the transient connection-failure dialog.
	ConnectionText string
	// OfflineText marks the device-offline banner.
	OfflineText string

	// DismissText is the label of the dialog dismiss button.
	DismissText string
}

// DefaultMarkers returns the landmark set for the stock chat application UI.
func DefaultMarkers() Markers {
	return Markers{
		SendButtonID:    "send",
		SendButtonText:  "Send",
		SendButtonRoles: []string{"ImageButton", "ImageView", "Button"},
		UnreachableText: "on WhatsApp",
		ConnectionText:  "Couldn't connect",
		OfflineText:     "internet",
		DismissText:     "OK",
	}
}

// Recorder persists terminal delivery outcomes.
type Recorder interface {
	RecordMessage(rec models.MessageRecord) error
}

// Controller holds at most one pending automation request and works it to a
// terminal outcome: sent through the chat UI, delivered via fallback, or
// explicitly cancelled. It implements the overlay's message-arming surface.
//
// All state transitions are serialized by an internal mutex; UI events
// arriving while an action sequence is in flight are ignored rather than
// queued, since each event is only a trigger to re-inspect the current tree.
type Controller struct {
	observer Observer
	launcher Launcher
	fallback Fallback
	recorder Recorder
	timer    timer.Timer
	markers  Markers

	mu             sync.Mutex
	state          State
	req            *models.AutomationRequest
	shouldSend     bool
	actionInFlight bool

	// baseCtx backs timer-driven operations that outlive the call that
	// scheduled them. Set by Start.
	baseCtx context.Context
}

// Option configures a Controller.
type Option func(*Controller)

// WithMarkers overrides the default UI landmark set.
func WithMarkers(m Markers) Option {
	return func(c *Controller) { c.markers = m }
}

// WithRecorder sets the delivery-outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// NewController creates a controller over the given collaborators.
func NewController(obs Observer, launcher Launcher, fallback Fallback, tm timer.Timer, opts ...Option) *Controller {
	c := &Controller{
		observer: obs,
		launcher: launcher,
		fallback: fallback,
		timer:    tm,
		markers:  DefaultMarkers(),
		state:    StateIdle,
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins consuming UI events until ctx is cancelled or the observer's
// event stream closes.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()
	go c.run(ctx)
}

func (c *Controller) run(ctx context.Context) {
	slog.Debug("Controller event loop started")
	events := c.observer.Events()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Controller event loop stopped", "reason", ctx.Err())
			return
		case _, ok := <-events:
			if !ok {
				slog.Debug("Controller observer stream closed")
				return
			}
			c.OnUIChanged()
		}
	}
}

// Arm registers req as the pending automation request and launches the chat
// application. Returns models.ErrAutomationBusy if a request is already
// pending; the caller's request is rejected, never queued.
func (c *Controller) Arm(ctx context.Context, req *models.AutomationRequest) error {
	if req == nil || req.Phone == "" {
		return models.ErrEmptyRecipient
	}
	if req.Message == "" {
		return models.ErrEmptyMessage
	}

	c.mu.Lock()
	if c.req != nil {
		c.mu.Unlock()
		return models.ErrAutomationBusy
	}
	c.req = req
	c.shouldSend = req.AutoSend
	c.actionInFlight = false
	c.state = StateArmed
	c.mu.Unlock()

	slog.Info("Controller armed", "phone", req.Phone, "autoSend", req.AutoSend, "containsLink", req.ContainsLink)

	if err := c.launcher.Launch(ctx, req.Phone, req.Message); err != nil {
		c.mu.Lock()
		c.clearLocked()
		c.mu.Unlock()
		return fmt.Errorf("failed to launch chat application: %w", err)
	}

	c.mu.Lock()
	if c.req == req {
		c.state = StateObserving
	}
	c.mu.Unlock()
	return nil
}

// Cancel discards the pending request, if any. Safe to call at any time.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.req != nil {
		slog.Info("Controller cancelled", "phone", c.req.Phone)
	}
	c.clearLocked()
}

// Status reports the controller's current state for diagnostics.
func (c *Controller) Status() (State, bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	retries := 0
	if c.req != nil {
		retries = c.req.RetryCount
	}
	return c.state, c.req != nil, retries
}

// OnUIChanged re-inspects the observed UI tree and advances the delivery
// lifecycle. Called once per UI-change notification; no-ops unless a request
// is armed for automatic sending and no action sequence is in flight.
func (c *Controller) OnUIChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.req == nil || !c.shouldSend || c.actionInFlight {
		return
	}
	defer c.recoverLocked("ui inspection")

	c.state = StateObserving

	// Error indicators take priority over the send affordance: a dialog
	// covering the composer means clicking send would be futile.
	if _, ok := c.observer.FindByText(c.markers.UnreachableText); ok {
		slog.Warn("Controller recipient unreachable", "phone", c.req.Phone)
		c.beginErrorHandlingLocked(models.ReasonUnreachable)
		return
	}
	if _, ok := c.observer.FindByText(c.markers.ConnectionText); ok {
		slog.Warn("Controller connection failure", "phone", c.req.Phone, "retryCount", c.req.RetryCount)
		c.handleRetryableLocked(models.ReasonConnection)
		return
	}
	if _, ok := c.observer.FindByText(c.markers.OfflineText); ok {
		slog.Warn("Controller device offline", "phone", c.req.Phone, "retryCount", c.req.RetryCount)
		c.handleRetryableLocked(models.ReasonOffline)
		return
	}

	if _, ok := c.findSendButtonLocked(); ok {
		c.state = StateSending
		c.actionInFlight = true
		delay := SendDelay
		if c.req.ContainsLink {
			delay = LinkPreviewDelay
		}
		slog.Debug("Controller send affordance found", "phone", c.req.Phone, "delay", delay)
		if _, err := c.timer.ScheduleAfter(delay, c.performSend); err != nil {
			slog.Error("Controller failed to schedule send", "error", err)
			c.actionInFlight = false
		}
	}
}

// findSendButtonLocked locates the send affordance by resource ID first,
// falling back to a text match restricted to clickable roles.
func (c *Controller) findSendButtonLocked() (Element, bool) {
	if el, ok := c.observer.FindByID(c.markers.SendButtonID); ok {
		return el, true
	}
	el, ok := c.observer.FindByText(c.markers.SendButtonText)
	if !ok {
		return nil, false
	}
	for _, role := range c.markers.SendButtonRoles {
		if el.Role() == role {
			return el, true
		}
	}
	return nil, false
}

// performSend clicks the send affordance after the stabilization delay, then
// backs out of the application.
func (c *Controller) performSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.recoverLocked("send sequence")

	if c.req == nil {
		c.actionInFlight = false
		c.state = StateIdle
		return
	}
	el, ok := c.findSendButtonLocked()
	if !ok {
		slog.Error("Controller send affordance vanished before click", "phone", c.req.Phone)
		c.actionInFlight = false
		c.state = StateObserving
		return
	}
	if !c.observer.Click(el) {
		slog.Error("Controller send click rejected", "phone", c.req.Phone)
		c.actionInFlight = false
		c.state = StateObserving
		return
	}

	slog.Info("Controller message sent", "phone", c.req.Phone, "retryCount", c.req.RetryCount)
	c.shouldSend = false
	c.recordLocked(models.MessageRecord{
		Recipient: c.req.Phone,
		Channel:   models.ChannelWhatsApp,
		Status:    models.MessageStatusSent,
	})

	if _, err := c.timer.ScheduleAfter(FirstBackAfterSendDelay, c.observer.NavigateBack); err != nil {
		slog.Error("Controller failed to schedule back navigation", "error", err)
	}
	if _, err := c.timer.ScheduleAfter(SecondBackAfterSendDelay, c.finishSend); err != nil {
		slog.Error("Controller failed to schedule back navigation", "error", err)
		// Without the final step the slot would stay occupied forever.
		c.clearLocked()
	}
}

func (c *Controller) finishSend() {
	c.observer.NavigateBack()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// handleRetryableLocked applies the retry-once-then-fallback policy for
// transient failures.
func (c *Controller) handleRetryableLocked(reason models.FailureReason) {
	if c.req.RetryCount >= models.MaxAutomationRetries {
		c.beginErrorHandlingLocked(reason)
		return
	}
	c.req.RetryCount++
	c.state = StateRetrying
	c.actionInFlight = true

	if el, ok := c.observer.FindByText(c.markers.DismissText); ok {
		c.observer.Click(el)
	}
	c.observer.NavigateBack()
	if _, err := c.timer.ScheduleAfter(BackDelay, c.relaunch); err != nil {
		slog.Error("Controller failed to schedule retry", "error", err)
		c.beginErrorHandlingLocked(reason)
	}
}

// relaunch backs out of the failed conversation screen and re-opens the chat
// application for the retry attempt.
func (c *Controller) relaunch() {
	c.observer.NavigateBack()

	c.mu.Lock()
	req := c.req
	ctx := c.baseCtx
	c.mu.Unlock()
	if req == nil {
		return
	}

	err := c.launcher.Launch(ctx, req.Phone, req.Message)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.req != req {
		return
	}
	if err != nil {
		slog.Error("Controller retry launch failed", "phone", req.Phone, "error", err)
		c.beginErrorHandlingLocked(models.ReasonConnection)
		return
	}
	slog.Info("Controller retrying", "phone", req.Phone, "retryCount", req.RetryCount)
	c.shouldSend = true
	c.actionInFlight = false
	c.state = StateObserving
}

// beginErrorHandlingLocked abandons UI automation: dismiss whatever dialog is
// showing, back out, then hand the message to the fallback channel.
func (c *Controller) beginErrorHandlingLocked(reason models.FailureReason) {
	c.state = StateErrorHandling
	c.actionInFlight = true
	c.shouldSend = false

	if el, ok := c.observer.FindByText(c.markers.DismissText); ok {
		c.observer.Click(el)
	}
	c.observer.NavigateBack()
	if _, err := c.timer.ScheduleAfter(BackDelay, func() { c.deliverFallback(reason) }); err != nil {
		slog.Error("Controller failed to schedule fallback", "error", err)
		c.deliverFallbackLocked(reason)
	}
}

func (c *Controller) deliverFallback(reason models.FailureReason) {
	c.observer.NavigateBack()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliverFallbackLocked(reason)
}

// deliverFallbackLocked sends via the fallback channel and releases the slot.
// The slot is released unconditionally: a panicking fallback must still leave
// the controller able to accept the next request.
func (c *Controller) deliverFallbackLocked(reason models.FailureReason) {
	req := c.req
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Controller fallback panicked", "panic", r)
		}
		c.clearLocked()
	}()
	if req == nil {
		return
	}

	if c.fallback == nil {
		slog.Error("Controller no fallback channel configured", "phone", req.Phone, "reason", reason)
		return
	}

	ctx := c.baseCtx
	if c.fallback.CanSendDirect() {
		err := c.fallback.SendDirectMessage(ctx, req.Phone, req.Message)
		if err == nil {
			slog.Info("Controller fallback sent direct message", "phone", req.Phone, "reason", reason)
			c.recordLocked(models.MessageRecord{
				Recipient: req.Phone,
				Channel:   models.ChannelSMS,
				Status:    models.MessageStatusSent,
				Reason:    string(reason),
			})
			return
		}
		slog.Error("Controller direct fallback failed, opening composer", "phone", req.Phone, "error", err)
	}
	if err := c.fallback.OpenMessageComposer(ctx, req.Phone, req.Message); err != nil {
		slog.Error("Controller fallback composer failed", "phone", req.Phone, "error", err)
		c.recordLocked(models.MessageRecord{
			Recipient: req.Phone,
			Channel:   models.ChannelComposer,
			Status:    models.MessageStatusFailed,
			Reason:    string(reason),
		})
		return
	}
	slog.Info("Controller opened fallback composer", "phone", req.Phone, "reason", reason)
	c.recordLocked(models.MessageRecord{
		Recipient: req.Phone,
		Channel:   models.ChannelComposer,
		Status:    models.MessageStatusOpened,
		Reason:    string(reason),
	})
}

func (c *Controller) recordLocked(rec models.MessageRecord) {
	if c.recorder == nil {
		return
	}
	rec.Time = time.Now().Unix()
	if err := c.recorder.RecordMessage(rec); err != nil {
		slog.Error("Controller failed to record message outcome", "recipient", rec.Recipient, "error", err)
	}
}

// clearLocked releases the request slot and returns to idle.
func (c *Controller) clearLocked() {
	c.req = nil
	c.shouldSend = false
	c.actionInFlight = false
	c.state = StateIdle
}

// recoverLocked absorbs a panic from UI interaction so the controller keeps
// accepting events. The in-flight flag is cleared so the next notification is
// not ignored.
func (c *Controller) recoverLocked(stage string) {
	if r := recover(); r != nil {
		slog.Error("Controller recovered from panic", "stage", stage, "panic", r)
		c.actionInFlight = false
		if c.req == nil {
			c.state = StateIdle
		} else {
			c.state = StateObserving
		}
	}
}
