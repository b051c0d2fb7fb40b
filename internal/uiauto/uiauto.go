// Package uiauto implements UI observation and control over a Chrome-hosted
// chat session using the DevTools protocol. It satisfies the automation
// package's Observer and Launcher interfaces against WhatsApp Web.
package uiauto

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/ortholink/callbridge/internal/automation"
)

// DefaultPollInterval is how often the observer emits a UI-change
// notification while a page is open.
const DefaultPollInterval = 400 * time.Millisecond

// DefaultLookupTimeout bounds each element query against the live page.
const DefaultLookupTimeout = 2 * time.Second

const chatBaseURL = "https://web.whatsapp.com/send"

// Opts holds web observer configuration options.
type Opts struct {
	// DebuggerURL attaches to an already-running Chrome instead of
	// launching one.
	DebuggerURL string
	// Headless controls the launched browser's display mode.
	Headless bool
	// PollInterval is the UI-change notification cadence.
	PollInterval time.Duration
	// LookupTimeout bounds individual element queries.
	LookupTimeout time.Duration
}

// Option configures web observer options.
type Option func(*Opts)

// WithDebuggerURL attaches to an existing Chrome DevTools endpoint.
func WithDebuggerURL(u string) Option {
	return func(o *Opts) { o.DebuggerURL = u }
}

// WithHeadless sets the launched browser's display mode.
func WithHeadless(headless bool) Option {
	return func(o *Opts) { o.Headless = headless }
}

// WithPollInterval overrides the UI-change notification cadence.
func WithPollInterval(d time.Duration) Option {
	return func(o *Opts) { o.PollInterval = d }
}

// WithLookupTimeout overrides the element query timeout.
func WithLookupTimeout(d time.Duration) Option {
	return func(o *Opts) { o.LookupTimeout = d }
}

// WebMarkers returns the automation landmark set for the WhatsApp Web UI.
// Element IDs resolve against data-testid attributes; the Android widget
// roles give way to HTML roles.
func WebMarkers() automation.Markers {
	m := automation.DefaultMarkers()
	m.SendButtonRoles = []string{"button", "span", "div"}
	return m
}

// webElement wraps a live DOM node handle.
type webElement struct {
	el   *rod.Element
	role string
}

func (e *webElement) Role() string { return e.role }

// WebObserver drives a WhatsApp Web tab over the DevTools protocol.
type WebObserver struct {
	opts Opts

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
	events  chan automation.UIEvent
	stop    context.CancelFunc
}

// NewWebObserver creates an unconnected observer; call Start before use.
func NewWebObserver(options ...Option) *WebObserver {
	opts := Opts{
		PollInterval:  DefaultPollInterval,
		LookupTimeout: DefaultLookupTimeout,
	}
	for _, opt := range options {
		opt(&opts)
	}
	return &WebObserver{
		opts:   opts,
		events: make(chan automation.UIEvent, 16),
	}
}

// Start connects to Chrome (attaching to DebuggerURL when set, launching
// otherwise) and begins emitting UI-change notifications.
func (w *WebObserver) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.browser != nil {
		return nil
	}

	controlURL := w.opts.DebuggerURL
	if controlURL == "" {
		u, err := launcher.New().Headless(w.opts.Headless).Launch()
		if err != nil {
			return fmt.Errorf("failed to launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to chrome: %w", err)
	}
	w.browser = browser

	runCtx, cancel := context.WithCancel(ctx)
	w.stop = cancel
	go w.notifyLoop(runCtx)

	slog.Info("WebObserver connected", "controlURL", controlURL)
	return nil
}

// Stop severs the browser connection and closes the event stream.
func (w *WebObserver) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		w.stop()
		w.stop = nil
	}
	if w.browser != nil {
		if err := w.browser.Close(); err != nil {
			slog.Warn("WebObserver browser close failed", "error", err)
		}
		w.browser = nil
		w.page = nil
	}
}

// notifyLoop emits a notification per poll tick while a page is open. The
// DevTools protocol has no cross-frame mutation event cheap enough to
// subscribe to for this UI, so the observer polls and lets the controller
// re-inspect.
func (w *WebObserver) notifyLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	defer close(w.events)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			open := w.page != nil
			w.mu.Unlock()
			if !open {
				continue
			}
			select {
			case w.events <- automation.UIEvent{}:
			default:
				// Controller hasn't drained the last one; it will
				// re-inspect anyway.
			}
		}
	}
}

// Events returns the UI-change notification stream.
func (w *WebObserver) Events() <-chan automation.UIEvent {
	return w.events
}

// Launch opens the chat deep link with a pre-filled message for phone.
func (w *WebObserver) Launch(ctx context.Context, phone, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.browser == nil {
		return fmt.Errorf("observer not started")
	}

	target := fmt.Sprintf("%s?phone=%s&text=%s", chatBaseURL, url.QueryEscape(phone), url.QueryEscape(message))
	if w.page == nil {
		page, err := w.browser.Page(proto.TargetCreateTarget{URL: target})
		if err != nil {
			return fmt.Errorf("failed to open chat page: %w", err)
		}
		w.page = page.Context(ctx)
	} else if err := w.page.Context(ctx).Navigate(target); err != nil {
		return fmt.Errorf("failed to navigate to chat: %w", err)
	}
	if err := w.page.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("failed to load chat page: %w", err)
	}
	slog.Info("WebObserver opened chat", "phone", phone)
	return nil
}

// FindByID locates an element by its data-testid attribute.
func (w *WebObserver) FindByID(id string) (automation.Element, bool) {
	page := w.currentPage()
	if page == nil {
		return nil, false
	}
	selector := fmt.Sprintf("[data-testid=%q]", id)
	has, el, err := page.Timeout(w.opts.LookupTimeout).Has(selector)
	if err != nil || !has {
		return nil, false
	}
	return w.wrap(el), true
}

// FindByText locates an element whose text content contains text.
func (w *WebObserver) FindByText(text string) (automation.Element, bool) {
	page := w.currentPage()
	if page == nil {
		return nil, false
	}
	xpath := fmt.Sprintf("//*[contains(normalize-space(.), %s)][not(.//*[contains(normalize-space(.), %s)])]",
		xpathLiteral(text), xpathLiteral(text))
	has, el, err := page.Timeout(w.opts.LookupTimeout).HasX(xpath)
	if err != nil || !has {
		return nil, false
	}
	return w.wrap(el), true
}

// Click performs a left click on the element.
func (w *WebObserver) Click(el automation.Element) bool {
	we, ok := el.(*webElement)
	if !ok || we.el == nil {
		return false
	}
	if err := we.el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		slog.Warn("WebObserver click failed", "error", err)
		return false
	}
	return true
}

// NavigateBack walks the tab's history back one entry.
func (w *WebObserver) NavigateBack() {
	page := w.currentPage()
	if page == nil {
		return
	}
	if err := page.NavigateBack(); err != nil {
		slog.Warn("WebObserver back navigation failed", "error", err)
	}
}

func (w *WebObserver) currentPage() *rod.Page {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.page
}

// wrap resolves the element's role: explicit role attribute first, tag name
// otherwise.
func (w *WebObserver) wrap(el *rod.Element) *webElement {
	role := ""
	if attr, err := el.Attribute("role"); err == nil && attr != nil {
		role = *attr
	}
	if role == "" {
		if node, err := el.Describe(0, false); err == nil && node != nil {
			role = strings.ToLower(node.LocalName)
		}
	}
	return &webElement{el: el, role: role}
}

// xpathLiteral quotes s for embedding in an XPath expression. XPath 1.0 has
// no escape sequence for quotes, so strings containing both kinds are built
// with concat.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+part+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
