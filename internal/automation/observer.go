// Package automation drives the external chat application through its
// observable UI surface.
//
// No programmatic send API exists for the chat application, so a templated
// message is delivered by launching the app with a pre-filled composer,
// watching its UI for error dialogs or the send affordance, and clicking
// send. Failures retry within a fixed budget and then fall back to a
// guaranteed-delivery text-message channel: a message the user asked to send
// is never silently dropped.
package automation

import "context"

// Element is an opaque handle to a node of the observed UI tree.
type Element interface {
	// Role returns the element's widget class or accessibility role.
	Role() string
}

// UIEvent is a UI-change notification from the observed application. The
// controller re-inspects the UI tree on every notification, so the event
// itself carries no payload beyond its occurrence.
type UIEvent struct{}

// Observer is the controller's entire view of the external application. It
// abstracts over whatever accessibility/inspection mechanism the target
// platform offers.
type Observer interface {
	// Events returns the stream of UI-change notifications.
	Events() <-chan UIEvent

	// FindByID locates an element by its resource identifier.
	FindByID(id string) (Element, bool)

	// FindByText locates an element containing the given text.
	FindByText(text string) (Element, bool)

	// Click performs a virtual click and reports whether it was accepted.
	Click(el Element) bool

	// NavigateBack issues a back-navigation action.
	NavigateBack()
}

// Launcher opens the external chat application with a pre-filled message via
// its deep-link URL.
type Launcher interface {
	Launch(ctx context.Context, phone, message string) error
}

// Fallback is the guaranteed-delivery channel used when UI automation cannot
// complete.
type Fallback interface {
	// CanSendDirect reports whether a direct text message can be sent without
	// further UI automation.
	CanSendDirect() bool

	// SendDirectMessage sends a text message directly (best-effort, no
	// delivery receipt).
	SendDirectMessage(ctx context.Context, phone, message string) error

	// OpenMessageComposer opens the platform's text-composition surface
	// pre-filled with phone and message; delivery is user-driven.
	OpenMessageComposer(ctx context.Context, phone, message string) error
}
