// Package models defines the core data structures for CallBridge.
//
// It includes types for telephony call events, caller context assembled from
// the clinic backend, overlay states, and automation requests, which are
// shared across modules.
package models

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Direction identifies whether a call was placed or received on the device.
type Direction string

const (
	// DirectionIncoming marks a call received by the device.
	DirectionIncoming Direction = "incoming"
	// DirectionOutgoing marks a call placed from the device.
	DirectionOutgoing Direction = "outgoing"
)

// TelephonyState is the coarse call state reported by the telephony bridge.
type TelephonyState string

const (
	// StateRinging indicates an incoming call is ringing (or an outgoing call is dialing).
	StateRinging TelephonyState = "ringing"
	// StateActive indicates the call has been answered.
	StateActive TelephonyState = "active"
	// StateIdle indicates no call is in progress.
	StateIdle TelephonyState = "idle"
)

// Validation constants shared across components.
const (
	// MinPhoneDigits is the minimum number of digits a canonical phone number must have.
	MinPhoneDigits = 6
	// CountryPrefix is stripped from canonical numbers when the length indicates it is present.
	CountryPrefix = "91"
	// NationalNumberDigits is the digit count of a national number without country prefix.
	NationalNumberDigits = 10
	// MaxAutomationRetries bounds AutomationRequest.RetryCount.
	MaxAutomationRetries = 1
)

// Error variables for better error handling and testability.
var (
	ErrEmptyRecipient      = errors.New("recipient cannot be empty")
	ErrInvalidPhoneNumber  = errors.New("phone number contains no digits")
	ErrPhoneNumberTooShort = errors.New("phone number is too short")
	ErrInvalidDirection    = errors.New("invalid call direction")
	ErrInvalidCallState    = errors.New("invalid telephony state")
	ErrEmptyMessage        = errors.New("message body cannot be empty")
	ErrAutomationBusy      = errors.New("an automation request is already armed")
	ErrNoAutomationArmed   = errors.New("no automation request is armed")
)

var nonDigitRegex = regexp.MustCompile(`[^0-9]`)

// CanonicalizePhone strips all non-digit characters from a phone number and
// removes the country prefix when the digit count indicates it is present.
// Sub-fetches, contact lookups and automation all key on the canonical form
// so the same caller never resolves to two identities.
func CanonicalizePhone(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyRecipient
	}
	canonical := nonDigitRegex.ReplaceAllString(raw, "")
	if canonical == "" {
		return "", ErrInvalidPhoneNumber
	}
	if len(canonical) < MinPhoneDigits {
		return "", ErrPhoneNumberTooShort
	}
	if strings.HasPrefix(canonical, CountryPrefix) && len(canonical) == len(CountryPrefix)+NationalNumberDigits {
		canonical = canonical[len(CountryPrefix):]
	}
	return canonical, nil
}

// CallEvent is an immutable telephony state transition produced by the
// telephony bridge.
type CallEvent struct {
	Direction   Direction      `json:"direction"`
	PhoneNumber string         `json:"phone_number"`
	State       TelephonyState `json:"state"`
}

// Validate checks a CallEvent received from the telephony bridge. The bridge
// reports idle as a bare state transition, so idle events are exempt from
// the direction and number checks.
func (e *CallEvent) Validate() error {
	switch e.State {
	case StateRinging, StateActive, StateIdle:
	default:
		return ErrInvalidCallState
	}
	if e.State == StateIdle {
		return nil
	}
	switch e.Direction {
	case DirectionIncoming, DirectionOutgoing:
	default:
		return ErrInvalidDirection
	}
	if e.PhoneNumber == "" {
		return ErrEmptyRecipient
	}
	return nil
}

// Medication is a single entry of a patient's medication list.
type Medication struct {
	Name string `json:"name"`
}

// MedicationList unmarshals the backend's medication field, which is either
// a JSON array of objects or a bare string.
type MedicationList []Medication

// UnmarshalJSON accepts both the structured and the legacy free-text shape.
func (m *MedicationList) UnmarshalJSON(data []byte) error {
	var arr []Medication
	if err := json.Unmarshal(data, &arr); err == nil {
		*m = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*m = nil
		return nil
	}
	*m = MedicationList{{Name: s}}
	return nil
}

// Names returns the non-empty medication names, for display.
func (m MedicationList) Names() []string {
	var names []string
	for _, med := range m {
		if med.Name != "" {
			names = append(names, med.Name)
		}
	}
	return names
}

// PatientRecord is a read-only demographic and clinical snapshot from the
// backend. Records are never mutated locally.
type PatientRecord struct {
	ID             string         `json:"id,omitempty"`
	Name           string         `json:"name,omitempty"`
	FirstName      string         `json:"firstName,omitempty"`
	LastName       string         `json:"lastName,omitempty"`
	Location       string         `json:"location,omitempty"`
	CreatedAt      string         `json:"created_at,omitempty"`
	BP             string         `json:"bp,omitempty"`
	Weight         string         `json:"weight,omitempty"`
	Temperature    string         `json:"temperature,omitempty"`
	ReferredBy     string         `json:"referredBy,omitempty"`
	PersonalNote   string         `json:"personalNote,omitempty"`
	Complaints     string         `json:"complaints,omitempty"`
	Findings       string         `json:"findings,omitempty"`
	Investigations string         `json:"investigations,omitempty"`
	Diagnosis      string         `json:"diagnosis,omitempty"`
	Procedure      string         `json:"procedure,omitempty"`
	Advice         string         `json:"advice,omitempty"`
	FollowUp       string         `json:"followup,omitempty"`
	ReferredTo     string         `json:"referredTo,omitempty"`
	Medications    MedicationList `json:"medications,omitempty"`
}

// DisplayName returns the patient's name, falling back to first and last
// name when the backend did not resolve a combined one. Empty when nothing
// is known.
func (p *PatientRecord) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// CalendarEvent is an appointment entry from the calendar backend. The
// description carries free-text "Key: Value" lines.
type CalendarEvent struct {
	Start         string `json:"start"`
	Description   string `json:"description"`
	AttachmentURL string `json:"attachments,omitempty"`
}

// CallerContext is the combined result of the patient and calendar searches
// for one call session. Built exactly once per call, owned by the overlay
// for the duration of the call, discarded on idle.
type CallerContext struct {
	Phone    string
	Patients []PatientRecord
	Events   []CalendarEvent
}

// OverlayState enumerates the visibility/content states of the call overlay.
type OverlayState string

const (
	// OverlayHidden means no overlay surface is presented.
	OverlayHidden OverlayState = "hidden"
	// OverlayUnknownCallerStrip is the reduced strip for callers with no patient records.
	OverlayUnknownCallerStrip OverlayState = "unknown_caller_strip"
	// OverlayFullInfo is the full caller detail surface.
	OverlayFullInfo OverlayState = "full_info"
	// OverlayMinimized keeps the call alive with only a restore affordance.
	OverlayMinimized OverlayState = "minimized"
	// OverlayInCall is the answered-call surface with end/minimize actions only.
	OverlayInCall OverlayState = "in_call"
)

// AutomationRequest is the single-slot, process-wide request driving one
// external-app message send. RetryCount is monotonically non-decreasing and
// bounded by MaxAutomationRetries; only the automation controller mutates it
// after arming.
type AutomationRequest struct {
	Phone        string
	Message      string
	AutoSend     bool
	ContainsLink bool
	RetryCount   int
}

// NewAutomationRequest builds a request for one templated message send.
// Link detection decides the send-click delay later: clicking before a link
// preview finishes rendering can attach a malformed preview.
func NewAutomationRequest(phone, message string, autoSend bool) (*AutomationRequest, error) {
	if phone == "" {
		return nil, ErrEmptyRecipient
	}
	if message == "" {
		return nil, ErrEmptyMessage
	}
	return &AutomationRequest{
		Phone:        phone,
		Message:      message,
		AutoSend:     autoSend,
		ContainsLink: strings.Contains(message, "http"),
	}, nil
}

// FailureReason classifies a terminal automation failure.
type FailureReason string

const (
	// ReasonUnreachable means the recipient is not on the chosen channel. Not transient, never retried.
	ReasonUnreachable FailureReason = "unreachable"
	// ReasonConnection means the external app reported a connection failure.
	ReasonConnection FailureReason = "connection"
	// ReasonOffline means the external app reported no internet connectivity.
	ReasonOffline FailureReason = "offline"
)

// Retryable reports whether the failure may be retried within the budget.
func (r FailureReason) Retryable() bool {
	return r == ReasonConnection || r == ReasonOffline
}

// Channel identifies how a message ultimately left the device.
type Channel string

const (
	// ChannelWhatsApp means the external chat application sent the message via UI automation.
	ChannelWhatsApp Channel = "whatsapp"
	// ChannelSMS means the direct text-message fallback sent it.
	ChannelSMS Channel = "sms"
	// ChannelComposer means the message composer was opened pre-filled; delivery is user-driven.
	ChannelComposer Channel = "composer"
)

// MessageStatus is the terminal outcome recorded in the message log.
type MessageStatus string

const (
	MessageStatusSent   MessageStatus = "sent"
	MessageStatusOpened MessageStatus = "opened"
	MessageStatusFailed MessageStatus = "failed"
)

// MessageRecord is one entry of the delivery log. Every user-requested send
// terminates in exactly one record so no message is silently dropped.
type MessageRecord struct {
	Recipient string        `json:"recipient"`
	Channel   Channel       `json:"channel"`
	Status    MessageStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	Time      int64         `json:"time"`
}

// Consultation is a backend consultation row used by the pending summary.
type Consultation struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Location  string `json:"location,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Consultation status values used by the summary aggregation.
const (
	ConsultationPending         = "pending"
	ConsultationUnderEvaluation = "under_evaluation"
	ConsultationCompleted       = "completed"
)

// LocationStats is the per-location consultation summary.
type LocationStats struct {
	Location  string `json:"location"`
	Pending   int    `json:"pending"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRecorded indicates data was successfully recorded via API.
	APIStatusRecorded APIStatus = "recorded"
)

// APIResponse is the standard JSON envelope for API responses.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Recorded creates a response acknowledging recorded data.
func Recorded(message string) APIResponse {
	return APIResponse{Status: string(APIStatusRecorded), Message: message}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
