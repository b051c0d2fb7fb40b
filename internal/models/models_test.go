package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "plain national number", input: "9876543210", want: "9876543210"},
		{name: "formatted number", input: "+91 98765-43210", want: "9876543210"},
		{name: "country prefix stripped", input: "919876543210", want: "9876543210"},
		{name: "prefix kept when length differs", input: "9187654", want: "9187654"},
		{name: "empty", input: "", wantErr: ErrEmptyRecipient},
		{name: "no digits", input: "+- ()", wantErr: ErrInvalidPhoneNumber},
		{name: "too short", input: "12345", wantErr: ErrPhoneNumberTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizePhone(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CanonicalizePhone(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("CanonicalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCallEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   CallEvent
		wantErr error
	}{
		{
			name:  "valid ringing",
			event: CallEvent{Direction: DirectionIncoming, PhoneNumber: "9876543210", State: StateRinging},
		},
		{
			name:  "idle without number",
			event: CallEvent{Direction: DirectionIncoming, State: StateIdle},
		},
		{
			name:  "bare idle transition",
			event: CallEvent{State: StateIdle},
		},
		{
			name:    "ringing without number",
			event:   CallEvent{Direction: DirectionIncoming, State: StateRinging},
			wantErr: ErrEmptyRecipient,
		},
		{
			name:    "bad direction",
			event:   CallEvent{Direction: "sideways", PhoneNumber: "9876543210", State: StateRinging},
			wantErr: ErrInvalidDirection,
		},
		{
			name:    "bad state",
			event:   CallEvent{Direction: DirectionOutgoing, PhoneNumber: "9876543210", State: "holding"},
			wantErr: ErrInvalidCallState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.event.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewAutomationRequestLinkDetection(t *testing.T) {
	req, err := NewAutomationRequest("9876543210", "Directions: http://maps.example.com/clinic", true)
	if err != nil {
		t.Fatalf("NewAutomationRequest returned error: %v", err)
	}
	if !req.ContainsLink {
		t.Error("expected ContainsLink to be true for message with http URL")
	}

	req, err = NewAutomationRequest("9876543210", "Please call back after 5pm", true)
	if err != nil {
		t.Fatalf("NewAutomationRequest returned error: %v", err)
	}
	if req.ContainsLink {
		t.Error("expected ContainsLink to be false for plain message")
	}
	if req.RetryCount != 0 {
		t.Errorf("new request RetryCount = %d, want 0", req.RetryCount)
	}
}

func TestNewAutomationRequestValidation(t *testing.T) {
	if _, err := NewAutomationRequest("", "hello", true); !errors.Is(err, ErrEmptyRecipient) {
		t.Errorf("empty phone: err = %v, want ErrEmptyRecipient", err)
	}
	if _, err := NewAutomationRequest("9876543210", "", true); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("empty message: err = %v, want ErrEmptyMessage", err)
	}
}

func TestFailureReasonRetryable(t *testing.T) {
	if ReasonUnreachable.Retryable() {
		t.Error("unreachable must never be retryable")
	}
	if !ReasonConnection.Retryable() || !ReasonOffline.Retryable() {
		t.Error("connection and offline failures must be retryable")
	}
}

func TestMedicationListUnmarshal(t *testing.T) {
	var rec PatientRecord
	structured := `{"medications": [{"name": "Ibuprofen"}, {"name": "Calcium"}, {"name": ""}]}`
	if err := json.Unmarshal([]byte(structured), &rec); err != nil {
		t.Fatalf("unmarshal structured medications: %v", err)
	}
	names := rec.Medications.Names()
	if len(names) != 2 || names[0] != "Ibuprofen" || names[1] != "Calcium" {
		t.Errorf("Names() = %v, want [Ibuprofen Calcium]", names)
	}

	legacy := `{"medications": "Ibuprofen 400mg"}`
	rec = PatientRecord{}
	if err := json.Unmarshal([]byte(legacy), &rec); err != nil {
		t.Fatalf("unmarshal legacy medications: %v", err)
	}
	names = rec.Medications.Names()
	if len(names) != 1 || names[0] != "Ibuprofen 400mg" {
		t.Errorf("Names() = %v, want [Ibuprofen 400mg]", names)
	}
}

func TestPatientDisplayName(t *testing.T) {
	p := PatientRecord{Name: "Asha Rao", FirstName: "A", LastName: "R"}
	if got := p.DisplayName(); got != "Asha Rao" {
		t.Errorf("DisplayName() = %q, want %q", got, "Asha Rao")
	}
	p = PatientRecord{FirstName: "Asha", LastName: "Rao"}
	if got := p.DisplayName(); got != "Asha Rao" {
		t.Errorf("DisplayName() = %q, want %q", got, "Asha Rao")
	}
	p = PatientRecord{FirstName: "Asha"}
	if got := p.DisplayName(); got != "Asha" {
		t.Errorf("DisplayName() = %q, want %q", got, "Asha")
	}
	p = PatientRecord{}
	if got := p.DisplayName(); got != "" {
		t.Errorf("DisplayName() = %q, want empty", got)
	}
}
