// Package overlay owns the per-call overlay state machine.
//
// This file parses calendar event descriptions into displayable detail
// lines. Descriptions carry free-text "Key: Value" lines; contact and
// payment bookkeeping keys are suppressed, a Patient key can resolve an
// otherwise-unknown caller name, and a DOB is shown as an age rather than a
// raw date.
package overlay

import (
	"fmt"
	"strings"
	"time"
)

// dobLayout is the day/month/year format used in event descriptions.
const dobLayout = "02/01/2006"

// EventDetails is the parsed, display-ready form of a calendar event.
type EventDetails struct {
	Start         string   `json:"start"`
	Lines         []string `json:"lines"`
	PatientName   string   `json:"patient_name,omitempty"`
	AttachmentURL string   `json:"attachment_url,omitempty"`
}

// suppressedKeys are bookkeeping fields never shown on the overlay.
var suppressedKeys = map[string]bool{
	"phone":    true,
	"sms":      true,
	"whatsapp": true,
	"payment":  true,
}

// ParseEventDescription splits an event description into key/value display
// lines. The Patient key is captured separately instead of displayed; a DOB
// key is converted to an age in whole years against now.
func ParseEventDescription(description string, now time.Time) ([]string, string) {
	var (
		lines       []string
		patientName string
	)
	for _, line := range strings.Split(description, "\n") {
		key, value, found := strings.Cut(line, ": ")
		if !found {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch lower := strings.ToLower(key); {
		case suppressedKeys[lower]:
			continue
		case lower == "patient":
			patientName = value
		case lower == "dob":
			if age, ok := AgeFromDOB(value, now); ok {
				lines = append(lines, fmt.Sprintf("Age: %d", age))
			} else {
				// Unparseable date of birth is shown as-is.
				lines = append(lines, key+": "+value)
			}
		default:
			if value != "" {
				lines = append(lines, key+": "+value)
			}
		}
	}
	return lines, patientName
}

// AgeFromDOB computes the age in whole years for a day/month/year date of
// birth, counting a year only once the birthday has passed.
func AgeFromDOB(value string, now time.Time) (int, bool) {
	dob, err := time.Parse(dobLayout, value)
	if err != nil {
		return 0, false
	}
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age, true
}

// FormatEventStart renders an ISO timestamp as "2006-01-02 15:04", falling
// back to the raw value when it is shorter than expected.
func FormatEventStart(start string) string {
	s := strings.Replace(start, "T", " ", 1)
	if len(s) >= 16 {
		return s[:16]
	}
	return s
}
