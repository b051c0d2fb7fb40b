package overlay

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestAgeFromDOBBirthdayNotYetReached(t *testing.T) {
	age, ok := AgeFromDOB("15/06/1990", date(2024, time.June, 10))
	if !ok {
		t.Fatal("expected DOB to parse")
	}
	if age != 33 {
		t.Errorf("age = %d, want 33 (birthday not yet reached this year)", age)
	}
}

func TestAgeFromDOBBirthdayPassed(t *testing.T) {
	age, ok := AgeFromDOB("15/06/1990", date(2024, time.June, 15))
	if !ok {
		t.Fatal("expected DOB to parse")
	}
	if age != 34 {
		t.Errorf("age = %d, want 34 (birthday reached)", age)
	}
}

func TestAgeFromDOBUnparseable(t *testing.T) {
	if _, ok := AgeFromDOB("June 15th 1990", date(2024, time.June, 10)); ok {
		t.Error("expected unparseable DOB to report !ok")
	}
}

func TestParseEventDescriptionSuppressesBookkeepingKeys(t *testing.T) {
	desc := "Phone: 9876543210\nSMS: yes\nWhatsApp: yes\nPayment: 500\nProcedure: Knee review"
	lines, _ := ParseEventDescription(desc, date(2024, time.June, 10))
	if len(lines) != 1 || lines[0] != "Procedure: Knee review" {
		t.Errorf("lines = %v, want only the procedure line", lines)
	}
}

func TestParseEventDescriptionPatientAndDOB(t *testing.T) {
	desc := "Patient: Asha Rao\nDOB: 15/06/1990\nComplaint: knee pain"
	lines, patient := ParseEventDescription(desc, date(2024, time.June, 10))
	if patient != "Asha Rao" {
		t.Errorf("patient = %q, want Asha Rao", patient)
	}
	want := []string{"Age: 33", "Complaint: knee pain"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("lines[%d] = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestParseEventDescriptionUnparseableDOBShownRaw(t *testing.T) {
	lines, _ := ParseEventDescription("DOB: mid June 1990", date(2024, time.June, 10))
	if len(lines) != 1 || lines[0] != "DOB: mid June 1990" {
		t.Errorf("lines = %v, want raw DOB line", lines)
	}
}

func TestParseEventDescriptionPlainLinesAndEmptyValues(t *testing.T) {
	desc := "Follow up after X-ray\nNotes: \n\nAdvice: rest"
	lines, _ := ParseEventDescription(desc, date(2024, time.June, 10))
	want := []string{"Follow up after X-ray", "Advice: rest"}
	if len(lines) != len(want) || lines[0] != want[0] || lines[1] != want[1] {
		t.Errorf("lines = %v, want %v", lines, want)
	}
}

func TestFormatEventStart(t *testing.T) {
	if got := FormatEventStart("2024-06-10T09:30:00"); got != "2024-06-10 09:30" {
		t.Errorf("FormatEventStart = %q, want %q", got, "2024-06-10 09:30")
	}
	if got := FormatEventStart("tomorrow"); got != "tomorrow" {
		t.Errorf("FormatEventStart short input = %q, want raw value", got)
	}
}
