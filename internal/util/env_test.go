package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{"unset uses default", "", true, true},
		{"true", "true", false, true},
		{"yes", "YES", false, true},
		{"on", "on", false, true},
		{"one", "1", false, true},
		{"false", "false", true, false},
		{"off", "off", true, false},
		{"zero", "0", true, false},
		{"garbage uses default", "maybe", true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("UTIL_TEST_BOOL", tc.value)
			if got := ParseBoolEnv("UTIL_TEST_BOOL", tc.def); got != tc.expected {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tc.value, tc.def, got, tc.expected)
			}
		})
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("UTIL_TEST_INT", "42")
	if got := ParseIntEnv("UTIL_TEST_INT", 7); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
	t.Setenv("UTIL_TEST_INT", "not a number")
	if got := ParseIntEnv("UTIL_TEST_INT", 7); got != 7 {
		t.Errorf("Expected default 7, got %d", got)
	}
	t.Setenv("UTIL_TEST_INT", "")
	if got := ParseIntEnv("UTIL_TEST_INT", 7); got != 7 {
		t.Errorf("Expected default 7 for unset, got %d", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("UTIL_TEST_DUR", "90s")
	if got := ParseDurationEnv("UTIL_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("Expected 90s, got %v", got)
	}
	t.Setenv("UTIL_TEST_DUR", "soon")
	if got := ParseDurationEnv("UTIL_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("Expected default, got %v", got)
	}
}
