package uiauto

import (
	"strings"
	"testing"
)

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Couldn't connect", `"Couldn't connect"`},
		{"no quotes", "internet", "'internet'"},
		{"double quotes", `say "hi"`, `'say "hi"'`},
		{"both quotes", `it's "ok"`, `concat('it', "'", 's "ok"')`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := xpathLiteral(tc.input); got != tc.want {
				t.Errorf("xpathLiteral(%q) = %s, want %s", tc.input, got, tc.want)
			}
		})
	}
}

func TestWebMarkersKeepDialogText(t *testing.T) {
	m := WebMarkers()
	if m.UnreachableText != "on WhatsApp" || m.ConnectionText != "Couldn't connect" {
		t.Errorf("Web markers must keep the stock dialog texts, got %+v", m)
	}
	for _, role := range m.SendButtonRoles {
		if role != strings.ToLower(role) {
			t.Errorf("Web roles must be lowercase HTML roles, got %q", role)
		}
	}
}

func TestNewWebObserverDefaults(t *testing.T) {
	w := NewWebObserver()
	if w.opts.PollInterval != DefaultPollInterval {
		t.Errorf("Expected default poll interval, got %v", w.opts.PollInterval)
	}
	if w.opts.LookupTimeout != DefaultLookupTimeout {
		t.Errorf("Expected default lookup timeout, got %v", w.opts.LookupTimeout)
	}
	if _, ok := w.FindByID("send"); ok {
		t.Error("Unstarted observer must not find elements")
	}
}
