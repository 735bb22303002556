package redact

import (
	"strings"
	"testing"
)

func TestPhone(t *testing.T) {
	cases := map[string]string{
		"9876543210":       "******3210",
		"+44 20 7946 0958": "********0958",
		"123":              "***",
		"":                 "",
	}
	for in, want := range cases {
		if got := Phone(in); got != want {
			t.Fatalf("Phone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestText(t *testing.T) {
	out := Text("unknown caller +91 98765 43210 (ops@example.com)")
	if strings.Contains(out, "98765") || strings.Contains(out, "ops@example.com") {
		t.Fatalf("Text left identifiers in %q", out)
	}
	if !strings.Contains(out, "3210") || !strings.Contains(out, "[REDACTED_EMAIL]") {
		t.Fatalf("Text = %q, want masked phone and email markers", out)
	}
	if got := Text("Phone required"); got != "Phone required" {
		t.Fatalf("Text changed plain message: %q", got)
	}
}
