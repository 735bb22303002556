// Package redact masks caller identifiers before they reach logs.
package redact

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
)

// Phone keeps only the last four digits of a phone number.
func Phone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) <= 4 {
		return strings.Repeat("*", len(d))
	}
	return strings.Repeat("*", len(d)-4) + d[len(d)-4:]
}

// Text masks phone numbers and e-mail addresses in free text, such as error
// messages echoed back by the server.
func Text(s string) string {
	s = emailPattern.ReplaceAllString(s, "[REDACTED_EMAIL]")
	return phonePattern.ReplaceAllStringFunc(s, Phone)
}
