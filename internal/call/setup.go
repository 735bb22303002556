package call

import (
	"errors"
	"strings"

	"github.com/ent0n29/sentinelcall/internal/session"
)

const DefaultCountry = "IN"

var ErrInvalidSetup = errors.New("call: server url is required")

// Setup is what the user enters before a call starts.
type Setup struct {
	ServerURL string `json:"server_url"`
	Phone     string `json:"phone"`
	AccountID string `json:"account_id"`
	Country   string `json:"country"`
}

// Normalize trims every field, drops trailing slashes from the server URL and
// fills in the default country. The phone number is left for the server to
// validate so its error message reaches the user unchanged.
func (s Setup) Normalize() (Setup, error) {
	out := Setup{
		ServerURL: session.NormalizeBaseURL(s.ServerURL),
		Phone:     strings.TrimSpace(s.Phone),
		AccountID: strings.TrimSpace(s.AccountID),
		Country:   strings.ToUpper(strings.TrimSpace(s.Country)),
	}
	if out.ServerURL == "" {
		return Setup{}, ErrInvalidSetup
	}
	if out.Country == "" {
		out.Country = DefaultCountry
	}
	return out, nil
}

// ParseDialString splits input like "+91 9876543210" into a phone number and
// a country. The Indian calling code maps to "IN"; other codes are passed on
// as typed. Input without a space is taken as a bare phone number.
func ParseDialString(raw string) (phone, country string) {
	raw = strings.TrimSpace(raw)
	code, number, ok := strings.Cut(raw, " ")
	if !ok {
		return raw, DefaultCountry
	}
	country = strings.TrimSpace(strings.ReplaceAll(code, "+", ""))
	if country == "" || country == "91" {
		country = DefaultCountry
	}
	phone = strings.TrimSpace(strings.ReplaceAll(number, " ", ""))
	return phone, country
}
