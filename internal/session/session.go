package session

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

var ErrMissingID = errors.New("session id is required")

// Session ties every request of one call together. It is immutable once
// created and discarded when the call ends.
type Session struct {
	ID            string    `json:"session_id"`
	ServerBaseURL string    `json:"server_base_url"`
	StartedAt     time.Time `json:"started_at"`
}

func New(id, serverBaseURL string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrMissingID
	}
	return &Session{
		ID:            id,
		ServerBaseURL: NormalizeBaseURL(serverBaseURL),
		StartedAt:     time.Now().UTC(),
	}, nil
}

// ResolveAudioURL turns a server supplied audio reference into a fetchable URL.
// Absolute URLs are returned unchanged.
func (s *Session) ResolveAudioURL(ref string) string {
	return ResolveURL(s.ServerBaseURL, ref)
}

// ResolveURL joins a relative reference onto base. References carrying a
// scheme are already absolute and pass through.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return NormalizeBaseURL(base) + ref
}

// NormalizeBaseURL trims whitespace and trailing slashes.
func NormalizeBaseURL(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
