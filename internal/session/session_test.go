package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresID(t *testing.T) {
	_, err := New("  ", "http://h:5001")
	require.ErrorIs(t, err, ErrMissingID)

	s, err := New("abc", "http://h:5001/")
	require.NoError(t, err)
	assert.Equal(t, "abc", s.ID)
	assert.Equal(t, "http://h:5001", s.ServerBaseURL)
	assert.False(t, s.StartedAt.IsZero())
}

func TestResolveAudioURL(t *testing.T) {
	s, err := New("abc", "http://h:5001")
	require.NoError(t, err)

	cases := []struct {
		ref  string
		want string
	}{
		{"/x.wav", "http://h:5001/x.wav"},
		{"x.wav", "http://h:5001/x.wav"},
		{"http://other/y.wav", "http://other/y.wav"},
		{"https://cdn.example/agent/audio/z.wav", "https://cdn.example/agent/audio/z.wav"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, s.ResolveAudioURL(tc.ref), "ref %q", tc.ref)
	}
}

func TestResolveURLKeepsBasePath(t *testing.T) {
	assert.Equal(t, "http://h/api/audio/q.wav", ResolveURL("http://h/api/", "/audio/q.wav"))
}
