package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialString(t *testing.T) {
	cases := []struct {
		in, phone, country string
	}{
		{"+91 9876543210", "9876543210", "IN"},
		{"+44 20 7946 0958", "2079460958", "44"},
		{"9876543210", "9876543210", "IN"},
		{"  +1 555 0100 ", "5550100", "1"},
		{"+ 12345", "12345", "IN"},
	}
	for _, tc := range cases {
		phone, country := ParseDialString(tc.in)
		assert.Equal(t, tc.phone, phone, tc.in)
		assert.Equal(t, tc.country, country, tc.in)
	}
}

func TestSetupNormalize(t *testing.T) {
	got, err := Setup{ServerURL: " http://h:5001// ", Phone: " 123 ", AccountID: "a", Country: "gb"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, Setup{ServerURL: "http://h:5001", Phone: "123", AccountID: "a", Country: "GB"}, got)

	got, err = Setup{ServerURL: "http://h"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultCountry, got.Country)

	_, err = Setup{}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidSetup)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "handover_polling", StateHandoverPolling.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, StatePlaying.InCall())
	assert.False(t, StateEnded.InCall())

	b, err := StateRecording.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "recording", string(b))
}
