package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientMessageControl(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"toggle_record"}`))
	require.NoError(t, err)
	assert.Equal(t, ClientControl{Type: TypeClientControl, Action: ActionToggleRecord}, msg)
}

func TestParseClientMessageRejects(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ParseClientMessage([]byte(`{"type":"client_control","action":"dance"}`))
	assert.ErrorIs(t, err, ErrUnsupportedAction)

	_, err = ParseClientMessage([]byte(`{"type":"client_control"}`))
	assert.Error(t, err)

	_, err = ParseClientMessage([]byte(`{not json`))
	assert.Error(t, err)
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00", FormatElapsed(0))
	assert.Equal(t, "00:59", FormatElapsed(59))
	assert.Equal(t, "01:05", FormatElapsed(65))
	assert.Equal(t, "61:01", FormatElapsed(3661))
	assert.Equal(t, "00:00", FormatElapsed(-3))
}

func TestTypeOf(t *testing.T) {
	typ, ok := TypeOf(Status{Type: TypeStatus})
	require.True(t, ok)
	assert.Equal(t, TypeStatus, typ)

	_, ok = TypeOf("nope")
	assert.False(t, ok)
}
