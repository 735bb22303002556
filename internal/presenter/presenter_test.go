package presenter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/sentinelcall/internal/call"
	"github.com/ent0n29/sentinelcall/internal/protocol"
)

var (
	_ call.Presentation = (*Terminal)(nil)
	_ call.Presentation = (*Hub)(nil)
	_ call.Presentation = Fanout(nil)
)

func drain(ch <-chan any) []any {
	var out []any
	for {
		select {
		case msg := <-ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestTerminalPrefixesElapsedTime(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	term.SetStatus("Connecting...", "Establishing secure handshake")
	term.Tick(65)
	term.Notify("Failed to send response")
	term.SetInputEnabled(true)
	term.SetInputEnabled(true)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[00:00] Connecting... - Establishing secure handshake", lines[0])
	assert.Equal(t, "[01:05] ! Failed to send response", lines[1])
	assert.Contains(t, lines[2], "press Enter to speak")
}

func TestHubReplaysCurrentStateToNewSubscribers(t *testing.T) {
	hub := NewHub(0, nil)
	hub.SetView(call.ViewHandover)
	hub.SetStatus("Connecting to Agent", "Please stay on the line")
	hub.Tick(12)
	hub.AnnounceAgentMessage("http://h/agent/audio/a.wav")
	hub.Notify("not replayed")

	_, ch, cancel := hub.Subscribe()
	defer cancel()

	msgs := drain(ch)
	require.Len(t, msgs, 6)
	assert.Equal(t, protocol.ViewChanged{Type: protocol.TypeViewChanged, View: "handover"}, msgs[0])
	assert.Equal(t, protocol.TimerTick{Type: protocol.TypeTimerTick, Seconds: 12, Display: "00:12"}, msgs[1])
	assert.Contains(t, msgs, any(protocol.Status{Type: protocol.TypeStatus, Title: "Connecting to Agent", Subtitle: "Please stay on the line"}))
	assert.Equal(t, protocol.AgentMessage{Type: protocol.TypeAgentMessage, AudioURL: "http://h/agent/audio/a.wav"}, msgs[5])
}

func TestHubBroadcastDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(minSubscriberBuffer, nil)
	_, ch, cancel := hub.Subscribe()

	for i := 0; i < 100; i++ {
		hub.Tick(i)
	}
	msgs := drain(ch)
	assert.Len(t, msgs, minSubscriberBuffer)

	assert.Equal(t, 1, hub.Subscribers())
	cancel()
	cancel()
	assert.Equal(t, 0, hub.Subscribers())
	_, open := <-ch
	assert.False(t, open)
}

func TestHubClearsAgentMessageOnNewCall(t *testing.T) {
	hub := NewHub(0, nil)
	hub.AnnounceAgentMessage("http://h/a.wav")
	hub.SetView(call.ViewCall)

	_, ch, cancel := hub.Subscribe()
	defer cancel()
	for _, msg := range drain(ch) {
		_, isAgent := msg.(protocol.AgentMessage)
		assert.False(t, isAgent)
	}
}

func TestFanoutForwardsToAll(t *testing.T) {
	var a, b bytes.Buffer
	f := Fanout{NewTerminal(&a), NewTerminal(&b)}
	f.AnnounceAgentMessage("http://h/a.wav")
	assert.Equal(t, a.String(), b.String())
	assert.Contains(t, a.String(), "agent message: http://h/a.wav")
}
