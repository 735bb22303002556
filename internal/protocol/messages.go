package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl   MessageType = "client_control"
	TypeViewChanged     MessageType = "view_changed"
	TypeStatus          MessageType = "status"
	TypeRecording       MessageType = "recording"
	TypeInputEnabled    MessageType = "input_enabled"
	TypeTimerTick       MessageType = "timer_tick"
	TypeAgentMessage    MessageType = "agent_message"
	TypeNotice          MessageType = "notice"
	TypeErrorEvent      MessageType = "error_event"
	TypeControlAccepted MessageType = "control_accepted"
)

// Client control actions.
const (
	ActionToggleRecord = "toggle_record"
	ActionEnd          = "end"
	ActionReplay       = "replay"
)

var (
	ErrUnsupportedType   = errors.New("unsupported message type")
	ErrUnsupportedAction = errors.New("unsupported control action")
)

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientControl is the only message a UI sends over the event socket.
type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

type ViewChanged struct {
	Type MessageType `json:"type"`
	View string      `json:"view"`
}

type Status struct {
	Type     MessageType `json:"type"`
	Title    string      `json:"title"`
	Subtitle string      `json:"subtitle"`
}

type Recording struct {
	Type   MessageType `json:"type"`
	Active bool        `json:"active"`
}

type InputEnabled struct {
	Type    MessageType `json:"type"`
	Enabled bool        `json:"enabled"`
}

type TimerTick struct {
	Type    MessageType `json:"type"`
	Seconds int         `json:"seconds"`
	Display string      `json:"display"`
}

// AgentMessage announces operator audio; the UI offers a replay action for URL.
type AgentMessage struct {
	Type     MessageType `json:"type"`
	AudioURL string      `json:"audio_url"`
}

type Notice struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

type ControlAccepted struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

// FormatElapsed renders seconds as mm:ss.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func ParseClientMessage(raw []byte) (ClientControl, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ClientControl{}, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Type != TypeClientControl {
		return ClientControl{}, ErrUnsupportedType
	}

	var msg ClientControl
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ClientControl{}, err
	}
	switch msg.Action {
	case ActionToggleRecord, ActionEnd, ActionReplay:
		return msg, nil
	case "":
		return ClientControl{}, errors.New("invalid client_control: missing action")
	default:
		return ClientControl{}, fmt.Errorf("%w: %q", ErrUnsupportedAction, msg.Action)
	}
}

// TypeOf reports the type tag of an outbound event.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case ViewChanged:
		return m.Type, true
	case Status:
		return m.Type, true
	case Recording:
		return m.Type, true
	case InputEnabled:
		return m.Type, true
	case TimerTick:
		return m.Type, true
	case AgentMessage:
		return m.Type, true
	case Notice:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	case ControlAccepted:
		return m.Type, true
	default:
		return "", false
	}
}
