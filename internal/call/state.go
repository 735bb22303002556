package call

import "fmt"

// State is the controller's position in the call lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateListening
	StateRecording
	StateProcessing
	StatePlaying
	StateEnded
	StateHandoverPolling
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateConnecting:      "connecting",
	StateListening:       "listening",
	StateRecording:       "recording",
	StateProcessing:      "processing",
	StatePlaying:         "playing",
	StateEnded:           "ended",
	StateHandoverPolling: "handover_polling",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// InCall reports whether a session is (being) established.
func (s State) InCall() bool {
	return s != StateIdle && s != StateEnded
}

// View is the screen the presentation should show.
type View string

const (
	ViewSetup    View = "setup"
	ViewCall     View = "call"
	ViewHandover View = "handover"
)
