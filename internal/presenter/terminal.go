package presenter

import (
	"fmt"
	"io"
	"sync"

	"github.com/ent0n29/sentinelcall/internal/call"
	"github.com/ent0n29/sentinelcall/internal/protocol"
)

// Terminal prints controller events as timestamped lines.
type Terminal struct {
	mu      sync.Mutex
	out     io.Writer
	seconds int
	input   bool
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) SetView(view call.View) {
	switch view {
	case call.ViewCall:
		t.printf("--- call ---")
	case call.ViewHandover:
		t.printf("--- transferred to a human agent, press r to replay their last message ---")
	case call.ViewSetup:
		t.printf("--- ready: press Enter to start a call ---")
	}
}

func (t *Terminal) SetStatus(title, subtitle string) {
	t.printf("%s - %s", title, subtitle)
}

func (t *Terminal) SetRecordingActive(active bool) {
	if active {
		t.printf("* recording, press Enter to send")
	}
}

func (t *Terminal) SetInputEnabled(enabled bool) {
	t.mu.Lock()
	changed := enabled && !t.input
	t.input = enabled
	t.mu.Unlock()
	if changed {
		t.printf("press Enter to speak, q to hang up")
	}
}

func (t *Terminal) Tick(seconds int) {
	t.mu.Lock()
	t.seconds = seconds
	t.mu.Unlock()
}

func (t *Terminal) AnnounceAgentMessage(url string) {
	t.printf("agent message: %s", url)
}

func (t *Terminal) Notify(message string) {
	t.printf("! %s", message)
}

func (t *Terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintf(t.out, "[%s] "+format+"\n", append([]any{protocol.FormatElapsed(t.seconds)}, args...)...)
}
