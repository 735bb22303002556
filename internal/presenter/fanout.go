package presenter

import "github.com/ent0n29/sentinelcall/internal/call"

// Fanout forwards every event to each presentation in order.
type Fanout []call.Presentation

func (f Fanout) SetView(view call.View) {
	for _, p := range f {
		p.SetView(view)
	}
}

func (f Fanout) SetStatus(title, subtitle string) {
	for _, p := range f {
		p.SetStatus(title, subtitle)
	}
}

func (f Fanout) SetRecordingActive(active bool) {
	for _, p := range f {
		p.SetRecordingActive(active)
	}
}

func (f Fanout) SetInputEnabled(enabled bool) {
	for _, p := range f {
		p.SetInputEnabled(enabled)
	}
}

func (f Fanout) Tick(seconds int) {
	for _, p := range f {
		p.Tick(seconds)
	}
}

func (f Fanout) AnnounceAgentMessage(url string) {
	for _, p := range f {
		p.AnnounceAgentMessage(url)
	}
}

func (f Fanout) Notify(message string) {
	for _, p := range f {
		p.Notify(message)
	}
}
