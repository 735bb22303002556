package call

// Presentation renders controller events. The controller only writes to it
// and calls it from a single goroutine; implementations must not block.
type Presentation interface {
	SetView(view View)
	SetStatus(title, subtitle string)
	SetRecordingActive(active bool)
	SetInputEnabled(enabled bool)
	Tick(seconds int)
	AnnounceAgentMessage(url string)
	Notify(message string)
}

type nopPresentation struct{}

func (nopPresentation) SetView(View)                {}
func (nopPresentation) SetStatus(string, string)    {}
func (nopPresentation) SetRecordingActive(bool)     {}
func (nopPresentation) SetInputEnabled(bool)        {}
func (nopPresentation) Tick(int)                    {}
func (nopPresentation) AnnounceAgentMessage(string) {}
func (nopPresentation) Notify(string)               {}
