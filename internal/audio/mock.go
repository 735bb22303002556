package audio

import (
	"context"
	"sync"
	"time"
)

// MockDevice is an in-memory Device used by tests and by the mock audio backend.
type MockDevice struct {
	cycle cycleTracker

	mu           sync.Mutex
	payload      []byte
	sampleRate   int
	playDuration time.Duration
	exitDelay    time.Duration
	denyCapture  bool
	playErr      error
	played       []string
	captures     int
	finalized    int
	activePlays  int
	maxPlays     int
	current      *clipBuilder
}

// NewMockDevice returns a device that yields one second of silence per capture.
func NewMockDevice() *MockDevice {
	return &MockDevice{
		payload:    make([]byte, defaultSampleRate*2),
		sampleRate: defaultSampleRate,
	}
}

func (d *MockDevice) SetPayload(pcm []byte) {
	d.mu.Lock()
	d.payload = append([]byte(nil), pcm...)
	d.mu.Unlock()
}

func (d *MockDevice) SetPlayDuration(dur time.Duration) {
	d.mu.Lock()
	d.playDuration = dur
	d.mu.Unlock()
}

func (d *MockDevice) DenyCapture(deny bool) {
	d.mu.Lock()
	d.denyCapture = deny
	d.mu.Unlock()
}

// SetExitDelay makes a cancelled Play linger before returning, like a player
// process that has to be killed and reaped.
func (d *MockDevice) SetExitDelay(dur time.Duration) {
	d.mu.Lock()
	d.exitDelay = dur
	d.mu.Unlock()
}

// FailPlayback makes every subsequent Play return err after its duration.
func (d *MockDevice) FailPlayback(err error) {
	d.mu.Lock()
	d.playErr = err
	d.mu.Unlock()
}

func (d *MockDevice) StartCapture(_ context.Context) (CaptureHandle, error) {
	d.mu.Lock()
	deny := d.denyCapture
	d.mu.Unlock()
	if deny {
		return 0, &PermissionError{}
	}

	h, err := d.cycle.open()
	if err != nil {
		return 0, err
	}

	b := &clipBuilder{}
	d.mu.Lock()
	d.captures++
	// Deliver the payload in small fragments like a live recorder would.
	for rest := d.payload; len(rest) > 0; {
		n := min(len(rest), readChunkSize)
		b.Append(rest[:n])
		rest = rest[n:]
	}
	d.current = b
	d.mu.Unlock()
	return h, nil
}

func (d *MockDevice) StopCapture(h CaptureHandle) (Clip, error) {
	if err := d.cycle.finalize(h); err != nil {
		return Clip{}, err
	}
	defer d.cycle.close()

	d.mu.Lock()
	b := d.current
	d.current = nil
	rate := d.sampleRate
	d.mu.Unlock()
	if b == nil {
		return Clip{}, ErrCaptureClosed
	}
	clip, err := b.Finalize(rate)
	if err == nil {
		d.mu.Lock()
		d.finalized++
		d.mu.Unlock()
	}
	return clip, err
}

func (d *MockDevice) Play(ctx context.Context, url string) error {
	d.mu.Lock()
	d.played = append(d.played, url)
	d.activePlays++
	if d.activePlays > d.maxPlays {
		d.maxPlays = d.activePlays
	}
	dur := d.playDuration
	exitDelay := d.exitDelay
	playErr := d.playErr
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.activePlays--
		d.mu.Unlock()
	}()

	if dur > 0 {
		t := time.NewTimer(dur)
		defer t.Stop()
		select {
		case <-ctx.Done():
			if exitDelay > 0 {
				time.Sleep(exitDelay)
			}
			return ctx.Err()
		case <-t.C:
		}
	}
	return playErr
}

// Played returns every URL passed to Play, in call order.
func (d *MockDevice) Played() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.played...)
}

// MaxConcurrentPlays is the highest number of overlapping Play calls observed.
func (d *MockDevice) MaxConcurrentPlays() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxPlays
}

func (d *MockDevice) ActivePlays() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activePlays
}

func (d *MockDevice) Captures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.captures
}

// Finalized counts capture cycles that produced a clip.
func (d *MockDevice) Finalized() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finalized
}

func (d *MockDevice) Capturing() bool { return d.cycle.capturing() }
