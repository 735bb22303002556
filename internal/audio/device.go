package audio

import (
	"context"
	"errors"
	"sync"
)

// CaptureHandle identifies one open capture cycle on a Device.
type CaptureHandle uint64

var (
	ErrCaptureBusy   = errors.New("audio: capture already in progress")
	ErrCaptureClosed = errors.New("audio: capture handle is not active")
)

// PermissionError reports that the microphone could not be opened.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return "microphone access denied"
	}
	return "microphone access denied: " + e.Err.Error()
}

func (e *PermissionError) Unwrap() error { return e.Err }

// Device captures microphone input and plays remote audio resources.
//
// A device holds at most one open capture cycle. Play blocks until the audio
// ends, fails or ctx is cancelled; callers must not overlap Play calls.
type Device interface {
	StartCapture(ctx context.Context) (CaptureHandle, error)
	StopCapture(h CaptureHandle) (Clip, error)
	Play(ctx context.Context, url string) error
}

type cycleState int

const (
	cycleInactive cycleState = iota
	cycleCapturing
	cycleFinalizing
)

// cycleTracker enforces Inactive -> Capturing -> Finalizing -> Inactive.
type cycleTracker struct {
	mu     sync.Mutex
	state  cycleState
	handle CaptureHandle
	next   CaptureHandle
}

func (t *cycleTracker) open() (CaptureHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != cycleInactive {
		return 0, ErrCaptureBusy
	}
	t.next++
	t.handle = t.next
	t.state = cycleCapturing
	return t.handle, nil
}

func (t *cycleTracker) finalize(h CaptureHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != cycleCapturing || h == 0 || h != t.handle {
		return ErrCaptureClosed
	}
	t.state = cycleFinalizing
	return nil
}

func (t *cycleTracker) close() {
	t.mu.Lock()
	t.state = cycleInactive
	t.handle = 0
	t.mu.Unlock()
}

func (t *cycleTracker) capturing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == cycleCapturing
}
