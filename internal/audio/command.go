package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	recorderStartGrace = 150 * time.Millisecond
	recorderStopWait   = 3 * time.Second
	readChunkSize      = 4096
)

// CommandConfig configures a CommandDevice.
type CommandConfig struct {
	// RecordCommand streams raw PCM16LE mono (or a WAV stream) to stdout until interrupted.
	RecordCommand []string
	// PlayCommand is invoked with the downloaded audio file path appended.
	PlayCommand []string
	SampleRate  int
	HTTPClient  *http.Client
	TempDir     string
}

// CommandDevice records and plays audio through external programs such as
// arecord and aplay.
type CommandDevice struct {
	cfg    CommandConfig
	client *http.Client
	logger *zap.Logger
	cycle  cycleTracker

	mu     sync.Mutex
	active *commandCapture
}

type commandCapture struct {
	handle  CaptureHandle
	cmd     *exec.Cmd
	builder clipBuilder
	exited  chan error
}

func NewCommandDevice(cfg CommandConfig, logger *zap.Logger) *CommandDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &CommandDevice{
		cfg:    cfg,
		client: client,
		logger: logger.Named("audio"),
	}
}

func (d *CommandDevice) StartCapture(ctx context.Context) (CaptureHandle, error) {
	if len(d.cfg.RecordCommand) == 0 {
		return 0, &PermissionError{Err: errors.New("no recorder configured")}
	}
	h, err := d.cycle.open()
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, d.cfg.RecordCommand[0], d.cfg.RecordCommand[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		d.cycle.close()
		return 0, fmt.Errorf("recorder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		d.cycle.close()
		return 0, &PermissionError{Err: err}
	}

	c := &commandCapture{
		handle: h,
		cmd:    cmd,
		exited: make(chan error, 1),
	}
	go func() {
		buf := make([]byte, readChunkSize)
		for {
			n, rerr := stdout.Read(buf)
			if n > 0 {
				c.builder.Append(buf[:n])
			}
			if rerr != nil {
				break
			}
		}
		c.exited <- cmd.Wait()
	}()

	// A recorder that dies straight away could not open the input device.
	select {
	case werr := <-c.exited:
		d.cycle.close()
		if werr == nil {
			werr = errors.New("recorder exited immediately")
		}
		return 0, &PermissionError{Err: werr}
	case <-time.After(recorderStartGrace):
	}

	d.mu.Lock()
	d.active = c
	d.mu.Unlock()
	d.logger.Debug("capture started", zap.Uint64("handle", uint64(h)), zap.Int("pid", cmd.Process.Pid))
	return h, nil
}

func (d *CommandDevice) StopCapture(h CaptureHandle) (Clip, error) {
	if err := d.cycle.finalize(h); err != nil {
		return Clip{}, err
	}
	defer d.cycle.close()

	d.mu.Lock()
	c := d.active
	d.active = nil
	d.mu.Unlock()
	if c == nil || c.handle != h {
		return Clip{}, ErrCaptureClosed
	}

	if err := c.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = c.cmd.Process.Kill()
	}
	select {
	case <-c.exited:
	case <-time.After(recorderStopWait):
		_ = c.cmd.Process.Kill()
		<-c.exited
	}

	clip, err := c.builder.Finalize(d.cfg.SampleRate)
	if err != nil {
		return Clip{}, fmt.Errorf("finalize clip: %w", err)
	}
	d.logger.Debug("capture finalized",
		zap.Uint64("handle", uint64(h)),
		zap.Int("fragments", clip.Fragments),
		zap.Int("bytes", len(clip.Data)),
		zap.Duration("duration", clip.Duration()),
	)
	return clip, nil
}

// Play downloads url to a temporary file and runs the player command on it.
func (d *CommandDevice) Play(ctx context.Context, url string) error {
	if len(d.cfg.PlayCommand) == 0 {
		return errors.New("no player configured")
	}
	path, err := d.download(ctx, url)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	args := append(append([]string(nil), d.cfg.PlayCommand[1:]...), path)
	cmd := exec.CommandContext(ctx, d.cfg.PlayCommand[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("player failed: %w: %s", err, string(out))
	}
	return nil
}

// download fetches url once into a temporary file.
func (d *CommandDevice) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create audio request: %w", err)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("fetch audio: http status %d", res.StatusCode)
	}

	f, err := os.CreateTemp(d.cfg.TempDir, "sentinelcall-playback-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, res.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
