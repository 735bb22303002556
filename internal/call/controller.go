package call

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ent0n29/sentinelcall/internal/audio"
	"github.com/ent0n29/sentinelcall/internal/observability"
	"github.com/ent0n29/sentinelcall/internal/redact"
	"github.com/ent0n29/sentinelcall/internal/remote"
	"github.com/ent0n29/sentinelcall/internal/session"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultTickInterval = time.Second
	eventBuffer         = 64
)

var (
	ErrInputDisabled  = errors.New("call: input is disabled in the current state")
	ErrNotInCall      = errors.New("call: no active call")
	ErrNotInHandover  = errors.New("call: no agent handover in progress")
	ErrCallActive     = errors.New("call: a call is already active")
	ErrNoAgentMessage = errors.New("call: no agent message to replay")
	ErrPlaybackBusy   = errors.New("call: playback already in progress")
	ErrClosed         = errors.New("call: controller is closed")
	ErrRunning        = errors.New("call: controller is already running")
)

// Remote is the subset of the server client the controller drives.
type Remote interface {
	StartCall(ctx context.Context, req remote.StartRequest) (remote.StartResult, error)
	SubmitResponse(ctx context.Context, sessionID string, clip audio.Clip) (remote.SubmitResult, error)
	PollAgent(ctx context.Context, sessionID string) *remote.AgentMessage
}

// RemoteFactory builds a client for the server URL entered at setup.
type RemoteFactory func(serverURL string) Remote

type Options struct {
	PollInterval time.Duration
	TickInterval time.Duration
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// Snapshot is a point-in-time copy of the controller's observable state.
type Snapshot struct {
	State          State     `json:"state"`
	SessionID      string    `json:"session_id,omitempty"`
	ServerURL      string    `json:"server_url,omitempty"`
	ConnectedAt    time.Time `json:"connected_at,omitzero"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	LastAgentURL   string    `json:"last_agent_url,omitempty"`
}

const (
	sourceCall     = "call"
	sourceHandover = "handover"
	sourceReplay   = "replay"
)

// Controller owns the call state machine. All state lives on the goroutine
// running Run; public methods and background work talk to it through events.
type Controller struct {
	newRemote    RemoteFactory
	device       audio.Device
	ui           Presentation
	logger       *zap.Logger
	metrics      *observability.Metrics
	pollInterval time.Duration
	tickInterval time.Duration

	events   chan any
	done     chan struct{}
	running  atomic.Bool
	snapshot atomic.Pointer[Snapshot]

	// Owned by the Run goroutine.
	runCtx          context.Context
	state           State
	gen             uint64
	setup           Setup
	remote          Remote
	sess            *session.Session
	sessCtx         context.Context
	sessCancel      context.CancelFunc
	playback        *semaphore.Weighted // one slot per session
	capture         audio.CaptureHandle
	captureStarting bool
	elapsed         int
	lastAgentURL    string
}

type command struct {
	run   func() error
	reply chan error
}

type startDone struct {
	gen uint64
	res remote.StartResult
	err error
}

type captureStarted struct {
	gen    uint64
	handle audio.CaptureHandle
	err    error
}

type captureStopped struct {
	gen  uint64
	clip audio.Clip
	err  error
}

type submitDone struct {
	gen uint64
	res remote.SubmitResult
	err error
}

type pollDone struct {
	gen uint64
	msg *remote.AgentMessage
}

type playbackDone struct {
	gen    uint64
	source string
	url    string
	err    error
}

type timerTick struct {
	gen uint64
}

func New(newRemote RemoteFactory, device audio.Device, ui Presentation, opts Options) *Controller {
	if ui == nil {
		ui = nopPresentation{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	c := &Controller{
		newRemote:    newRemote,
		device:       device,
		ui:           ui,
		logger:       opts.Logger.Named("call"),
		metrics:      opts.Metrics,
		pollInterval: opts.PollInterval,
		tickInterval: opts.TickInterval,
		events:       make(chan any, eventBuffer),
		done:         make(chan struct{}),
		state:        StateIdle,
	}
	c.publish()
	return c
}

// Run processes events until ctx is cancelled. It may be called once; on
// return any open capture is stopped and every background task is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(c.done)
	defer c.dispose()

	c.runCtx = ctx
	c.ui.SetView(ViewSetup)
	c.ui.SetInputEnabled(false)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// StartCall begins a session with the server named in setup. It returns once
// the request is under way; the outcome is reported through the presentation.
func (c *Controller) StartCall(ctx context.Context, setup Setup) error {
	return c.do(ctx, func() error { return c.startCall(setup) })
}

// ToggleRecording starts a capture when listening and stops and submits it
// when recording.
func (c *Controller) ToggleRecording(ctx context.Context) error {
	return c.do(ctx, c.toggleRecording)
}

// EndSession ends the current call. Ending when no call is active is a no-op.
func (c *Controller) EndSession(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.endSession()
		return nil
	})
}

// ReplayAgentMessage plays the most recent operator message again.
func (c *Controller) ReplayAgentMessage(ctx context.Context) error {
	return c.do(ctx, c.replayAgentMessage)
}

func (c *Controller) State() State {
	return c.snapshot.Load().State
}

func (c *Controller) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

func (c *Controller) do(ctx context.Context, fn func() error) error {
	cmd := command{run: fn, reply: make(chan error, 1)}
	select {
	case c.events <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// post hands a background result to the loop. Results that arrive after Run
// has returned are dropped.
func (c *Controller) post(ev any) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) handle(ev any) {
	switch ev := ev.(type) {
	case command:
		ev.reply <- ev.run()
	case startDone:
		c.onStartDone(ev)
	case captureStarted:
		c.onCaptureStarted(ev)
	case captureStopped:
		c.onCaptureStopped(ev)
	case submitDone:
		c.onSubmitDone(ev)
	case pollDone:
		c.onPollDone(ev)
	case playbackDone:
		c.onPlaybackDone(ev)
	case timerTick:
		c.onTick(ev)
	default:
		c.logger.Warn("unknown controller event", zap.Any("event", ev))
	}
}

func (c *Controller) startCall(setup Setup) error {
	if c.state.InCall() {
		return ErrCallActive
	}
	setup, err := setup.Normalize()
	if err != nil {
		return err
	}

	c.gen++
	gen := c.gen
	c.setup = setup
	c.remote = c.newRemote(setup.ServerURL)
	c.sess = nil
	c.lastAgentURL = ""
	c.sessCtx, c.sessCancel = context.WithCancel(c.runCtx)
	c.playback = semaphore.NewWeighted(1)

	c.ui.SetView(ViewCall)
	c.ui.SetInputEnabled(false)
	c.transition(StateConnecting)
	c.ui.SetStatus("Connecting...", "Establishing secure handshake")
	c.startTimer(c.sessCtx, gen)

	c.logger.Info("starting call",
		zap.String("server", setup.ServerURL),
		zap.String("phone", redact.Phone(setup.Phone)),
		zap.String("account_id", setup.AccountID),
		zap.String("country", setup.Country),
	)
	// Requests run on the Run context: ending the call does not abort them,
	// their results are discarded by generation instead.
	rm, reqCtx := c.remote, c.runCtx
	req := remote.StartRequest{Phone: setup.Phone, AccountID: setup.AccountID, Country: setup.Country}
	go func() {
		res, err := rm.StartCall(reqCtx, req)
		c.post(startDone{gen: gen, res: res, err: err})
	}()
	return nil
}

func (c *Controller) onStartDone(ev startDone) {
	if ev.gen != c.gen || c.state != StateConnecting {
		return
	}
	var sess *session.Session
	err := ev.err
	if err == nil {
		sess, err = session.New(ev.res.SessionID, c.setup.ServerURL)
	}
	if err != nil {
		c.logger.Warn("call start failed", zap.String("error", redact.Text(err.Error())))
		c.teardown()
		c.ui.Notify("Connection Failed: " + err.Error())
		c.ui.SetView(ViewSetup)
		c.transition(StateIdle)
		return
	}

	c.sess = sess
	c.metrics.SetActiveCall(true)
	c.logger.Info("call connected", zap.String("session_id", sess.ID))
	c.ui.SetStatus("Connected", "Listening for instructions...")
	if ev.res.AudioURL != "" {
		c.playCallAudio(sess.ResolveAudioURL(ev.res.AudioURL))
		return
	}
	c.enterListening("", "")
}

func (c *Controller) toggleRecording() error {
	switch c.state {
	case StateListening:
		if c.captureStarting {
			return c.reject("toggle_record")
		}
		c.captureStarting = true
		gen, ctx := c.gen, c.sessCtx
		go func() {
			h, err := c.device.StartCapture(ctx)
			c.post(captureStarted{gen: gen, handle: h, err: err})
		}()
		return nil
	case StateRecording:
		h := c.capture
		c.capture = 0
		c.transition(StateProcessing)
		c.ui.SetRecordingActive(false)
		c.ui.SetInputEnabled(false)
		c.ui.SetStatus("Processing...", "Analyzing voice patterns")
		gen := c.gen
		go func() {
			clip, err := c.device.StopCapture(h)
			c.post(captureStopped{gen: gen, clip: clip, err: err})
		}()
		return nil
	case StateIdle, StateEnded:
		c.metrics.ObserveRejectedInput("toggle_record", c.state.String())
		return ErrNotInCall
	default:
		return c.reject("toggle_record")
	}
}

func (c *Controller) reject(action string) error {
	c.metrics.ObserveRejectedInput(action, c.state.String())
	c.logger.Debug("input rejected", zap.String("action", action), zap.Stringer("state", c.state))
	return ErrInputDisabled
}

func (c *Controller) onCaptureStarted(ev captureStarted) {
	if ev.gen != c.gen || c.state != StateListening || !c.captureStarting {
		if ev.err == nil {
			// Nobody wants this recording any more; give the microphone back.
			go c.releaseCapture(ev.handle)
		}
		return
	}
	c.captureStarting = false
	if ev.err != nil {
		var perr *audio.PermissionError
		if errors.As(ev.err, &perr) {
			c.ui.Notify("Microphone access is required.")
		} else {
			c.ui.Notify("Could not start recording: " + ev.err.Error())
		}
		c.logger.Warn("capture start failed", zap.Error(ev.err))
		return
	}
	c.capture = ev.handle
	c.transition(StateRecording)
	c.ui.SetRecordingActive(true)
}

func (c *Controller) releaseCapture(h audio.CaptureHandle) {
	if _, err := c.device.StopCapture(h); err != nil && !errors.Is(err, audio.ErrEmptyClip) {
		c.logger.Debug("discarded capture stop failed", zap.Error(err))
	}
}

func (c *Controller) onCaptureStopped(ev captureStopped) {
	if ev.gen != c.gen || c.state != StateProcessing {
		return
	}
	if ev.err != nil {
		c.logger.Warn("capture finalize failed", zap.Error(ev.err))
		c.ui.Notify("Failed to send response")
		c.enterListening("Your Turn", "Press button to speak")
		return
	}

	gen, rm, reqCtx, id := c.gen, c.remote, c.runCtx, c.sess.ID
	clip := ev.clip
	go func() {
		res, err := rm.SubmitResponse(reqCtx, id, clip)
		c.post(submitDone{gen: gen, res: res, err: err})
	}()
}

func (c *Controller) onSubmitDone(ev submitDone) {
	if ev.gen != c.gen || c.state != StateProcessing {
		return
	}
	if ev.err != nil {
		c.logger.Warn("submit response failed", zap.Error(ev.err))
		c.ui.Notify("Failed to send response")
		c.enterListening("Your Turn", "Press button to speak")
		return
	}
	if ev.res.Completed() {
		c.enterHandover()
		return
	}
	if ev.res.AudioURL != "" {
		c.playCallAudio(c.sess.ResolveAudioURL(ev.res.AudioURL))
		return
	}
	c.enterListening("Listening...", "Waiting for input")
}

// enterListening enables input. Empty title keeps the current status line.
func (c *Controller) enterListening(title, subtitle string) {
	c.transition(StateListening)
	if title != "" {
		c.ui.SetStatus(title, subtitle)
	}
	c.ui.SetInputEnabled(true)
}

func (c *Controller) playCallAudio(url string) {
	if !c.playback.TryAcquire(1) {
		// Call-phase clips run one at a time and replays are handover only,
		// so the slot is free here; never talk over another clip regardless.
		c.metrics.ObservePlayback(sourceCall, "dropped")
		c.enterListening("Your Turn", "Press button to speak")
		return
	}
	c.transition(StatePlaying)
	c.ui.SetInputEnabled(false)
	c.ui.SetStatus("Sentinel Speaking", "Secure Voice Output")
	c.launchPlayback(sourceCall, url)
}

// launchPlayback plays url in the background. The caller holds the session's
// playback slot; it is released before the completion is posted. A player
// still exiting after its call ended only holds the slot of that call.
func (c *Controller) launchPlayback(source, url string) {
	gen, ctx, slot := c.gen, c.sessCtx, c.playback
	go func() {
		err := c.device.Play(ctx, url)
		slot.Release(1)
		c.post(playbackDone{gen: gen, source: source, url: url, err: err})
	}()
}

func (c *Controller) onPlaybackDone(ev playbackDone) {
	switch {
	case ev.err == nil:
		c.metrics.ObservePlayback(ev.source, "played")
	case errors.Is(ev.err, context.Canceled):
		c.metrics.ObservePlayback(ev.source, "cancelled")
	default:
		c.metrics.ObservePlayback(ev.source, "failed")
		c.logger.Warn("playback failed", zap.String("source", ev.source), zap.String("url", ev.url), zap.Error(ev.err))
	}
	if ev.gen != c.gen {
		return
	}
	if ev.source == sourceCall && c.state == StatePlaying {
		c.enterListening("Your Turn", "Press button to speak")
	}
}

func (c *Controller) enterHandover() {
	c.transition(StateHandoverPolling)
	c.ui.SetInputEnabled(false)
	c.ui.SetView(ViewHandover)
	c.ui.SetStatus("Connecting to Agent", "Please stay on the line")
	c.logger.Info("handover to human agent", zap.String("session_id", c.sess.ID))

	gen, ctx, reqCtx, rm, id, every := c.gen, c.sessCtx, c.runCtx, c.remote, c.sess.ID, c.pollInterval
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				// Each poll is independent; a slow one never delays the next.
				go func() {
					c.post(pollDone{gen: gen, msg: rm.PollAgent(reqCtx, id)})
				}()
			}
		}
	}()
}

func (c *Controller) onPollDone(ev pollDone) {
	if ev.gen != c.gen || c.state != StateHandoverPolling {
		return
	}
	switch {
	case ev.msg == nil:
		c.metrics.ObservePoll("failed")
		return
	case !ev.msg.HasAudio || ev.msg.AudioURL == "":
		c.metrics.ObservePoll("empty")
		return
	}
	c.metrics.ObservePoll("audio")

	url := c.sess.ResolveAudioURL(ev.msg.AudioURL)
	c.lastAgentURL = url
	c.publish()
	c.ui.AnnounceAgentMessage(url)
	c.logger.Info("agent message received", zap.String("url", url))

	if !c.playback.TryAcquire(1) {
		c.metrics.ObservePlayback(sourceHandover, "dropped")
		c.logger.Debug("agent message not played, playback busy", zap.String("url", url))
		return
	}
	c.ui.SetStatus("Agent Speaking", "Secure Voice Output")
	c.launchPlayback(sourceHandover, url)
}

func (c *Controller) replayAgentMessage() error {
	if c.state != StateHandoverPolling {
		c.metrics.ObserveRejectedInput("replay", c.state.String())
		return ErrNotInHandover
	}
	if c.lastAgentURL == "" {
		return ErrNoAgentMessage
	}
	if !c.playback.TryAcquire(1) {
		c.metrics.ObservePlayback(sourceReplay, "dropped")
		return ErrPlaybackBusy
	}
	c.launchPlayback(sourceReplay, c.lastAgentURL)
	return nil
}

func (c *Controller) endSession() {
	if !c.state.InCall() {
		return
	}
	wasRecording := c.state == StateRecording
	elapsed := c.elapsed
	if h := c.teardown(); h != 0 {
		go c.releaseCapture(h)
	}
	c.transition(StateEnded)
	if wasRecording {
		c.ui.SetRecordingActive(false)
	}
	c.ui.SetInputEnabled(false)
	c.ui.SetStatus("Call Ended", "Session closed")
	c.ui.SetView(ViewSetup)
	c.logger.Info("call ended", zap.Int("elapsed_seconds", elapsed))
}

// teardown invalidates the current session and returns the capture handle
// still open, if any, for the caller to stop.
func (c *Controller) teardown() audio.CaptureHandle {
	if c.sessCancel != nil {
		c.sessCancel()
		c.sessCancel = nil
	}
	h := c.capture
	c.capture = 0
	c.captureStarting = false
	c.gen++
	c.remote = nil
	c.sess = nil
	c.elapsed = 0
	c.metrics.SetActiveCall(false)
	return h
}

func (c *Controller) dispose() {
	if !c.state.InCall() {
		return
	}
	h := c.teardown()
	if h != 0 {
		c.releaseCapture(h)
	}
	c.transition(StateEnded)
}

func (c *Controller) startTimer(ctx context.Context, gen uint64) {
	c.elapsed = 0
	c.ui.Tick(0)
	every := c.tickInterval
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.post(timerTick{gen: gen})
			}
		}
	}()
}

func (c *Controller) onTick(ev timerTick) {
	if ev.gen != c.gen || !c.state.InCall() {
		return
	}
	c.elapsed++
	c.ui.Tick(c.elapsed)
	c.publish()
}

func (c *Controller) transition(next State) {
	prev := c.state
	if prev == next {
		return
	}
	c.state = next
	c.metrics.ObserveTransition(prev.String(), next.String())
	c.logger.Debug("state transition", zap.Stringer("from", prev), zap.Stringer("to", next))
	c.publish()
}

func (c *Controller) publish() {
	snap := &Snapshot{
		State:          c.state,
		ServerURL:      c.setup.ServerURL,
		ElapsedSeconds: c.elapsed,
		LastAgentURL:   c.lastAgentURL,
	}
	if c.sess != nil {
		snap.SessionID = c.sess.ID
		snap.ConnectedAt = c.sess.StartedAt
	}
	c.snapshot.Store(snap)
}
