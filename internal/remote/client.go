package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/sentinelcall/internal/audio"
	"github.com/ent0n29/sentinelcall/internal/observability"
	"github.com/ent0n29/sentinelcall/internal/session"
)

const (
	StatusContinued = "continued"
	StatusCompleted = "completed"

	responseFilename = "response.wav"
	maxResponseBody  = 1 << 20
)

// StartRequest is the body of POST /start-call.
type StartRequest struct {
	Phone     string `json:"phone"`
	AccountID string `json:"account_id"`
	Country   string `json:"country"`
}

type StartResult struct {
	SessionID string
	AudioURL  string
}

type SubmitResult struct {
	Status   string
	AudioURL string
}

func (r SubmitResult) Completed() bool { return r.Status == StatusCompleted }

// AgentMessage is one handover poll result.
type AgentMessage struct {
	HasAudio bool   `json:"has_audio"`
	AudioURL string `json:"audio_url,omitempty"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
	AudioURL  string `json:"audio_url"`
	Error     string `json:"error"`
}

type submitResponse struct {
	Status   string `json:"status"`
	AudioURL string `json:"audio_url"`
}

// Client talks to the voice agent server. It holds no state beyond the base
// URL and performs exactly one exchange per call, without retries.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	metrics *observability.Metrics
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: session.NormalizeBaseURL(baseURL),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("remote").With(zap.String("server", c.baseURL))
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) StartCall(ctx context.Context, req StartRequest) (StartResult, error) {
	started := time.Now()
	res, err := c.startCall(ctx, req)
	c.observe("start_call", err, started)
	return res, err
}

func (c *Client) startCall(ctx context.Context, req StartRequest) (StartResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return StartResult{}, &ConnectionError{Err: fmt.Errorf("marshal request: %w", err)}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/start-call", bytes.NewReader(payload))
	if err != nil {
		return StartResult{}, &ConnectionError{Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return StartResult{}, &ConnectionError{Err: fmt.Errorf("send request: %w", err)}
	}
	defer res.Body.Close()

	// The body decides success: a session id wins, an error field is surfaced as is.
	var body startResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBody)).Decode(&body); err != nil {
		return StartResult{}, &ConnectionError{Err: fmt.Errorf("decode response (http %d): %w", res.StatusCode, err)}
	}
	if id := strings.TrimSpace(body.SessionID); id != "" {
		return StartResult{SessionID: id, AudioURL: strings.TrimSpace(body.AudioURL)}, nil
	}
	if msg := strings.TrimSpace(body.Error); msg != "" {
		return StartResult{}, &ConnectionError{Message: msg}
	}
	return StartResult{}, &ConnectionError{Err: fmt.Errorf("response without session_id (http %d)", res.StatusCode)}
}

func (c *Client) SubmitResponse(ctx context.Context, sessionID string, clip audio.Clip) (SubmitResult, error) {
	started := time.Now()
	res, err := c.submitResponse(ctx, sessionID, clip)
	c.observe("submit_response", err, started)
	return res, err
}

func (c *Client) submitResponse(ctx context.Context, sessionID string, clip audio.Clip) (SubmitResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return SubmitResult{}, &SubmissionError{Err: session.ErrMissingID}
	}
	body, contentType, err := multipartClip(sessionID, clip)
	if err != nil {
		return SubmitResult{}, &SubmissionError{Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submit-response", body)
	if err != nil {
		return SubmitResult{}, &SubmissionError{Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", contentType)

	res, err := c.client.Do(httpReq)
	if err != nil {
		return SubmitResult{}, &SubmissionError{Err: fmt.Errorf("send request: %w", err)}
	}
	defer res.Body.Close()

	var decoded submitResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBody)).Decode(&decoded); err != nil {
		return SubmitResult{}, &SubmissionError{Err: fmt.Errorf("decode response (http %d): %w", res.StatusCode, err)}
	}

	switch decoded.Status {
	case StatusCompleted:
		return SubmitResult{Status: StatusCompleted}, nil
	case StatusContinued:
		return SubmitResult{Status: StatusContinued, AudioURL: strings.TrimSpace(decoded.AudioURL)}, nil
	default:
		c.logger.Debug("unrecognised submit response treated as continued",
			zap.Int("http_status", res.StatusCode),
			zap.String("status", decoded.Status),
		)
		return SubmitResult{Status: StatusContinued}, nil
	}
}

// PollAgent asks whether the operator queued audio. Every failure yields nil.
func (c *Client) PollAgent(ctx context.Context, sessionID string) *AgentMessage {
	started := time.Now()
	msg, err := c.pollAgent(ctx, sessionID)
	c.observe("poll_agent", err, started)
	if err != nil {
		c.logger.Debug("poll failed", zap.Error(err))
		return nil
	}
	return msg
}

func (c *Client) pollAgent(ctx context.Context, sessionID string) (*AgentMessage, error) {
	endpoint := c.baseURL + "/client/poll_agent/" + url.PathEscape(sessionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("poll http status %d", res.StatusCode)
	}

	var msg AgentMessage
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBody)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}
	msg.AudioURL = strings.TrimSpace(msg.AudioURL)
	if msg.AudioURL == "" {
		msg.HasAudio = false
	}
	return &msg, nil
}

func (c *Client) observe(endpoint string, err error, started time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.Canceled) {
			outcome = "cancelled"
		}
	}
	c.metrics.ObserveRemote(endpoint, outcome, time.Since(started))
}

func multipartClip(sessionID string, clip audio.Clip) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, responseFilename))
	h.Set("Content-Type", clip.ContentType())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := w.WriteField("session_id", sessionID); err != nil {
		return nil, "", fmt.Errorf("write session_id: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
