package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/sentinelcall/internal/call"
	"github.com/ent0n29/sentinelcall/internal/config"
	"github.com/ent0n29/sentinelcall/internal/observability"
	"github.com/ent0n29/sentinelcall/internal/presenter"
	"github.com/ent0n29/sentinelcall/internal/protocol"
)

// Controller is the call surface exposed over HTTP.
type Controller interface {
	StartCall(ctx context.Context, setup call.Setup) error
	ToggleRecording(ctx context.Context) error
	EndSession(ctx context.Context) error
	ReplayAgentMessage(ctx context.Context) error
	Snapshot() call.Snapshot
}

type Server struct {
	cfg      config.Config
	ctrl     Controller
	hub      *presenter.Hub
	metrics  *observability.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, ctrl Controller, hub *presenter.Hub, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		hub:     hub,
		metrics: metrics,
		logger:  logger.Named("httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive the microphone.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Get("/v1/call", s.handleSnapshot)
	r.Post("/v1/call/start", s.handleStart)
	r.Post("/v1/call/record", s.action(protocol.ActionToggleRecord))
	r.Post("/v1/call/end", s.action(protocol.ActionEnd))
	r.Post("/v1/call/replay", s.action(protocol.ActionReplay))
	r.Get("/v1/call/events", s.handleEventsWS)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.ctrl.Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"state":  snap.State,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

// startCallRequest accepts either discrete fields or a dial string such as
// "+91 9876543210". Fields left empty fall back to configuration.
type startCallRequest struct {
	call.Setup
	Dial string `json:"dial"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	setup := req.Setup
	if dial := strings.TrimSpace(req.Dial); dial != "" {
		setup.Phone, setup.Country = call.ParseDialString(dial)
	}
	if strings.TrimSpace(setup.ServerURL) == "" {
		setup.ServerURL = s.cfg.ServerURL
	}
	if strings.TrimSpace(setup.Phone) == "" {
		setup.Phone = s.cfg.Phone
	}
	if strings.TrimSpace(setup.AccountID) == "" {
		setup.AccountID = s.cfg.AccountID
	}
	if strings.TrimSpace(setup.Country) == "" {
		setup.Country = s.cfg.Country
	}

	if err := s.ctrl.StartCall(r.Context(), setup); err != nil {
		s.respondControlError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, s.ctrl.Snapshot())
}

func (s *Server) action(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.dispatch(r.Context(), name); err != nil {
			s.respondControlError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, s.ctrl.Snapshot())
	}
}

func (s *Server) dispatch(ctx context.Context, action string) error {
	switch action {
	case protocol.ActionToggleRecord:
		return s.ctrl.ToggleRecording(ctx)
	case protocol.ActionEnd:
		return s.ctrl.EndSession(ctx)
	case protocol.ActionReplay:
		return s.ctrl.ReplayAgentMessage(ctx)
	default:
		return protocol.ErrUnsupportedAction
	}
}

func controlErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, call.ErrInvalidSetup):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, protocol.ErrUnsupportedAction):
		return http.StatusBadRequest, "unsupported_action"
	case errors.Is(err, call.ErrCallActive):
		return http.StatusConflict, "call_active"
	case errors.Is(err, call.ErrNotInCall):
		return http.StatusConflict, "not_in_call"
	case errors.Is(err, call.ErrNotInHandover):
		return http.StatusConflict, "not_in_handover"
	case errors.Is(err, call.ErrInputDisabled):
		return http.StatusConflict, "input_disabled"
	case errors.Is(err, call.ErrPlaybackBusy):
		return http.StatusConflict, "playback_busy"
	case errors.Is(err, call.ErrNoAgentMessage):
		return http.StatusNotFound, "no_agent_message"
	case errors.Is(err, call.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) respondControlError(w http.ResponseWriter, err error) {
	status, code := controlErrorStatus(err)
	respondError(w, status, code, err.Error())
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "event hub not configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subID, events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()
	logger := s.logger.With(zap.String("subscriber", subID))
	logger.Debug("event stream connected")

	replies := make(chan any, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case m, ok := <-events:
				if !ok {
					return
				}
				msg = m
			case msg = <-replies:
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("event stream write failed", zap.Error(err))
				cancel()
				return
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		var reply any
		parsed, err := protocol.ParseClientMessage(data)
		switch {
		case err != nil:
			reply = protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "invalid_client_message", Detail: err.Error()}
		default:
			if err := s.dispatch(ctx, parsed.Action); err != nil {
				_, code := controlErrorStatus(err)
				reply = protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: code, Detail: err.Error()}
			} else {
				reply = protocol.ControlAccepted{Type: protocol.TypeControlAccepted, Action: parsed.Action}
			}
		}
		select {
		case replies <- reply:
		default:
			// Keep websocket writes single-threaded; drop if the reply queue is saturated.
			logger.Debug("reply queue full, dropping", zap.Any("reply", reply))
		}
	}

	cancel()
	<-writerDone
	logger.Debug("event stream disconnected")
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		// A truncated document surfaces as io.ErrUnexpectedEOF and stays an error.
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
