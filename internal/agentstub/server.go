// Package agentstub is an in-memory stand-in for the remote voice agent
// server. It speaks the same wire contract as the production server: a
// scripted sequence of questions, followed by a human operator who can push
// audio messages to the caller.
package agentstub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/sentinelcall/internal/audio"
	"github.com/ent0n29/sentinelcall/internal/redact"
)

const (
	maxUploadBytes    = 32 << 20
	defaultSampleRate = 16000
	registeredCountry = "IN"
)

type Config struct {
	Prompts    []Prompt
	SampleRate int
}

type callSession struct {
	ID              string    `json:"id"`
	Phone           string    `json:"phone"`
	AccountID       string    `json:"account_id"`
	Country         string    `json:"country"`
	CountryMismatch bool      `json:"country_mismatch"`
	Step            int       `json:"step"`
	Responses       int       `json:"responses"`
	AudioBytes      int       `json:"audio_bytes"`
	Completed       bool      `json:"completed"`
	StartedAt       time.Time `json:"started_at"`
}

// Server holds all sessions, prompt audio and operator clips in memory.
type Server struct {
	prompts    []Prompt
	sampleRate int
	logger     *zap.Logger

	mu         sync.Mutex
	sessions   map[string]*callSession
	outbox     map[string]string
	promptWAV  map[string][]byte
	agentClips map[string][]byte
}

func New(cfg Config, logger *zap.Logger) (*Server, error) {
	if len(cfg.Prompts) == 0 {
		cfg.Prompts = DefaultPrompts()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		prompts:    cfg.Prompts,
		sampleRate: cfg.SampleRate,
		logger:     logger.Named("agentstub"),
		sessions:   make(map[string]*callSession),
		outbox:     make(map[string]string),
		promptWAV:  make(map[string][]byte, len(cfg.Prompts)),
		agentClips: make(map[string][]byte),
	}
	for _, p := range cfg.Prompts {
		wav, err := toneWAV(p.ToneHz, p.Duration, cfg.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("render prompt %s: %w", p.ID, err)
		}
		s.promptWAV[p.filename()] = wav
	}
	return s, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Post("/start-call", s.handleStartCall)
	r.Post("/submit-response", s.handleSubmitResponse)
	r.Get("/client/poll_agent/{id}", s.handlePollAgent)
	r.Post("/agent/speak", s.handleAgentSpeak)
	r.Get("/agent/api/sessions", s.handleListSessions)
	r.Get("/audio/{name}", s.handlePromptAudio)
	r.Get("/agent/audio/{name}", s.handleAgentAudio)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "ivr_backend"})
}

type startCallRequest struct {
	Phone     string `json:"phone"`
	AccountID string `json:"account_id"`
	Country   string `json:"country"`
}

func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		respondError(w, http.StatusBadRequest, "Phone required")
		return
	}
	if req.Country == "" {
		req.Country = registeredCountry
	}
	if req.AccountID == "" {
		req.AccountID = "UNKNOWN"
	}

	sess := &callSession{
		ID:              uuid.NewString(),
		Phone:           req.Phone,
		AccountID:       req.AccountID,
		Country:         req.Country,
		CountryMismatch: req.Country != registeredCountry,
		StartedAt:       time.Now().UTC(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	first := s.prompts[0]
	s.logger.Info("call started",
		zap.String("session_id", sess.ID),
		zap.String("phone", redact.Phone(sess.Phone)),
		zap.String("account_id", sess.AccountID),
		zap.Bool("country_mismatch", sess.CountryMismatch),
	)
	respondJSON(w, http.StatusOK, map[string]string{
		"session_id": sess.ID,
		"message":    "Call Started",
		"audio_url":  "/audio/" + first.filename(),
		"next_step":  first.ID,
	})
}

func (s *Server) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "No file part")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Unreadable file")
		return
	}

	id := r.FormValue("session_id")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "Invalid Session")
		return
	}
	sess.Responses++
	sess.AudioBytes += len(data)
	sess.Step++
	step := sess.Step
	if step >= len(s.prompts) {
		sess.Completed = true
	}
	report := *sess
	s.mu.Unlock()

	s.logger.Info("response received",
		zap.String("session_id", id),
		zap.Int("step", step),
		zap.Int("bytes", len(data)),
		zap.Bool("wav", audio.HasRIFFHeader(data)),
	)
	if step < len(s.prompts) {
		next := s.prompts[step]
		respondJSON(w, http.StatusOK, map[string]string{
			"status":    "continued",
			"audio_url": "/audio/" + next.filename(),
			"next_step": next.ID,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "completed",
		"report": report,
	})
}

func (s *Server) handlePollAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	name, ok := s.outbox[id]
	if ok {
		delete(s.outbox, id)
	}
	s.mu.Unlock()

	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{"has_audio": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"has_audio": true,
		"audio_url": hostURL(r) + "agent/audio/" + name,
	})
}

// handleAgentSpeak queues an operator clip for the caller. A newer clip
// replaces one that has not been fetched yet.
func (s *Server) handleAgentSpeak(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "No session_id")
		return
	}
	id := r.FormValue("session_id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "No session_id")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !audio.HasRIFFHeader(data) {
		// Raw PCM from a recorder; wrap it so any player can handle it.
		if data, err = audio.EncodeWAVPCM16LE(data, s.sampleRate); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	name := fmt.Sprintf("agent_%s.wav", strings.ReplaceAll(uuid.NewString(), "-", ""))
	s.mu.Lock()
	s.agentClips[name] = data
	s.outbox[id] = name
	s.mu.Unlock()

	s.logger.Info("agent message queued", zap.String("session_id", id), zap.String("file", name))
	respondJSON(w, http.StatusOK, map[string]string{"status": "sent", "url": "/agent/audio/" + name})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]callSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handlePromptAudio(w http.ResponseWriter, r *http.Request) {
	s.serveClip(w, s.promptWAV, chi.URLParam(r, "name"))
}

func (s *Server) handleAgentAudio(w http.ResponseWriter, r *http.Request) {
	s.serveClip(w, s.agentClips, chi.URLParam(r, "name"))
}

func (s *Server) serveClip(w http.ResponseWriter, clips map[string][]byte, name string) {
	s.mu.Lock()
	data, ok := clips[name]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, nil)
		return
	}
	w.Header().Set("Content-Type", audio.ContentTypeWAV)
	_, _ = w.Write(data)
}

// hostURL is the base URL the client used to reach us, with a trailing slash.
func hostURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/"
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
