package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/sentinelcall/internal/call"
	"github.com/ent0n29/sentinelcall/internal/config"
	"github.com/ent0n29/sentinelcall/internal/observability"
	"github.com/ent0n29/sentinelcall/internal/presenter"
	"github.com/ent0n29/sentinelcall/internal/protocol"
)

type fakeController struct {
	mu        sync.Mutex
	setups    []call.Setup
	startErr  error
	toggleErr error
	toggles   int
	ends      int
	replayErr error
	state     call.State
}

func (f *fakeController) StartCall(_ context.Context, setup call.Setup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setups = append(f.setups, setup)
	if f.startErr == nil {
		f.state = call.StateConnecting
	}
	return f.startErr
}

func (f *fakeController) ToggleRecording(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	return f.toggleErr
}

func (f *fakeController) EndSession(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends++
	f.state = call.StateEnded
	return nil
}

func (f *fakeController) ReplayAgentMessage(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replayErr
}

func (f *fakeController) Snapshot() call.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return call.Snapshot{State: f.state}
}

func newTestServer(t *testing.T, ctrl *fakeController, cfg config.Config) (*httptest.Server, *presenter.Hub) {
	t.Helper()
	hub := presenter.NewHub(32, nil)
	metrics := observability.NewMetrics("test_httpapi", prometheus.NewRegistry())
	srv := New(cfg, ctrl, hub, metrics, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, hub
}

func TestStartCallFillsDefaultsFromConfig(t *testing.T) {
	ctrl := &fakeController{}
	ts, _ := newTestServer(t, ctrl, config.Config{ServerURL: "http://agent:5001", AccountID: "acc-9", Country: "IN"})

	body, _ := json.Marshal(map[string]string{"dial": "+44 20 7946 0958"})
	res, err := http.Post(ts.URL+"/v1/call/start", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("start request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}

	var snap map[string]any
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if snap["state"] != "connecting" {
		t.Fatalf("state = %v, want connecting", snap["state"])
	}

	want := call.Setup{ServerURL: "http://agent:5001", Phone: "2079460958", AccountID: "acc-9", Country: "44"}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.setups) != 1 || ctrl.setups[0] != want {
		t.Fatalf("setups = %+v, want [%+v]", ctrl.setups, want)
	}
}

func TestStartCallMapsControllerErrors(t *testing.T) {
	ctrl := &fakeController{startErr: call.ErrCallActive}
	ts, _ := newTestServer(t, ctrl, config.Config{ServerURL: "http://agent"})

	res, err := http.Post(ts.URL+"/v1/call/start", "application/json", nil)
	if err != nil {
		t.Fatalf("start request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("start status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
	var payload errorResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if payload.Code != "call_active" {
		t.Fatalf("code = %q, want call_active", payload.Code)
	}
}

func TestStartCallRejectsMalformedBody(t *testing.T) {
	cfg := config.Config{ServerURL: "http://agent:5001", Phone: "5550001", AccountID: "ACC-1", Country: "IN"}
	for _, body := range []string{"{nope", `{"phone":"98765`, `{"server_url":`} {
		ctrl := &fakeController{}
		ts, _ := newTestServer(t, ctrl, cfg)
		res, err := http.Post(ts.URL+"/v1/call/start", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("start request error = %v", err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("start %q status = %d, want %d", body, res.StatusCode, http.StatusBadRequest)
		}
		ctrl.mu.Lock()
		placed := len(ctrl.setups)
		ctrl.mu.Unlock()
		if placed != 0 {
			t.Fatalf("start %q placed %d calls, want none", body, placed)
		}
	}
}

func TestStartCallWithEmptyBodyUsesConfig(t *testing.T) {
	cfg := config.Config{ServerURL: "http://agent:5001", Phone: "5550001", AccountID: "ACC-1", Country: "IN"}
	ctrl := &fakeController{}
	ts, _ := newTestServer(t, ctrl, cfg)
	res, err := http.Post(ts.URL+"/v1/call/start", "application/json", http.NoBody)
	if err != nil {
		t.Fatalf("start request error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.setups) != 1 || ctrl.setups[0].Phone != "5550001" {
		t.Fatalf("setups = %+v, want one call with the configured phone", ctrl.setups)
	}
}

func TestActionRoutes(t *testing.T) {
	cases := []struct {
		path   string
		ctrl   *fakeController
		status int
	}{
		{"/v1/call/record", &fakeController{}, http.StatusAccepted},
		{"/v1/call/record", &fakeController{toggleErr: call.ErrInputDisabled}, http.StatusConflict},
		{"/v1/call/end", &fakeController{}, http.StatusAccepted},
		{"/v1/call/replay", &fakeController{replayErr: call.ErrNoAgentMessage}, http.StatusNotFound},
		{"/v1/call/replay", &fakeController{replayErr: call.ErrClosed}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		ts, _ := newTestServer(t, tc.ctrl, config.Config{})
		res, err := http.Post(ts.URL+tc.path, "application/json", nil)
		if err != nil {
			t.Fatalf("POST %s error = %v", tc.path, err)
		}
		res.Body.Close()
		if res.StatusCode != tc.status {
			t.Fatalf("POST %s status = %d, want %d", tc.path, res.StatusCode, tc.status)
		}
	}
}

func TestHealthAndPerfRoutes(t *testing.T) {
	ts, _ := newTestServer(t, &fakeController{}, config.Config{})

	for _, path := range []string{"/healthz", "/v1/perf/latency", "/v1/call", "/metrics"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want %d", path, res.StatusCode, http.StatusOK)
		}
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, typ protocol.MessageType) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read %s: %v", typ, err)
		}
		if msg["type"] == string(typ) {
			return msg
		}
	}
}

func TestEventsWebsocket(t *testing.T) {
	ctrl := &fakeController{}
	ts, hub := newTestServer(t, ctrl, config.Config{})
	hub.SetStatus("Connected", "Listening for instructions...")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/call/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	status := readUntil(t, conn, protocol.TypeStatus)
	if status["title"] != "Connected" {
		t.Fatalf("replayed status = %v", status)
	}

	if err := conn.WriteJSON(protocol.ClientControl{Type: protocol.TypeClientControl, Action: protocol.ActionToggleRecord}); err != nil {
		t.Fatalf("write control: %v", err)
	}
	accepted := readUntil(t, conn, protocol.TypeControlAccepted)
	if accepted["action"] != protocol.ActionToggleRecord {
		t.Fatalf("accepted = %v", accepted)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"client_control","action":"dance"}`)); err != nil {
		t.Fatalf("write bad control: %v", err)
	}
	errEvent := readUntil(t, conn, protocol.TypeErrorEvent)
	if errEvent["code"] != "invalid_client_message" {
		t.Fatalf("error event = %v", errEvent)
	}

	hub.Notify("Failed to send response")
	notice := readUntil(t, conn, protocol.TypeNotice)
	if notice["message"] != "Failed to send response" {
		t.Fatalf("notice = %v", notice)
	}
}

func TestEventsWebsocketRejectsForeignOrigin(t *testing.T) {
	ts, _ := newTestServer(t, &fakeController{}, config.Config{})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/call/events"

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, res, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatalf("dial with foreign origin succeeded")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %+v, want 403", res)
	}
}
