package presenter

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/sentinelcall/internal/call"
	"github.com/ent0n29/sentinelcall/internal/protocol"
)

const minSubscriberBuffer = 16

// Hub turns controller events into protocol messages and broadcasts them to
// subscribers. New subscribers first receive the current screen state.
// Slow subscribers lose messages rather than stall the controller.
type Hub struct {
	logger *zap.Logger
	buffer int

	mu     sync.Mutex
	subs   map[string]chan any
	view   protocol.ViewChanged
	status *protocol.Status
	rec    protocol.Recording
	input  protocol.InputEnabled
	timer  protocol.TimerTick
	agent  *protocol.AgentMessage
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer < minSubscriberBuffer {
		buffer = minSubscriberBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger.Named("hub"),
		buffer: buffer,
		subs:   make(map[string]chan any),
		view:   protocol.ViewChanged{Type: protocol.TypeViewChanged, View: string(call.ViewSetup)},
		rec:    protocol.Recording{Type: protocol.TypeRecording},
		input:  protocol.InputEnabled{Type: protocol.TypeInputEnabled},
		timer:  protocol.TimerTick{Type: protocol.TypeTimerTick, Display: protocol.FormatElapsed(0)},
	}
}

// Subscribe registers a listener. The returned cancel func closes the channel.
func (h *Hub) Subscribe() (string, <-chan any, func()) {
	id := uuid.NewString()
	ch := make(chan any, h.buffer)

	h.mu.Lock()
	for _, msg := range h.currentLocked() {
		ch <- msg
	}
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return id, ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) currentLocked() []any {
	out := []any{h.view, h.timer, h.rec, h.input}
	if h.status != nil {
		out = append(out, *h.status)
	}
	if h.agent != nil {
		out = append(out, *h.agent)
	}
	return out
}

func (h *Hub) broadcastLocked(msg any) {
	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			t, _ := protocol.TypeOf(msg)
			h.logger.Debug("subscriber buffer full, dropping message",
				zap.String("subscriber", id),
				zap.String("type", string(t)),
			)
		}
	}
}

func (h *Hub) SetView(view call.View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.view = protocol.ViewChanged{Type: protocol.TypeViewChanged, View: string(view)}
	if view == call.ViewCall {
		h.agent = nil
	}
	h.broadcastLocked(h.view)
}

func (h *Hub) SetStatus(title, subtitle string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = &protocol.Status{Type: protocol.TypeStatus, Title: title, Subtitle: subtitle}
	h.broadcastLocked(*h.status)
}

func (h *Hub) SetRecordingActive(active bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rec.Active = active
	h.broadcastLocked(h.rec)
}

func (h *Hub) SetInputEnabled(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.input.Enabled = enabled
	h.broadcastLocked(h.input)
}

func (h *Hub) Tick(seconds int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timer.Seconds = seconds
	h.timer.Display = protocol.FormatElapsed(seconds)
	h.broadcastLocked(h.timer)
}

func (h *Hub) AnnounceAgentMessage(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.agent = &protocol.AgentMessage{Type: protocol.TypeAgentMessage, AudioURL: url}
	h.broadcastLocked(*h.agent)
}

// Notify is broadcast but not replayed to later subscribers.
func (h *Hub) Notify(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(protocol.Notice{Type: protocol.TypeNotice, Message: message})
}
