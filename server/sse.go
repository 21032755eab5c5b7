package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/deedzorg/twitchconnect/chat"
)

// sseEvent is one event on the live feed.
type sseEvent struct {
	Type    string
	Channel string
	Payload any
}

// subscriber is one connected SSE client. A non-empty filter restricts the
// feed to a single channel.
type subscriber struct {
	ch     chan sseEvent
	filter string
}

// Hub fans chat events out to connected SSE clients. It implements
// chat.Renderer, so sessions publish straight into it. A slow client's
// buffer filling up drops events for that client rather than blocking the
// session read loop.
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a client. The returned cancel must be called when the
// client disconnects.
func (h *Hub) Subscribe(filter string) (<-chan sseEvent, func()) {
	sub := &subscriber{
		ch:     make(chan sseEvent, 64),
		filter: chat.NormalizeChannel(filter),
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub.ch, func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
	}
}

func (h *Hub) publish(ev sseEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.filter != "" && sub.filter != ev.Channel {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// OnMessage implements chat.Renderer.
func (h *Hub) OnMessage(msg chat.RenderedMessage) {
	h.publish(sseEvent{Type: "message", Channel: msg.Channel, Payload: msg})
}

// OnSessionOpened implements chat.Renderer.
func (h *Hub) OnSessionOpened(channel string) {
	h.publish(sseEvent{Type: "session_opened", Channel: channel, Payload: map[string]string{"channel": channel}})
}

// OnSessionClosed implements chat.Renderer.
func (h *Hub) OnSessionClosed(channel string) {
	h.publish(sseEvent{Type: "session_closed", Channel: channel, Payload: map[string]string{"channel": channel}})
}

// HandleChatStream streams the live chat feed as Server-Sent Events. An
// optional ?channel= parameter restricts the feed to one channel.
func (h *Handlers) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel := h.deps.Hub.Subscribe(r.URL.Query().Get("channel"))
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		case ev := <-events:
			if _, err := w.Write([]byte("event: " + ev.Type + "\ndata: ")); err != nil {
				return
			}
			if err := enc.Encode(ev.Payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
