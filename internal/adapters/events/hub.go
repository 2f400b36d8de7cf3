// Package events streams session state and binding changes to websocket
// subscribers.
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/voiceroom/internal/app/binder"
	"github.com/dkeye/voiceroom/internal/app/session"
	"github.com/dkeye/voiceroom/internal/core"
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	TypeState          = "state"
	TypeBindingAdded   = "binding_added"
	TypeBindingRemoved = "binding_removed"
)

type Event struct {
	Type    string          `json:"type"`
	State   session.State   `json:"state,omitempty"`
	Room    domain.RoomID   `json:"room,omitempty"`
	Binding *binder.Binding `json:"binding,omitempty"`
	At      time.Time       `json:"at"`
}

// Hub fans events out to every attached connection. Publishing never
// blocks: a subscriber whose buffer is full is dropped.
type Hub struct {
	buffer int

	mu    sync.Mutex
	conns map[string]*conn
}

var _ session.Observer = (*Hub)(nil)

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{buffer: buffer, conns: make(map[string]*conn)}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve upgrades the request and attaches the connection until ctx ends
// or the peer goes away.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.events").Msg("ws upgrade")
		return
	}
	h.Attach(ctx, ws)
}

// Attach registers ws and starts its pumps. It returns the connection id.
func (h *Hub) Attach(ctx context.Context, ws WSConn) string {
	c := newConn(uuid.NewString(), ws, h.buffer)
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	log.Info().Str("module", "adapters.events").Str("conn", c.id).Msg("subscriber attached")

	ctx, cancel := context.WithCancel(ctx)
	go c.writePump(ctx)
	go c.readPump(ctx, func() {
		cancel()
		h.detach(c.id)
	})
	return c.id
}

func (h *Hub) detach(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if ok {
		c.Close()
		log.Info().Str("module", "adapters.events").Str("conn", id).Msg("subscriber detached")
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*conn)
	h.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.events").Msg("marshal event")
		return
	}

	h.mu.Lock()
	var slow []*conn
	for id, c := range h.conns {
		if err := c.TrySend(core.Frame(b)); err != nil {
			slow = append(slow, c)
			delete(h.conns, id)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		log.Warn().Str("module", "adapters.events").Str("conn", c.id).Msg("subscriber too slow, dropped")
		c.Close()
	}
}

func (h *Hub) StateChanged(state session.State, room domain.RoomID) {
	h.Publish(Event{Type: TypeState, State: state, Room: room})
}

func (h *Hub) BindingAdded(b binder.Binding) {
	h.Publish(Event{Type: TypeBindingAdded, Binding: &b})
}

func (h *Hub) BindingRemoved(b binder.Binding) {
	h.Publish(Event{Type: TypeBindingRemoved, Binding: &b})
}
