package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voiceroom/internal/app/binder"
	"github.com/dkeye/voiceroom/internal/app/session"
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(ctx, w, r)
	}))
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	waitFor(t, "subscriber", func() bool { return h.Len() == 1 })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return ev
}

func TestHubStreamsEvents(t *testing.T) {
	t.Parallel()
	h := NewHub(8)
	ws := dial(t, h)

	h.StateChanged(session.StateJoined, "room-1")
	ev := readEvent(t, ws)
	if ev.Type != TypeState || ev.State != session.StateJoined || ev.Room != "room-1" {
		t.Fatalf("state event = %+v", ev)
	}
	if ev.At.IsZero() {
		t.Fatal("event has no timestamp")
	}

	b := binder.Binding{Participant: "alice", TrackSID: "TR_1", Kind: domain.TrackKindAudio}
	h.BindingAdded(b)
	h.BindingRemoved(b)
	for _, want := range []string{TypeBindingAdded, TypeBindingRemoved} {
		ev := readEvent(t, ws)
		if ev.Type != want || ev.Binding == nil || *ev.Binding != b {
			t.Fatalf("event = %+v, want %s for %+v", ev, want, b)
		}
	}
}

func TestHubAnswersPing(t *testing.T) {
	t.Parallel()
	h := NewHub(8)
	ws := dial(t, h)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, ws); ev.Type != "pong" {
		t.Fatalf("reply type = %q, want pong", ev.Type)
	}
}

func TestHubDetachesClosedPeer(t *testing.T) {
	t.Parallel()
	h := NewHub(8)
	ws := dial(t, h)
	_ = ws.Close()
	waitFor(t, "detach", func() bool { return h.Len() == 0 })
}

type stuckWS struct {
	once   sync.Once
	closed chan struct{}
}

func newStuckWS() *stuckWS { return &stuckWS{closed: make(chan struct{})} }

func (s *stuckWS) ReadMessage() (int, []byte, error) {
	<-s.closed
	return 0, nil, errors.New("closed")
}

func (s *stuckWS) WriteMessage(int, []byte) error {
	<-s.closed
	return errors.New("closed")
}

func (s *stuckWS) SetWriteDeadline(time.Time) error { return nil }

func (s *stuckWS) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	t.Parallel()
	h := NewHub(1)
	ws := newStuckWS()
	h.Attach(context.Background(), ws)
	if h.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.Len())
	}

	for range 3 {
		h.StateChanged(session.StateConnecting, "room-1")
	}
	if h.Len() != 0 {
		t.Fatalf("Len() = %d after overflow, want 0", h.Len())
	}
	select {
	case <-ws.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("slow subscriber was not closed")
	}
}

func TestConnTrySendAfterClose(t *testing.T) {
	t.Parallel()
	c := newConn("c1", newStuckWS(), 1)
	c.Close()
	c.Close()
	if err := c.TrySend([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("TrySend err = %v, want ErrClosed", err)
	}
}
