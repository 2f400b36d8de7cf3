package binder

import (
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/voiceroom/internal/core"
	"github.com/dkeye/voiceroom/internal/core/coretest"
	"github.com/dkeye/voiceroom/internal/domain"
)

type recorder struct {
	mu      sync.Mutex
	added   []Binding
	removed []Binding
}

func (r *recorder) BindingAdded(b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, b)
}

func (r *recorder) BindingRemoved(b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, b)
}

func audio(sid string) coretest.RemoteTrack {
	return coretest.RemoteTrack{TrackSID: sid, TrackKind: domain.TrackKindAudio}
}

func video(sid string) coretest.RemoteTrack {
	return coretest.RemoteTrack{TrackSID: sid, TrackKind: domain.TrackKindVideo}
}

func TestSubscribeThenUnsubscribe(t *testing.T) {
	t.Parallel()

	surf := coretest.NewSurface()
	b := New(core.Mounts{Audio: surf}, nil)

	b.TrackSubscribed("alice", audio("TR_a"))
	key := domain.BindingKey{Participant: "alice", TrackSID: "TR_a"}
	el, ok := surf.Element(key)
	if !ok {
		t.Fatal("element not created on audio surface")
	}
	if !el.Autoplay() {
		t.Fatal("element not autoplaying")
	}

	b.TrackUnsubscribed("alice", "TR_a")
	if b.Len() != 0 || len(surf.Keys()) != 0 {
		t.Fatalf("binding survived unsubscribe: len %d keys %v", b.Len(), surf.Keys())
	}
	if el.Detached() != 1 {
		t.Fatalf("detached = %d, want 1", el.Detached())
	}
}

func TestUnsubscribeUnknownKeyIsNoop(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	b := New(core.Mounts{Audio: coretest.NewSurface()}, rec)
	b.TrackSubscribed("alice", audio("TR_a"))

	b.TrackUnsubscribed("bob", "TR_a")
	b.TrackUnsubscribed("alice", "TR_missing")
	if b.Len() != 1 {
		t.Fatalf("len = %d, want 1", b.Len())
	}
	if len(rec.removed) != 0 {
		t.Fatalf("removed = %v, want none", rec.removed)
	}
}

func TestNoSurfaceMeansNoBinding(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	b := New(core.Mounts{Audio: coretest.NewSurface()}, rec)
	b.TrackSubscribed("alice", video("TR_v"))
	if b.Len() != 0 || len(rec.added) != 0 {
		t.Fatalf("video bound without a video surface")
	}
}

func TestSurfaceFailureCreatesNoBinding(t *testing.T) {
	t.Parallel()

	surf := coretest.NewSurface()
	surf.CreateErr = errors.New("no decoder")
	b := New(core.Mounts{Video: surf}, nil)
	b.TrackSubscribed("alice", video("TR_v"))
	if b.Len() != 0 {
		t.Fatalf("len = %d, want 0", b.Len())
	}
}

func TestResubscribeReplacesElement(t *testing.T) {
	t.Parallel()

	surf := coretest.NewSurface()
	b := New(core.Mounts{Audio: surf}, nil)
	key := domain.BindingKey{Participant: "alice", TrackSID: "TR_a"}

	b.TrackSubscribed("alice", audio("TR_a"))
	first, _ := surf.Element(key)
	b.TrackSubscribed("alice", audio("TR_a"))

	if first.Detached() != 1 {
		t.Fatalf("stale element detached = %d, want 1", first.Detached())
	}
	if b.Len() != 1 {
		t.Fatalf("len = %d, want 1", b.Len())
	}
}

func TestParticipantDisconnectedIsExact(t *testing.T) {
	t.Parallel()

	surf := coretest.NewSurface()
	vid := coretest.NewSurface()
	b := New(core.Mounts{Audio: surf, Video: vid}, nil)

	b.TrackSubscribed("al", audio("TR_1"))
	b.TrackSubscribed("alice", audio("TR_2"))
	b.TrackSubscribed("alice", video("TR_3"))
	b.TrackSubscribed("alice2", audio("TR_4"))
	b.TrackSubscribed("bob/alice", audio("TR_5"))

	if n := b.ParticipantDisconnected("alice"); n != 2 {
		t.Fatalf("removed = %d, want 2", n)
	}

	want := []Binding{
		{Participant: "al", TrackSID: "TR_1", Kind: domain.TrackKindAudio},
		{Participant: "alice2", TrackSID: "TR_4", Kind: domain.TrackKindAudio},
		{Participant: "bob/alice", TrackSID: "TR_5", Kind: domain.TrackKindAudio},
	}
	got := b.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if len(vid.Keys()) != 0 {
		t.Fatalf("video surface still holds %v", vid.Keys())
	}
}

func TestDetachAllContinuesPastFailuresAndCloses(t *testing.T) {
	t.Parallel()

	surf := coretest.NewSurface()
	rec := &recorder{}
	b := New(core.Mounts{Audio: surf}, rec)
	b.TrackSubscribed("alice", audio("TR_1"))
	b.TrackSubscribed("bob", audio("TR_2"))

	el, _ := surf.Element(domain.BindingKey{Participant: "alice", TrackSID: "TR_1"})
	el.DetachErr = errors.New("already gone")

	if err := b.DetachAll(); err == nil {
		t.Fatal("expected joined detach error")
	}
	if b.Len() != 0 || len(surf.Keys()) != 0 {
		t.Fatalf("bindings left after DetachAll: %v", surf.Keys())
	}
	if len(rec.removed) != 2 {
		t.Fatalf("removed events = %d, want 2", len(rec.removed))
	}

	b.TrackSubscribed("carol", audio("TR_3"))
	if b.Len() != 0 || len(surf.Keys()) != 0 {
		t.Fatal("closed binder accepted a new binding")
	}
}

// sequence records observer events for one key in delivery order.
type sequence struct {
	mu     sync.Mutex
	events []string
}

func (s *sequence) BindingAdded(Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "added")
}

func (s *sequence) BindingRemoved(Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "removed")
}

func TestObserverOrderUnderConcurrentChurn(t *testing.T) {
	t.Parallel()

	seq := &sequence{}
	b := New(core.Mounts{Audio: coretest.NewSurface()}, seq)

	for range 200 {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.TrackSubscribed("alice", audio("TR_a"))
		}()
		go func() {
			defer wg.Done()
			b.TrackUnsubscribed("alice", "TR_a")
		}()
		wg.Wait()
	}
	if err := b.DetachAll(); err != nil {
		t.Fatalf("DetachAll: %v", err)
	}

	seq.mu.Lock()
	defer seq.mu.Unlock()
	if len(seq.events)%2 != 0 {
		t.Fatalf("%d events, want added/removed pairs", len(seq.events))
	}
	for i, ev := range seq.events {
		want := "added"
		if i%2 == 1 {
			want = "removed"
		}
		if ev != want {
			t.Fatalf("event %d = %s, want %s (events %v)", i, ev, want, seq.events)
		}
	}
}
