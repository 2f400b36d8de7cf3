// Package livekit adapts the LiveKit Go client to the core transport port.
package livekit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/voiceroom/internal/core"
	"github.com/dkeye/voiceroom/internal/domain"
	lkproto "github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Publishable is implemented by local tracks that can be sent over a
// LiveKit room.
type Publishable interface {
	core.LocalTrack
	TrackLocal() webrtc.TrackLocal
}

type Factory struct {
	AutoSubscribe bool
}

func NewFactory() *Factory { return &Factory{AutoSubscribe: true} }

// New creates the room with its callbacks wired before any connect.
func (f *Factory) New(events core.TransportEvents) core.Transport {
	t := &Transport{pubs: make(map[string]*publication), autoSubscribe: f.AutoSubscribe}
	t.events.Store(&eventsBox{events})
	t.room = lksdk.NewRoom(t.callback())
	return t
}

type eventsBox struct{ core.TransportEvents }

// Transport wraps one lksdk.Room. The room lives until Disconnect; the
// context passed to Connect only bounds the connect itself.
type Transport struct {
	room          *lksdk.Room
	autoSubscribe bool
	events        atomic.Pointer[eventsBox]

	mu   sync.Mutex
	pubs map[string]*publication

	remoteGone     atomic.Bool
	disconnectOnce sync.Once
}

var _ core.Transport = (*Transport)(nil)

func (t *Transport) callback() *lksdk.RoomCallback {
	cb := lksdk.NewRoomCallback()
	cb.ParticipantCallback.OnTrackSubscribed = func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
		if ev := t.listener(); ev != nil {
			ev.OnTrackSubscribed(domain.UserID(rp.Identity()), &remoteTrack{track: track, sid: pub.SID(), kind: trackKind(pub.Kind())})
		}
	}
	cb.ParticipantCallback.OnTrackUnsubscribed = func(_ *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
		if ev := t.listener(); ev != nil {
			ev.OnTrackUnsubscribed(domain.UserID(rp.Identity()), pub.SID())
		}
	}
	cb.OnParticipantDisconnected = func(rp *lksdk.RemoteParticipant) {
		if ev := t.listener(); ev != nil {
			ev.OnParticipantDisconnected(domain.UserID(rp.Identity()))
		}
	}
	cb.OnDisconnectedWithReason = func(reason lksdk.DisconnectionReason) {
		t.remoteGone.Store(true)
		if ev := t.listener(); ev != nil {
			// The room is still unwinding inside this callback.
			go ev.OnDisconnected(string(reason))
		}
	}
	return cb
}

func (t *Transport) listener() core.TransportEvents {
	if box := t.events.Load(); box != nil {
		return box.TransportEvents
	}
	return nil
}

func (t *Transport) Connect(ctx context.Context, url, token string) error {
	done := make(chan error, 1)
	go func() {
		done <- t.room.JoinWithToken(url, token, lksdk.WithAutoSubscribe(t.autoSubscribe))
	}()
	select {
	case err := <-done:
		if err != nil {
			return &core.TransportError{Op: "connect", Err: err}
		}
		log.Info().Str("module", "adapters.livekit").Str("room", t.room.Name()).Str("sid", t.room.SID()).Msg("connected")
		return nil
	case <-ctx.Done():
		// The join keeps running in the SDK; disconnect once it settles.
		go func() {
			if err := <-done; err == nil {
				t.room.Disconnect()
			}
		}()
		return &core.TransportError{Op: "connect", Err: ctx.Err()}
	}
}

// StartAudio makes sure every remote audio publication is subscribed.
func (t *Transport) StartAudio(_ context.Context) error {
	var errs []error
	for _, rp := range t.room.GetRemoteParticipants() {
		for _, p := range rp.TrackPublications() {
			pub, ok := p.(*lksdk.RemoteTrackPublication)
			if !ok || pub.Kind() != lksdk.TrackKindAudio || pub.IsSubscribed() {
				continue
			}
			if err := pub.SetSubscribed(true); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t *Transport) Publish(_ context.Context, track core.LocalTrack, opts core.PublishOptions) (core.Publication, error) {
	p, ok := track.(Publishable)
	if !ok {
		return nil, core.ErrUnsupportedTrack
	}
	lkOpts := &lksdk.TrackPublicationOptions{
		Name:        opts.Name,
		VideoWidth:  opts.Width,
		VideoHeight: opts.Height,
	}
	switch track.Kind() {
	case domain.TrackKindAudio:
		lkOpts.Source = lkproto.TrackSource_MICROPHONE
	case domain.TrackKindVideo:
		lkOpts.Source = lkproto.TrackSource_CAMERA
	}
	lp, err := t.room.LocalParticipant.PublishTrack(p.TrackLocal(), lkOpts)
	if err != nil {
		return nil, &core.TransportError{Op: "publish", Err: err}
	}
	pub := &publication{sid: lp.SID(), kind: track.Kind(), track: track}
	t.mu.Lock()
	t.pubs[pub.sid] = pub
	t.mu.Unlock()
	return pub, nil
}

func (t *Transport) Unpublish(pub core.Publication) error {
	t.mu.Lock()
	delete(t.pubs, pub.SID())
	t.mu.Unlock()
	if t.remoteGone.Load() {
		return nil
	}
	if err := t.room.LocalParticipant.UnpublishTrack(pub.SID()); err != nil {
		return &core.TransportError{Op: "unpublish", Err: err}
	}
	return nil
}

func (t *Transport) Publications() []core.Publication {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]core.Publication, 0, len(t.pubs))
	for _, p := range t.pubs {
		out = append(out, p)
	}
	return out
}

func (t *Transport) Unregister() { t.events.Store(nil) }

// Disconnect leaves the room once; a room the server already closed is not
// touched again.
func (t *Transport) Disconnect() error {
	t.disconnectOnce.Do(func() {
		if t.remoteGone.Load() {
			return
		}
		t.room.Disconnect()
		log.Info().Str("module", "adapters.livekit").Str("room", t.room.Name()).Msg("disconnected")
	})
	return nil
}

func trackKind(k lksdk.TrackKind) domain.TrackKind {
	if k == lksdk.TrackKindVideo {
		return domain.TrackKindVideo
	}
	return domain.TrackKindAudio
}

type publication struct {
	sid   string
	kind  domain.TrackKind
	track core.LocalTrack
}

func (p *publication) SID() string            { return p.sid }
func (p *publication) Kind() domain.TrackKind { return p.kind }
func (p *publication) Track() core.LocalTrack { return p.track }
