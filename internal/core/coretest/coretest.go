// Package coretest provides in-memory implementations of the core ports for
// tests.
package coretest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dkeye/voiceroom/internal/core"
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/pion/rtp"
)

// Track is a LocalTrack that counts Stop calls.
type Track struct {
	kind  domain.TrackKind
	label string

	mu      sync.Mutex
	stops   int
	StopErr error
}

func NewTrack(kind domain.TrackKind, label string) *Track {
	return &Track{kind: kind, label: label}
}

func (t *Track) Kind() domain.TrackKind { return t.kind }
func (t *Track) Label() string          { return t.label }

func (t *Track) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	return t.StopErr
}

func (t *Track) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

type stream struct{ tracks []core.LocalTrack }

func (s stream) Tracks() []core.LocalTrack { return s.tracks }

// Devices hands out Tracks and records what was requested.
type Devices struct {
	mu sync.Mutex

	UserMediaErr   error
	MicErr         error
	CameraErr      error
	// OnCreateCamera, when set, runs at the start of CreateCameraTrack
	// without the lock held.
	OnCreateCamera func()

	Granted       []*Track
	Created       []*Track
	MicOptions    core.AudioCaptureOptions
	CameraOptions core.VideoCaptureOptions
}

func (d *Devices) GetUserMedia(_ context.Context, c core.Constraints) (core.MediaStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.UserMediaErr != nil {
		return nil, d.UserMediaErr
	}
	var s stream
	if c.Audio {
		t := NewTrack(domain.TrackKindAudio, "preflight-audio")
		d.Granted = append(d.Granted, t)
		s.tracks = append(s.tracks, t)
	}
	if c.Video {
		t := NewTrack(domain.TrackKindVideo, "preflight-video")
		d.Granted = append(d.Granted, t)
		s.tracks = append(s.tracks, t)
	}
	return s, nil
}

func (d *Devices) CreateMicrophoneTrack(_ context.Context, opts core.AudioCaptureOptions) (core.LocalTrack, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.MicErr != nil {
		return nil, d.MicErr
	}
	d.MicOptions = opts
	t := NewTrack(domain.TrackKindAudio, "microphone")
	d.Created = append(d.Created, t)
	return t, nil
}

func (d *Devices) CreateCameraTrack(_ context.Context, opts core.VideoCaptureOptions) (core.LocalTrack, error) {
	d.mu.Lock()
	hook := d.OnCreateCamera
	d.mu.Unlock()
	if hook != nil {
		hook()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.CameraErr != nil {
		return nil, d.CameraErr
	}
	d.CameraOptions = opts
	t := NewTrack(domain.TrackKindVideo, "camera-"+string(opts.Facing))
	d.Created = append(d.Created, t)
	return t, nil
}

// CreatedTracks returns a snapshot of every capture track handed out.
func (d *Devices) CreatedTracks() []*Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Track(nil), d.Created...)
}

type Publication struct {
	sid   string
	kind  domain.TrackKind
	track core.LocalTrack
}

func (p *Publication) SID() string            { return p.sid }
func (p *Publication) Kind() domain.TrackKind { return p.kind }
func (p *Publication) Track() core.LocalTrack { return p.track }

// RemoteTrack is a subscribed track with no media.
type RemoteTrack struct {
	TrackSID  string
	TrackKind domain.TrackKind
}

func (r RemoteTrack) SID() string                   { return r.TrackSID }
func (r RemoteTrack) Kind() domain.TrackKind        { return r.TrackKind }
func (r RemoteTrack) MimeType() string              { return "" }
func (r RemoteTrack) ReadRTP() (*rtp.Packet, error) { return nil, io.EOF }

// Transport is an in-memory media room connection.
type Transport struct {
	mu     sync.Mutex
	events core.TransportEvents

	ConnectErr    error
	StartAudioErr error
	PublishErr    error
	UnpublishErr  func(core.Publication) error
	DisconnectErr error
	// Gate, when set, makes Connect wait until it is closed or ctx ends.
	Gate          chan struct{}
	// OnStartAudio, when set, runs inside StartAudio without the lock held.
	OnStartAudio  func()

	URL, Token   string
	pubs         []core.Publication
	seq          int
	connects     int
	disconnects  int
	audioStarts  int
	unregistered bool
}

func (t *Transport) Connect(ctx context.Context, url, token string) error {
	t.mu.Lock()
	t.connects++
	t.URL, t.Token = url, token
	gate, err := t.Gate, t.ConnectErr
	t.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (t *Transport) StartAudio(context.Context) error {
	t.mu.Lock()
	t.audioStarts++
	hook, err := t.OnStartAudio, t.StartAudioErr
	t.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (t *Transport) Publish(_ context.Context, track core.LocalTrack, _ core.PublishOptions) (core.Publication, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.PublishErr != nil {
		return nil, t.PublishErr
	}
	t.seq++
	pub := &Publication{sid: fmt.Sprintf("TR_%d", t.seq), kind: track.Kind(), track: track}
	t.pubs = append(t.pubs, pub)
	return pub, nil
}

func (t *Transport) Unpublish(pub core.Publication) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.UnpublishErr != nil {
		if err := t.UnpublishErr(pub); err != nil {
			return err
		}
	}
	for i, p := range t.pubs {
		if p.SID() == pub.SID() {
			t.pubs = append(t.pubs[:i], t.pubs[i+1:]...)
			break
		}
	}
	return nil
}

func (t *Transport) Publications() []core.Publication {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.Publication(nil), t.pubs...)
}

func (t *Transport) Unregister() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unregistered = true
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects++
	return t.DisconnectErr
}

func (t *Transport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

func (t *Transport) Disconnects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnects
}

func (t *Transport) AudioStarts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.audioStarts
}

func (t *Transport) Unregistered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unregistered
}

func (t *Transport) listener() core.TransportEvents {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unregistered {
		return nil
	}
	return t.events
}

// Subscribe pushes a track-subscribed event.
func (t *Transport) Subscribe(participant domain.UserID, sid string, kind domain.TrackKind) {
	if ev := t.listener(); ev != nil {
		ev.OnTrackSubscribed(participant, RemoteTrack{TrackSID: sid, TrackKind: kind})
	}
}

func (t *Transport) Unsubscribe(participant domain.UserID, sid string) {
	if ev := t.listener(); ev != nil {
		ev.OnTrackUnsubscribed(participant, sid)
	}
}

func (t *Transport) ParticipantLeft(participant domain.UserID) {
	if ev := t.listener(); ev != nil {
		ev.OnParticipantDisconnected(participant)
	}
}

// Drop simulates a server-initiated disconnect.
func (t *Transport) Drop(reason string) {
	if ev := t.listener(); ev != nil {
		ev.OnDisconnected(reason)
	}
}

// Factory records every Transport it creates. Configure, if set, runs on
// each new Transport before it is returned.
type Factory struct {
	mu        sync.Mutex
	Configure func(n int, t *Transport)
	created   []*Transport
}

func (f *Factory) New(events core.TransportEvents) core.Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &Transport{events: events}
	if f.Configure != nil {
		f.Configure(len(f.created), t)
	}
	f.created = append(f.created, t)
	return t
}

func (f *Factory) Created() []*Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Transport(nil), f.created...)
}

// Element is a MediaElement recording its flags.
type Element struct {
	mu        sync.Mutex
	autoplay  bool
	muted     bool
	detached  int
	DetachErr error
}

func (e *Element) SetAutoplay(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoplay = v
}

func (e *Element) SetMuted(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = v
}

func (e *Element) Detach() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detached++
	return e.DetachErr
}

func (e *Element) Autoplay() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoplay
}

func (e *Element) Detached() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detached
}

// Surface keeps the elements that are currently attached to it.
type Surface struct {
	mu        sync.Mutex
	elements  map[domain.BindingKey]*Element
	CreateErr error
}

func NewSurface() *Surface {
	return &Surface{elements: make(map[domain.BindingKey]*Element)}
}

func (s *Surface) CreateElement(key domain.BindingKey, _ core.RemoteTrack) (core.MediaElement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	el := &surfaceElement{Element: &Element{}, surface: s, key: key}
	s.elements[key] = el.Element
	return el, nil
}

// Keys returns the keys still attached.
func (s *Surface) Keys() []domain.BindingKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.BindingKey, 0, len(s.elements))
	for k := range s.elements {
		out = append(out, k)
	}
	return out
}

func (s *Surface) Element(key domain.BindingKey) (*Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.elements[key]
	return el, ok
}

type surfaceElement struct {
	*Element
	surface *Surface
	key     domain.BindingKey
}

func (e *surfaceElement) Detach() error {
	e.surface.mu.Lock()
	delete(e.surface.elements, e.key)
	e.surface.mu.Unlock()
	return e.Element.Detach()
}

// Preview is a PreviewSurface that remembers its source.
type Preview struct {
	mu       sync.Mutex
	source   core.LocalTrack
	muted    bool
	autoplay bool
	clears   int
}

func (p *Preview) SetSource(track core.LocalTrack, muted, autoplay bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source, p.muted, p.autoplay = track, muted, autoplay
	return nil
}

func (p *Preview) ClearSource() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = nil
	p.clears++
}

func (p *Preview) State() (source core.LocalTrack, muted, autoplay bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source, p.muted, p.autoplay
}
