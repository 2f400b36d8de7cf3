package core

import (
	"context"

	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/pion/rtp"
)

// LocalTrack is a capture track produced by MediaDevices.
// Stop releases the underlying device and must be safe to call twice.
type LocalTrack interface {
	Kind() domain.TrackKind
	Label() string
	Stop() error
}

// Publication is a LocalTrack made available to the room.
type Publication interface {
	SID() string
	Kind() domain.TrackKind
	Track() LocalTrack
}

// RemoteTrack is a subscribed track of another participant.
type RemoteTrack interface {
	SID() string
	Kind() domain.TrackKind
	MimeType() string
	ReadRTP() (*rtp.Packet, error)
}

type PublishOptions struct {
	Name   string
	Width  int
	Height int
}

// TransportEvents receives server-pushed room events. Callbacks may arrive
// on transport goroutines; for one (participant, track) key subscribed is
// always delivered before unsubscribed.
type TransportEvents interface {
	OnTrackSubscribed(participant domain.UserID, track RemoteTrack)
	OnTrackUnsubscribed(participant domain.UserID, trackSID string)
	OnParticipantDisconnected(participant domain.UserID)
	OnDisconnected(reason string)
}

// TransportFactory creates a transport whose event listener is registered
// from the start, so nothing pushed during Connect is lost.
type TransportFactory interface {
	New(events TransportEvents) Transport
}

// Transport is the live connection handle to a media room.
// Owned by the session controller; the controller must Disconnect() it.
type Transport interface {
	Connect(ctx context.Context, url, token string) error
	// StartAudio unlocks remote audio playback.
	StartAudio(ctx context.Context) error
	Publish(ctx context.Context, track LocalTrack, opts PublishOptions) (Publication, error)
	Unpublish(pub Publication) error
	Publications() []Publication
	// Unregister detaches the events listener; later events are dropped.
	Unregister()
	Disconnect() error
}
