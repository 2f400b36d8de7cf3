package livekit

import (
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type remoteTrack struct {
	track *webrtc.TrackRemote
	sid   string
	kind  domain.TrackKind
}

func (r *remoteTrack) SID() string            { return r.sid }
func (r *remoteTrack) Kind() domain.TrackKind { return r.kind }
func (r *remoteTrack) MimeType() string       { return r.track.Codec().MimeType }

func (r *remoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := r.track.ReadRTP()
	return pkt, err
}
