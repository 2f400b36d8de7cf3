package core

import "github.com/dkeye/voiceroom/internal/domain"

// MediaElement renders one remote track on a surface.
type MediaElement interface {
	SetAutoplay(bool)
	SetMuted(bool)
	// Detach stops rendering and removes the element from its surface.
	Detach() error
}

// Surface is a container that hosts rendered remote tracks of one kind.
type Surface interface {
	CreateElement(key domain.BindingKey, track RemoteTrack) (MediaElement, error)
}

// PreviewSurface shows the local camera.
type PreviewSurface interface {
	SetSource(track LocalTrack, muted, autoplay bool) error
	ClearSource()
}

// Mounts are the optional render surfaces supplied at join time.
type Mounts struct {
	Audio   Surface
	Video   Surface
	Preview PreviewSurface
}

func (m Mounts) For(kind domain.TrackKind) Surface {
	switch kind {
	case domain.TrackKindAudio:
		return m.Audio
	case domain.TrackKindVideo:
		return m.Video
	}
	return nil
}
