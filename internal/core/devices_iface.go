package core

import (
	"context"

	"github.com/dkeye/voiceroom/internal/domain"
)

type Constraints struct {
	Audio bool
	Video bool
}

// MediaStream is the result of a permission request. Tracks hold devices
// open until stopped.
type MediaStream interface {
	Tracks() []LocalTrack
}

type AudioCaptureOptions struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

type VideoCaptureOptions struct {
	Facing domain.FacingMode
	Width  int
	Height int
}

// MediaDevices is the platform capture API. A nil MediaDevices means the
// platform has none.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c Constraints) (MediaStream, error)
	CreateMicrophoneTrack(ctx context.Context, opts AudioCaptureOptions) (LocalTrack, error)
	CreateCameraTrack(ctx context.Context, opts VideoCaptureOptions) (LocalTrack, error)
}
