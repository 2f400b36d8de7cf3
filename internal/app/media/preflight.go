package media

import (
	"context"

	"github.com/dkeye/voiceroom/internal/core"
	"github.com/rs/zerolog/log"
)

// Preflight asks for camera permission and releases whatever was granted.
// It must run synchronously inside the operation that the user triggered.
func Preflight(ctx context.Context, devices core.MediaDevices) error {
	if devices == nil {
		return core.ErrDeviceUnsupported
	}
	stream, err := devices.GetUserMedia(ctx, core.Constraints{Video: true})
	if err != nil {
		// ErrPermissionDenied passes through unwrapped so callers can offer
		// a platform hint.
		return err
	}
	for _, t := range stream.Tracks() {
		if err := t.Stop(); err != nil {
			log.Debug().Err(err).Str("module", "app.media").Str("track", t.Label()).Msg("preflight track stop")
		}
	}
	return nil
}
