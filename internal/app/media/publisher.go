// Package media publishes, republishes and releases local capture tracks.
package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/voiceroom/internal/core"
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	CameraWidth  = 1280
	CameraHeight = 720
)

// ReleaseReport collects per-publication failures of a batch release.
// A failure never stops the rest of the batch.
type ReleaseReport struct {
	Released int
	Failures []error
}

func (r ReleaseReport) Err() error { return errors.Join(r.Failures...) }

type Publisher struct {
	transport core.Transport
	devices   core.MediaDevices
	preview   core.PreviewSurface
}

func NewPublisher(transport core.Transport, devices core.MediaDevices, preview core.PreviewSurface) *Publisher {
	return &Publisher{transport: transport, devices: devices, preview: preview}
}

// PublishMicrophone publishes the session's microphone with voice
// processing enabled.
func (p *Publisher) PublishMicrophone(ctx context.Context) (core.Publication, error) {
	if p.transport == nil {
		return nil, core.ErrNotConnected
	}
	if p.devices == nil {
		return nil, core.ErrDeviceUnsupported
	}
	track, err := p.devices.CreateMicrophoneTrack(ctx, core.AudioCaptureOptions{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("microphone: %w", err)
	}
	return p.publish(ctx, track, core.PublishOptions{Name: "microphone"})
}

func (p *Publisher) StartCamera(ctx context.Context, facing domain.FacingMode) (core.Publication, error) {
	if p.transport == nil {
		return nil, core.ErrNotConnected
	}
	if p.devices == nil {
		return nil, core.ErrDeviceUnsupported
	}
	if facing == "" {
		facing = domain.FacingUser
	}
	track, err := p.devices.CreateCameraTrack(ctx, core.VideoCaptureOptions{
		Facing: facing,
		Width:  CameraWidth,
		Height: CameraHeight,
	})
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	pub, err := p.publish(ctx, track, core.PublishOptions{Name: "camera", Width: CameraWidth, Height: CameraHeight})
	if err != nil {
		return nil, err
	}
	if p.preview != nil {
		// Preview never plays back local media.
		if err := p.preview.SetSource(track, true, true); err != nil {
			log.Warn().Err(err).Str("module", "app.media").Msg("camera preview bind failed")
		}
	}
	log.Info().Str("module", "app.media").Str("sid", pub.SID()).Str("facing", string(facing)).Msg("camera published")
	return pub, nil
}

// StopCamera releases every local video publication and clears the preview.
func (p *Publisher) StopCamera() ReleaseReport {
	var rep ReleaseReport
	if p.transport == nil {
		return rep
	}
	for _, pub := range p.transport.Publications() {
		if pub.Kind() != domain.TrackKindVideo {
			continue
		}
		p.release(pub, &rep)
	}
	if p.preview != nil {
		p.preview.ClearSource()
	}
	return rep
}

// ReleaseAll unpublishes and stops every local publication.
func (p *Publisher) ReleaseAll() ReleaseReport {
	var rep ReleaseReport
	if p.transport == nil {
		return rep
	}
	for _, pub := range p.transport.Publications() {
		p.release(pub, &rep)
	}
	if p.preview != nil {
		p.preview.ClearSource()
	}
	return rep
}

func (p *Publisher) publish(ctx context.Context, track core.LocalTrack, opts core.PublishOptions) (core.Publication, error) {
	pub, err := p.transport.Publish(ctx, track, opts)
	if err != nil {
		if stopErr := track.Stop(); stopErr != nil {
			log.Debug().Err(stopErr).Str("module", "app.media").Str("track", track.Label()).Msg("stop after failed publish")
		}
		return nil, err
	}
	return pub, nil
}

// release attempts both unpublish and stop; the device is freed even when
// the transport refuses the unpublish.
func (p *Publisher) release(pub core.Publication, rep *ReleaseReport) {
	var failed bool
	if err := p.transport.Unpublish(pub); err != nil {
		failed = true
		rep.Failures = append(rep.Failures, fmt.Errorf("unpublish %s: %w", pub.SID(), err))
	}
	if t := pub.Track(); t != nil {
		if err := t.Stop(); err != nil {
			failed = true
			rep.Failures = append(rep.Failures, fmt.Errorf("stop %s: %w", pub.SID(), err))
		}
	}
	if !failed {
		rep.Released++
	}
	log.Debug().Str("module", "app.media").Str("sid", pub.SID()).Str("kind", string(pub.Kind())).Bool("clean", !failed).Msg("publication released")
}
