// Package capture implements MediaDevices on top of media files, which is
// how a headless participant "captures" audio and video. Microphones read
// Ogg/Opus, cameras read IVF/VP8, both looped.
package capture

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dkeye/voiceroom/internal/core"
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Microphone      string                       `mapstructure:"microphone"`
	Cameras         map[domain.FacingMode]string `mapstructure:"cameras"`
	AllowMicrophone bool                         `mapstructure:"allow_microphone"`
	AllowCamera     bool                         `mapstructure:"allow_camera"`
}

type FileDevices struct {
	cfg Config
}

var _ core.MediaDevices = (*FileDevices)(nil)

// New returns nil when no device is configured at all, which callers treat
// as a platform without media devices.
func New(cfg Config) core.MediaDevices {
	if cfg.Microphone == "" && len(cfg.Cameras) == 0 {
		return nil
	}
	return &FileDevices{cfg: cfg}
}

func (d *FileDevices) GetUserMedia(_ context.Context, c core.Constraints) (core.MediaStream, error) {
	var s stream
	if c.Audio {
		path, err := d.microphone()
		if err != nil {
			return nil, err
		}
		t, err := openProbe(domain.TrackKindAudio, path)
		if err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}
	if c.Video {
		path, err := d.camera(domain.FacingUser)
		if err != nil {
			s.stop()
			return nil, err
		}
		t, err := openProbe(domain.TrackKindVideo, path)
		if err != nil {
			s.stop()
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}
	return s, nil
}

func (d *FileDevices) CreateMicrophoneTrack(_ context.Context, opts core.AudioCaptureOptions) (core.LocalTrack, error) {
	path, err := d.microphone()
	if err != nil {
		return nil, err
	}
	// File sources are already processed; the options are recorded only.
	log.Debug().Str("module", "adapters.capture").
		Bool("echo_cancellation", opts.EchoCancellation).
		Bool("noise_suppression", opts.NoiseSuppression).
		Bool("auto_gain_control", opts.AutoGainControl).
		Msg("microphone constraints")
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	return newFileTrack(domain.TrackKindAudio, "microphone", path, codec, pumpOgg)
}

func (d *FileDevices) CreateCameraTrack(_ context.Context, opts core.VideoCaptureOptions) (core.LocalTrack, error) {
	path, err := d.camera(opts.Facing)
	if err != nil {
		return nil, err
	}
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	label := fmt.Sprintf("camera-%s-%dx%d", opts.Facing, opts.Width, opts.Height)
	return newFileTrack(domain.TrackKindVideo, label, path, codec, pumpIVF)
}

func (d *FileDevices) microphone() (string, error) {
	if d.cfg.Microphone == "" {
		return "", core.ErrDeviceUnsupported
	}
	if !d.cfg.AllowMicrophone {
		return "", fmt.Errorf("microphone: %w", core.ErrPermissionDenied)
	}
	return d.cfg.Microphone, nil
}

// camera falls back to any configured camera when the requested facing
// mode has none.
func (d *FileDevices) camera(facing domain.FacingMode) (string, error) {
	if len(d.cfg.Cameras) == 0 {
		return "", core.ErrDeviceUnsupported
	}
	if !d.cfg.AllowCamera {
		return "", fmt.Errorf("camera: %w", core.ErrPermissionDenied)
	}
	if path, ok := d.cfg.Cameras[facing]; ok {
		return path, nil
	}
	for _, f := range []domain.FacingMode{domain.FacingUser, domain.FacingEnvironment} {
		if path, ok := d.cfg.Cameras[f]; ok {
			return path, nil
		}
	}
	return "", core.ErrDeviceUnsupported
}

type stream struct{ tracks []core.LocalTrack }

func (s stream) Tracks() []core.LocalTrack { return s.tracks }

func (s stream) stop() {
	for _, t := range s.tracks {
		_ = t.Stop()
	}
}

// probeTrack holds a device open without producing media.
type probeTrack struct {
	kind domain.TrackKind
	f    *os.File
	once sync.Once
}

func openProbe(kind domain.TrackKind, path string) (*probeTrack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s device: %w", kind, err)
	}
	return &probeTrack{kind: kind, f: f}, nil
}

func (p *probeTrack) Kind() domain.TrackKind { return p.kind }
func (p *probeTrack) Label() string          { return "probe-" + string(p.kind) }

func (p *probeTrack) Stop() error {
	var err error
	p.once.Do(func() { err = p.f.Close() })
	return err
}
