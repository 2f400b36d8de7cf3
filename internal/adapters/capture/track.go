package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dkeye/voiceroom/internal/domain"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const oggPageDuration = 20 * time.Millisecond

type lksdkTrack interface {
	webrtc.TrackLocal
	WriteSample(sample media.Sample, opts *lksdk.SampleWriteOptions) error
	Close() error
}

var _ lksdkTrack = (*lksdk.LocalSampleTrack)(nil)

type pumpFunc func(ctx context.Context, path string, dst lksdkTrack, logger *zerolog.Logger) error

// fileTrack is a capture track fed from a looping media file.
type fileTrack struct {
	kind   domain.TrackKind
	label  string
	sample *lksdk.LocalSampleTrack

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func newFileTrack(kind domain.TrackKind, label, path string, codec webrtc.RTPCodecCapability, pump pumpFunc) (*fileTrack, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s device: %w", kind, err)
	}
	sample, err := lksdk.NewLocalSampleTrack(codec)
	if err != nil {
		return nil, fmt.Errorf("%s track: %w", kind, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &fileTrack{kind: kind, label: label, sample: sample, cancel: cancel, done: make(chan struct{})}

	logger := log.With().Str("module", "adapters.capture").Str("track", label).Logger()
	go func() {
		defer close(t.done)
		for ctx.Err() == nil {
			if err := pump(ctx, path, sample, &logger); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("capture pump stopped")
				return
			}
		}
	}()
	return t, nil
}

func (t *fileTrack) Kind() domain.TrackKind        { return t.kind }
func (t *fileTrack) Label() string                 { return t.label }
func (t *fileTrack) TrackLocal() webrtc.TrackLocal { return t.sample }

// Stop ends the pump and closes the sample track. Safe to call twice.
func (t *fileTrack) Stop() error {
	t.once.Do(func() {
		t.cancel()
		<-t.done
		t.err = t.sample.Close()
	})
	return t.err
}

// pumpOgg plays one pass of an Ogg/Opus file.
func pumpOgg(ctx context.Context, path string, dst lksdkTrack, logger *zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("ogg header: %w", err)
	}

	var lastGranule uint64
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ogg page: %w", err)
		}
		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		dur := time.Duration(float64(samples)/48000*1000) * time.Millisecond
		if err := dst.WriteSample(media.Sample{Data: page, Duration: dur}, nil); err != nil {
			logger.Debug().Err(err).Msg("write audio sample")
		}
	}
}

// pumpIVF plays one pass of an IVF/VP8 file at its native frame rate.
func pumpIVF(ctx context.Context, path string, dst lksdkTrack, logger *zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("ivf header: %w", err)
	}
	if header.TimebaseDenominator == 0 {
		return errors.New("ivf header: zero timebase")
	}
	frameDuration := time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	if frameDuration <= 0 {
		return errors.New("ivf header: zero frame duration")
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ivf frame: %w", err)
		}
		if err := dst.WriteSample(media.Sample{Data: frame, Duration: frameDuration}, nil); err != nil {
			logger.Debug().Err(err).Msg("write video sample")
		}
	}
}
