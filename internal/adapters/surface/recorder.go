// Package surface provides render surfaces for a headless participant:
// remote tracks are "rendered" by recording them to disk.
package surface

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dkeye/voiceroom/internal/core"
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

var ErrUnsupportedCodec = errors.New("unsupported codec")

type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// Recorder is a Surface that writes every bound track into dir.
type Recorder struct {
	dir string
}

var _ core.Surface = (*Recorder)(nil)

func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recordings dir: %w", err)
	}
	return &Recorder{dir: dir}, nil
}

func (r *Recorder) CreateElement(key domain.BindingKey, track core.RemoteTrack) (core.MediaElement, error) {
	base := filepath.Join(r.dir, fileName(key))

	var (
		w   rtpWriter
		err error
	)
	switch {
	case strings.EqualFold(track.MimeType(), webrtc.MimeTypeOpus):
		w, err = oggwriter.New(base+".ogg", 48000, 2)
	case strings.EqualFold(track.MimeType(), webrtc.MimeTypeVP8):
		w, err = ivfwriter.New(base + ".ivf")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, track.MimeType())
	}
	if err != nil {
		return nil, err
	}
	return &element{key: key, track: track, w: w}, nil
}

// element records one track. Autoplay starts the read loop; muted drops
// packets without stopping the loop.
type element struct {
	key   domain.BindingKey
	track core.RemoteTrack

	mu       sync.Mutex
	w        rtpWriter
	muted    bool
	playing  bool
	detached bool
}

func (e *element) SetAutoplay(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !on || e.playing || e.detached {
		return
	}
	e.playing = true
	go e.loop()
}

func (e *element) SetMuted(m bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = m
}

func (e *element) loop() {
	for {
		pkt, err := e.track.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.surface").Str("key", e.key.String()).Msg("track read ended")
			return
		}
		e.mu.Lock()
		if e.detached {
			e.mu.Unlock()
			return
		}
		if !e.muted {
			if err := e.w.WriteRTP(pkt); err != nil {
				log.Debug().Err(err).Str("module", "adapters.surface").Str("key", e.key.String()).Msg("write rtp")
			}
		}
		e.mu.Unlock()
	}
}

// Detach closes the recording. The read loop exits on its next packet or
// when the track ends.
func (e *element) Detach() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return nil
	}
	e.detached = true
	return e.w.Close()
}

// fileName joins participant and track with '+', which fileSafe never
// emits, so distinct keys never share a file.
func fileName(key domain.BindingKey) string {
	return fileSafe(string(key.Participant)) + "+" + fileSafe(key.TrackSID)
}

// fileSafe keeps [A-Za-z0-9.-] and escapes every other byte as _xx.
func fileSafe(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '.':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}
