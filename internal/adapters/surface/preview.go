package surface

import (
	"sync"

	"github.com/dkeye/voiceroom/internal/core"
)

// Preview tracks which local track is shown as camera preview.
type Preview struct {
	mu       sync.Mutex
	source   core.LocalTrack
	muted    bool
	autoplay bool
}

var _ core.PreviewSurface = (*Preview)(nil)

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
}

// Source returns the label of the previewed track, if any.
func (p *Preview) Source() (label string, muted bool, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source == nil {
		return "", false, false
	}
	return p.source.Label(), p.muted, true
}
