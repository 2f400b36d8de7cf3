// Package binder keeps remote tracks bound to the surfaces that render them.
package binder

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/voiceroom/internal/core"
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// Binding is a read-only view of one rendered remote track.
type Binding struct {
	Participant domain.UserID    `json:"participant"`
	TrackSID    string           `json:"track_sid"`
	Kind        domain.TrackKind `json:"kind"`
}

// Observer is told about every binding that appears or disappears, in
// the order the bindings change. It is called with the binder locked and
// must neither block nor call back into the binder.
type Observer interface {
	BindingAdded(Binding)
	BindingRemoved(Binding)
}

type binding struct {
	kind domain.TrackKind
	el   core.MediaElement
}

// Binder maps (participant, track) keys to rendered elements. An entry is
// present exactly while its track is subscribed and a surface of its kind
// is mounted. After DetachAll the binder accepts no new bindings.
type Binder struct {
	mounts   core.Mounts
	observer Observer

	mu       sync.Mutex
	bindings map[domain.BindingKey]binding
	closed   bool
}

func New(mounts core.Mounts, observer Observer) *Binder {
	return &Binder{
		mounts:   mounts,
		observer: observer,
		bindings: make(map[domain.BindingKey]binding),
	}
}

// TrackSubscribed renders the track if a surface of its kind is mounted.
// A missing surface is not an error.
func (b *Binder) TrackSubscribed(participant domain.UserID, track core.RemoteTrack) {
	surface := b.mounts.For(track.Kind())
	if surface == nil {
		log.Debug().Str("module", "app.binder").Str("participant", string(participant)).Str("kind", string(track.Kind())).Msg("no surface mounted, track ignored")
		return
	}
	key := domain.BindingKey{Participant: participant, TrackSID: track.SID()}

	// A re-subscribe of a live key replaces the stale element first.
	if old, ok := b.take(key); ok {
		b.detach(key, old)
	}

	el, err := surface.CreateElement(key, track)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.binder").Str("key", key.String()).Msg("create element failed")
		return
	}
	el.SetAutoplay(true)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = el.Detach()
		return
	}
	b.bindings[key] = binding{kind: track.Kind(), el: el}
	if b.observer != nil {
		b.observer.BindingAdded(Binding{Participant: participant, TrackSID: key.TrackSID, Kind: track.Kind()})
	}
	b.mu.Unlock()

	log.Info().Str("module", "app.binder").Str("key", key.String()).Str("kind", string(track.Kind())).Msg("track bound")
}

// TrackUnsubscribed detaches the exact key; unknown keys are ignored.
func (b *Binder) TrackUnsubscribed(participant domain.UserID, trackSID string) {
	key := domain.BindingKey{Participant: participant, TrackSID: trackSID}
	if bd, ok := b.take(key); ok {
		b.detach(key, bd)
	}
}

// ParticipantDisconnected detaches every binding owned by participant.
func (b *Binder) ParticipantDisconnected(participant domain.UserID) int {
	b.mu.Lock()
	owned := make(map[domain.BindingKey]binding)
	for key, bd := range b.bindings {
		if key.OwnedBy(participant) {
			owned[key] = bd
			b.removeLocked(key, bd)
		}
	}
	b.mu.Unlock()

	for key, bd := range owned {
		b.detach(key, bd)
	}
	if len(owned) > 0 {
		log.Info().Str("module", "app.binder").Str("participant", string(participant)).Int("bindings", len(owned)).Msg("participant bindings removed")
	}
	return len(owned)
}

// DetachAll empties and closes the binder. Every element is detached even
// when some fail; the failures are returned joined.
func (b *Binder) DetachAll() error {
	b.mu.Lock()
	all := make(map[domain.BindingKey]binding, len(b.bindings))
	for key, bd := range b.bindings {
		all[key] = bd
		b.removeLocked(key, bd)
	}
	b.closed = true
	b.mu.Unlock()

	var errs []error
	for key, bd := range all {
		if err := b.detach(key, bd); err != nil {
			errs = append(errs, fmt.Errorf("detach %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Snapshot lists current bindings ordered by key.
func (b *Binder) Snapshot() []Binding {
	b.mu.Lock()
	out := make([]Binding, 0, len(b.bindings))
	for key, bd := range b.bindings {
		out = append(out, Binding{Participant: key.Participant, TrackSID: key.TrackSID, Kind: bd.kind})
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Participant != out[j].Participant {
			return out[i].Participant < out[j].Participant
		}
		return out[i].TrackSID < out[j].TrackSID
	})
	return out
}

func (b *Binder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bindings)
}

func (b *Binder) take(key domain.BindingKey) (binding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bd, ok := b.bindings[key]
	if ok {
		b.removeLocked(key, bd)
	}
	return bd, ok
}

func (b *Binder) removeLocked(key domain.BindingKey, bd binding) {
	delete(b.bindings, key)
	if b.observer != nil {
		b.observer.BindingRemoved(Binding{Participant: key.Participant, TrackSID: key.TrackSID, Kind: bd.kind})
	}
}

// detach runs outside the lock; the entry is already gone from the map.
func (b *Binder) detach(key domain.BindingKey, bd binding) error {
	err := bd.el.Detach()
	if err != nil {
		log.Warn().Err(err).Str("module", "app.binder").Str("key", key.String()).Msg("detach failed")
	}
	return err
}
