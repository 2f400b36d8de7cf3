// Package session owns the single active media session of this process.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/voiceroom/internal/app/binder"
	"github.com/dkeye/voiceroom/internal/app/credential"
	"github.com/dkeye/voiceroom/internal/app/media"
	"github.com/dkeye/voiceroom/internal/core"
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// CredentialSource produces a fresh media token per join attempt.
type CredentialSource interface {
	Fetch(ctx context.Context, room domain.RoomID) (credential.Credential, error)
}

type Config struct {
	Endpoint    string
	Credentials CredentialSource
	Transports  core.TransportFactory
	Devices     core.MediaDevices
	Observer    Observer
}

// live is everything derived from one connected transport. Whoever removes
// it from Controller.live is responsible for releasing it.
type live struct {
	epoch     uint64
	info      Session
	transport core.Transport
	binder    *binder.Binder
	publisher *media.Publisher
}

// Controller sequences credential fetch, transport connect, publishing and
// remote binding for one participant. At most one transport is live at a
// time.
//
// Every Join and Leave bumps epoch and cancels the in-flight join, so a
// join that resumes after being superseded releases what it built and
// returns core.ErrSuperseded.
type Controller struct {
	endpoint   string
	creds      CredentialSource
	transports core.TransportFactory
	devices    core.MediaDevices
	observer   Observer

	mu         sync.Mutex
	state      State
	room       domain.RoomID
	epoch      uint64
	cancelJoin context.CancelFunc
	live       *live
}

func NewController(cfg Config) *Controller {
	return &Controller{
		endpoint:   cfg.Endpoint,
		creds:      cfg.Credentials,
		transports: cfg.Transports,
		devices:    cfg.Devices,
		observer:   cfg.Observer,
		state:      StateIdle,
	}
}

// Join leaves any current session and connects to room. On failure nothing
// of the attempt survives and the controller is idle.
func (c *Controller) Join(ctx context.Context, room domain.RoomID, mounts core.Mounts, opts JoinOptions) (Session, error) {
	logger := log.With().Str("module", "app.session").Str("room", string(room)).Logger()

	c.mu.Lock()
	epoch := c.bumpLocked()
	prev := c.live
	c.live = nil
	joinCtx, cancel := context.WithCancel(ctx)
	c.cancelJoin = cancel
	if prev != nil {
		c.setStateLocked(StateLeaving, prev.info.Room)
	}
	c.mu.Unlock()
	defer cancel()

	if prev != nil {
		logger.Info().Str("previous", string(prev.info.Room)).Msg("leaving previous session before join")
		c.release(prev)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return Session{}, core.ErrSuperseded
	}
	c.setStateLocked(StateConnecting, room)
	c.mu.Unlock()

	if err := ValidateEndpoint(c.endpoint); err != nil {
		c.abort(epoch)
		return Session{}, err
	}

	cred, err := c.creds.Fetch(joinCtx, room)
	if err != nil {
		if c.abort(epoch) {
			logger.Warn().Err(err).Msg("credential fetch failed")
			return Session{}, err
		}
		return Session{}, core.ErrSuperseded
	}
	if !c.current(epoch) {
		return Session{}, core.ErrSuperseded
	}

	b := binder.New(mounts, c.observer)
	tr := c.transports.New(&listener{c: c, epoch: epoch, binder: b})
	lv := &live{
		epoch:     epoch,
		transport: tr,
		binder:    b,
		publisher: media.NewPublisher(tr, c.devices, mounts.Preview),
		info: Session{
			Room:     room,
			Identity: cred.Identity,
			Role:     cred.Role,
		},
	}

	if err := tr.Connect(joinCtx, c.endpoint, cred.Token); err != nil {
		c.release(lv)
		if !c.abort(epoch) {
			return Session{}, core.ErrSuperseded
		}
		logger.Warn().Err(err).Msg("transport connect failed")
		var te *core.TransportError
		if errors.As(err, &te) {
			return Session{}, err
		}
		return Session{}, &core.TransportError{Op: "connect", Err: err}
	}

	// The handle exists from here on; a remote disconnect can now take it.
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.release(lv)
		return Session{}, core.ErrSuperseded
	}
	lv.info.JoinedAt = time.Now()
	c.live = lv
	c.mu.Unlock()

	if err := tr.StartAudio(joinCtx); err != nil {
		logger.Debug().Err(err).Msg("audio unlock failed, continuing")
	}

	if _, err := lv.publisher.PublishMicrophone(joinCtx); err != nil {
		if !c.take(lv) {
			c.abandon(lv)
			return Session{}, c.lost(lv)
		}
		c.release(lv)
		c.abort(epoch)
		logger.Warn().Err(err).Msg("microphone publish failed")
		return Session{}, err
	}

	var cameraErr error
	if opts.Camera {
		if _, err := lv.publisher.StartCamera(joinCtx, opts.Facing); err != nil {
			logger.Warn().Err(err).Msg("camera requested at join but not started")
			cameraErr = err
		}
	}

	c.mu.Lock()
	if lost := c.lostLocked(lv); lost != nil {
		c.mu.Unlock()
		c.abandon(lv)
		return Session{}, lost
	}
	lv.info.CameraErr = cameraErr
	c.cancelJoin = nil
	c.setStateLocked(StateJoined, room)
	info := lv.info
	c.mu.Unlock()

	logger.Info().Str("identity", string(info.Identity)).Str("role", string(info.Role)).Msg("joined")
	return info, nil
}

// Leave tears the session down. It is a no-op when idle and never fails;
// release problems are logged.
func (c *Controller) Leave() {
	c.mu.Lock()
	if c.state == StateIdle && c.live == nil && c.cancelJoin == nil {
		c.mu.Unlock()
		return
	}
	epoch := c.bumpLocked()
	lv := c.live
	c.live = nil
	room := c.room
	c.setStateLocked(StateLeaving, room)
	c.mu.Unlock()

	if lv != nil {
		c.release(lv)
	}

	c.mu.Lock()
	if c.epoch == epoch {
		c.setStateLocked(StateIdle, "")
	}
	c.mu.Unlock()
	log.Info().Str("module", "app.session").Str("room", string(room)).Msg("left")
}

// StartCamera publishes the camera into the joined session.
func (c *Controller) StartCamera(ctx context.Context, facing domain.FacingMode) error {
	lv := c.joined()
	if lv == nil {
		return core.ErrNotConnected
	}
	pub, err := lv.publisher.StartCamera(ctx, facing)
	if err != nil {
		return err
	}
	// The session may have ended while the camera was starting.
	if c.joined() != lv {
		_ = lv.transport.Unpublish(pub)
		_ = pub.Track().Stop()
		return core.ErrNotConnected
	}
	return nil
}

// StopCamera releases the camera; a no-op without one.
func (c *Controller) StopCamera() {
	lv := c.joined()
	if lv == nil {
		return
	}
	rep := lv.publisher.StopCamera()
	if err := rep.Err(); err != nil {
		log.Warn().Err(err).Str("module", "app.session").Int("released", rep.Released).Msg("camera release incomplete")
	}
}

// Preflight probes camera permission; it does not need a session.
func (c *Controller) Preflight(ctx context.Context) error {
	return media.Preflight(ctx, c.devices)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the live session, if any.
func (c *Controller) Current() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live == nil {
		return Session{}, false
	}
	return c.live.info, true
}

func (c *Controller) Bindings() []binder.Binding {
	c.mu.Lock()
	lv := c.live
	c.mu.Unlock()
	if lv == nil {
		return nil
	}
	return lv.binder.Snapshot()
}

// remoteDisconnect handles a transport that dropped without Leave.
func (c *Controller) remoteDisconnect(epoch uint64, reason string) {
	c.mu.Lock()
	lv := c.live
	if lv == nil || lv.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.live = nil
	if c.cancelJoin != nil {
		c.cancelJoin()
		c.cancelJoin = nil
	}
	c.setStateLocked(StateLeaving, lv.info.Room)
	c.mu.Unlock()

	log.Warn().Str("module", "app.session").Str("room", string(lv.info.Room)).Str("reason", reason).Msg("transport disconnected by remote")
	c.release(lv)

	c.mu.Lock()
	if c.epoch == epoch && c.live == nil {
		c.setStateLocked(StateIdle, "")
	}
	c.mu.Unlock()
}

// release frees everything lv holds. Each step runs regardless of the
// previous ones failing.
func (c *Controller) release(lv *live) {
	logger := log.With().Str("module", "app.session").Str("room", string(lv.info.Room)).Logger()

	lv.transport.Unregister()

	rep := lv.publisher.ReleaseAll()
	if err := rep.Err(); err != nil {
		logger.Warn().Err(err).Int("released", rep.Released).Msg("publication release incomplete")
	}
	if err := lv.binder.DetachAll(); err != nil {
		logger.Warn().Err(err).Msg("binding detach incomplete")
	}
	if err := lv.transport.Disconnect(); err != nil {
		logger.Warn().Err(err).Msg("transport disconnect failed")
	}
	logger.Debug().Int("publications", rep.Released).Msg("session released")
}

// abandon frees tracks a join published after another caller took lv and
// already released it. Releasing twice is harmless.
func (c *Controller) abandon(lv *live) {
	rep := lv.publisher.ReleaseAll()
	if rep.Released > 0 || len(rep.Failures) > 0 {
		log.Info().Err(rep.Err()).Str("module", "app.session").Str("room", string(lv.info.Room)).Int("released", rep.Released).Msg("released tracks of a superseded join")
	}
}

func (c *Controller) bumpLocked() uint64 {
	c.epoch++
	if c.cancelJoin != nil {
		c.cancelJoin()
		c.cancelJoin = nil
	}
	return c.epoch
}

func (c *Controller) setStateLocked(s State, room domain.RoomID) {
	if c.state == s && c.room == room {
		return
	}
	c.state = s
	c.room = room
	if c.observer != nil {
		c.observer.StateChanged(s, room)
	}
}

// abort returns the controller to idle if epoch is still current and
// reports whether it was.
func (c *Controller) abort(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.cancelJoin = nil
	c.live = nil
	c.setStateLocked(StateIdle, "")
	return true
}

func (c *Controller) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

// take removes lv as the live session if it still is, transferring the
// duty to release it to the caller.
func (c *Controller) take(lv *live) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live != lv {
		return false
	}
	c.live = nil
	return true
}

func (c *Controller) lost(lv *live) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lostLocked(lv)
}

// lostLocked reports why lv is no longer the live session, or nil if it
// still is.
func (c *Controller) lostLocked(lv *live) error {
	if c.live == lv {
		return nil
	}
	if c.epoch != lv.epoch {
		return core.ErrSuperseded
	}
	return &core.TransportError{Op: "join", Err: core.ErrNotConnected}
}

func (c *Controller) joined() *live {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateJoined {
		return nil
	}
	return c.live
}

// listener forwards transport events of one session generation.
type listener struct {
	c      *Controller
	epoch  uint64
	binder *binder.Binder
}

func (l *listener) OnTrackSubscribed(participant domain.UserID, track core.RemoteTrack) {
	l.binder.TrackSubscribed(participant, track)
}

func (l *listener) OnTrackUnsubscribed(participant domain.UserID, trackSID string) {
	l.binder.TrackUnsubscribed(participant, trackSID)
}

func (l *listener) OnParticipantDisconnected(participant domain.UserID) {
	l.binder.ParticipantDisconnected(participant)
}

func (l *listener) OnDisconnected(reason string) {
	l.c.remoteDisconnect(l.epoch, reason)
}
