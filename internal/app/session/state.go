package session

import (
	"time"

	"github.com/dkeye/voiceroom/internal/app/binder"
	"github.com/dkeye/voiceroom/internal/domain"
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateJoined     State = "joined"
	StateLeaving    State = "leaving"
)

// Session is a snapshot of the live session.
type Session struct {
	Room     domain.RoomID `json:"room"`
	Identity domain.UserID `json:"identity"`
	Role     domain.Role   `json:"role,omitempty"`
	JoinedAt time.Time     `json:"joined_at"`

	// CameraErr is set when the camera was requested at join but could
	// not be started. The session itself is still joined.
	CameraErr error `json:"-"`
}

type JoinOptions struct {
	Camera bool
	Facing domain.FacingMode
}

// Observer receives state and binding changes. StateChanged runs while
// the controller holds its lock and must not call back into it.
type Observer interface {
	binder.Observer
	StateChanged(state State, room domain.RoomID)
}
