package tokenserver

import (
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownRoom = errors.New("unknown room")
	ErrNotMember   = errors.New("not a member of the room")
	ErrInvalidRole = errors.New("invalid role")
)

// RoomConfig seeds one room. Open rooms admit any signed-in user with
// DefaultRole; listed members always get their own role.
type RoomConfig struct {
	Open        bool            `mapstructure:"open"`
	DefaultRole domain.Role     `mapstructure:"default_role"`
	Members     []domain.Member `mapstructure:"members"`
}

type RoomInfo struct {
	Room    domain.RoomID `json:"room"`
	Open    bool          `json:"open"`
	Members int           `json:"members"`
}

type roomEntry struct {
	open        bool
	defaultRole domain.Role
	members     map[domain.UserID]domain.Role
}

// Directory is a threadsafe in-memory room membership store.
type Directory struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomEntry
}

func NewDirectory(seed map[string]RoomConfig) *Directory {
	d := &Directory{rooms: make(map[domain.RoomID]*roomEntry)}
	for name, rc := range seed {
		if err := d.Put(domain.RoomID(name), rc); err != nil {
			log.Warn().Err(err).Str("module", "tokenserver.directory").Str("room", name).Msg("room skipped")
		}
	}
	return d
}

// Put replaces a room's configuration.
func (d *Directory) Put(room domain.RoomID, rc RoomConfig) error {
	if room.Empty() {
		return ErrUnknownRoom
	}
	def := rc.DefaultRole
	if def == "" {
		def = domain.RolePlayer
	}
	if !def.Valid() {
		return ErrInvalidRole
	}
	e := &roomEntry{open: rc.Open, defaultRole: def, members: make(map[domain.UserID]domain.Role, len(rc.Members))}
	for _, m := range rc.Members {
		if !m.Role.Valid() {
			return ErrInvalidRole
		}
		e.members[m.User] = m.Role
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms[room] = e
	log.Info().Str("module", "tokenserver.directory").Str("room", string(room)).Bool("open", rc.Open).Int("members", len(e.members)).Msg("room registered")
	return nil
}

func (d *Directory) AddMember(room domain.RoomID, m domain.Member) error {
	if !m.Role.Valid() {
		return ErrInvalidRole
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.rooms[room]
	if !ok {
		return ErrUnknownRoom
	}
	e.members[m.User] = m.Role
	log.Info().Str("module", "tokenserver.directory").Str("room", string(room)).Str("user", string(m.User)).Msg("member added")
	return nil
}

func (d *Directory) RemoveMember(room domain.RoomID, user domain.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.rooms[room]; ok {
		delete(e.members, user)
		log.Info().Str("module", "tokenserver.directory").Str("room", string(room)).Str("user", string(user)).Msg("member removed")
	}
}

// RoleOf resolves the role user holds in room.
func (d *Directory) RoleOf(room domain.RoomID, user domain.UserID) (domain.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.rooms[room]
	if !ok {
		return "", ErrUnknownRoom
	}
	if role, ok := e.members[user]; ok {
		return role, nil
	}
	if e.open {
		return e.defaultRole, nil
	}
	return "", ErrNotMember
}

func (d *Directory) List() []RoomInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]RoomInfo, 0, len(d.rooms))
	for id, e := range d.rooms {
		out = append(out, RoomInfo{Room: id, Open: e.open, Members: len(e.members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}
