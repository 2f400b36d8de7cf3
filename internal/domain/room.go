package domain

import "strings"

type RoomID string

func (id RoomID) Empty() bool { return strings.TrimSpace(string(id)) == "" }

// Role is the room directory role returned alongside a media token.
type Role string

const (
	RoleGM     Role = "gm"
	RolePlayer Role = "player"
)

func (r Role) Valid() bool { return r == RoleGM || r == RolePlayer }
