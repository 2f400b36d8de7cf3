package tokenserver

import (
	"errors"
	"testing"

	"github.com/dkeye/voiceroom/internal/domain"
)

func seededDirectory() *Directory {
	return NewDirectory(map[string]RoomConfig{
		"lobby": {Open: true},
		"campaign": {Members: []domain.Member{
			{User: "gm-alice", Role: domain.RoleGM},
			{User: "bob", Role: domain.RolePlayer},
		}},
		"broken": {Members: []domain.Member{{User: "x", Role: "admin"}}},
	})
}

func TestRoleOf(t *testing.T) {
	t.Parallel()
	d := seededDirectory()
	tests := []struct {
		room    domain.RoomID
		user    domain.UserID
		want    domain.Role
		wantErr error
	}{
		{room: "lobby", user: "anyone", want: domain.RolePlayer},
		{room: "campaign", user: "gm-alice", want: domain.RoleGM},
		{room: "campaign", user: "bob", want: domain.RolePlayer},
		{room: "campaign", user: "bobby", wantErr: ErrNotMember},
		{room: "missing", user: "bob", wantErr: ErrUnknownRoom},
		{room: "broken", user: "x", wantErr: ErrUnknownRoom},
	}
	for _, tt := range tests {
		got, err := d.RoleOf(tt.room, tt.user)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("RoleOf(%s, %s) err = %v, want %v", tt.room, tt.user, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("RoleOf(%s, %s) = %q, want %q", tt.room, tt.user, got, tt.want)
		}
	}
}

func TestMembershipChanges(t *testing.T) {
	t.Parallel()
	d := seededDirectory()

	if err := d.AddMember("campaign", domain.Member{User: "carol", Role: domain.RolePlayer}); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if role, err := d.RoleOf("campaign", "carol"); err != nil || role != domain.RolePlayer {
		t.Fatalf("RoleOf(carol) = %q, %v", role, err)
	}
	d.RemoveMember("campaign", "carol")
	if _, err := d.RoleOf("campaign", "carol"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("RoleOf after remove err = %v, want ErrNotMember", err)
	}

	if err := d.AddMember("nowhere", domain.Member{User: "carol", Role: domain.RolePlayer}); !errors.Is(err, ErrUnknownRoom) {
		t.Fatalf("AddMember(unknown room) err = %v", err)
	}
	if err := d.AddMember("campaign", domain.Member{User: "carol", Role: "king"}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("AddMember(bad role) err = %v", err)
	}
}

func TestList(t *testing.T) {
	t.Parallel()
	got := seededDirectory().List()
	if len(got) != 2 {
		t.Fatalf("List() = %+v, want 2 rooms", got)
	}
	if got[0].Room != "campaign" || got[0].Members != 2 || got[1].Room != "lobby" || !got[1].Open {
		t.Fatalf("List() = %+v", got)
	}
}
