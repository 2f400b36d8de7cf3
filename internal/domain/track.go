package domain

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

// BindingKey identifies one rendered remote track. Participant matching is
// always exact on the identity field.
type BindingKey struct {
	Participant UserID
	TrackSID    string
}

func (k BindingKey) String() string { return string(k.Participant) + "/" + k.TrackSID }

func (k BindingKey) OwnedBy(participant UserID) bool { return k.Participant == participant }
