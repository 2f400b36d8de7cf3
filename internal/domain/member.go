package domain

// Member is a room directory record: identity plus role.
// No transport or lifecycle logic here.
type Member struct {
	User UserID `json:"user" mapstructure:"user"`
	Role Role   `json:"role" mapstructure:"role"`
}
