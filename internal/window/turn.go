package window

import "time"

// Role classifies a turn within the reasoning history.
type Role string

const (
	RoleSystem      Role = "system"
	RoleUser        Role = "user"
	RoleThought     Role = "thought"
	RoleAction      Role = "action"
	RoleObservation Role = "observation"
	RoleFinal       Role = "final"
)

// Turn is one immutable unit of reasoning history. Compression never
// mutates a turn; it replaces a run of turns with a freshly constructed
// summary turn carrying its own sequence index.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	TokenCost int       `json:"token_cost"`
	Pinned    bool      `json:"pinned"`
	Seq       int       `json:"seq"`
	Summary   bool      `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
