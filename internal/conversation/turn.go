package conversation

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a user's homework-help conversation. Turns are
// append-only; SourceProvider is set on assistant turns only and includes
// any attribution suffix already baked into Content.
type Turn struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	SourceProvider string    `json:"source_provider,omitempty"`
	CreatedAt      time.Time `json:"created_at"`

	// Seq is the insertion sequence of the backend that returned the turn,
	// used only as a tie-break when created_at collides.
	Seq int64 `json:"seq"`
}
