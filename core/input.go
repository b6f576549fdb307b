package core

// Input is a single chat request handed from a front end (CLI, HTTP,
// WebSocket, gRPC) to the engine.
type Input struct {
	// UserID selects the per-user conversation history.
	// Empty means DefaultUserID.
	UserID string `json:"user_id,omitempty"`

	// Message is the raw user text for this turn.
	Message string `json:"message"`

	// Turn is the caller-assigned turn number. Zero lets the session
	// assign the next one.
	Turn int `json:"turn,omitempty"`
}

// DefaultUserID is used when a front end does not identify the user.
const DefaultUserID = "default_user"

// ResolvedUserID returns the user id, falling back to DefaultUserID.
func (in *Input) ResolvedUserID() string {
	if in.UserID == "" {
		return DefaultUserID
	}
	return in.UserID
}
