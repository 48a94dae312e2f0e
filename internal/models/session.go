package models

// SessionState is the extraction lifecycle of a session.
//
// Open (turns accumulating) -> Closing (extractor running exactly once) ->
// Closed (immutable; re-extraction only via an explicit, idempotent reprocess).
type SessionState string

const (
	SessionOpen    SessionState = "open"
	SessionClosing SessionState = "closing"
	SessionClosed  SessionState = "closed"
)

// Session is a bounded interaction window with ordered turns.
type Session struct {
	ID           string       `json:"id"`
	State        SessionState `json:"state"`
	StartedAt    int64        `json:"startedAt"`
	EndedAt      *int64       `json:"endedAt,omitempty"`
	LastTurn     int          `json:"lastTurn"`
	MessageCount int          `json:"messageCount"`
}
