package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

type TurnID string

// NewTurnID generates a new unique TurnID
func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

// ToolCall records one capability invocation made during a turn.
type ToolCall struct {
	Name   string         `json:"name"`
	Args   map[string]any `json:"args"`
	Result string         `json:"result"`
}

// Turn is one complete request/response exchange within a session,
// including every tool call made on the way to the final answer.
// Immutable once appended to the transcript.
type Turn struct {
	ID        TurnID     `json:"id"`
	Role      Role       `json:"role"`
	Input     string     `json:"input"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Output    string     `json:"output"`
	CreatedAt time.Time  `json:"created_at"`
}

// Session is the persistent orchestration state for one conversation
// thread. Owned exclusively by the session manager; all mutation happens
// under the manager's per-session lock.
type Session struct {
	ID         SessionID `json:"id"`
	ThreadID   string    `json:"thread_id"`
	UserID     string    `json:"user_id"`
	ActiveRole Role      `json:"active_role"`
	Transcript []Turn    `json:"transcript"`

	// TurnCount is monotonic; it never resets while the session lives.
	TurnCount  int       `json:"turn_count"`
	LastActive time.Time `json:"last_active"`
}

// InboundEvent is one message delivered by the inbound event source.
type InboundEvent struct {
	// EventID deduplicates retried deliveries. Empty means no dedup key
	// is available and the event is always processed.
	EventID   string    `json:"event_id"`
	ThreadID  string    `json:"thread_id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	// IsBot marks events authored by another bot. The manager drops them
	// unless the sender is allow-listed.
	IsBot    bool   `json:"is_bot,omitempty"`
	SenderID string `json:"sender_id,omitempty"`
}
