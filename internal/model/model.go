package model

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// MessageStatus tracks the lifecycle of an answer while it streams in.
// Transitions are strictly pending -> streaming -> complete.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusStreaming MessageStatus = "streaming"
	StatusComplete  MessageStatus = "complete"
)

type Message struct {
	ID        string        `json:"id"`
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	Status    MessageStatus `json:"status"`
	Timestamp *time.Time    `json:"timestamp,omitempty"`
}

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StreamEvent is one record of the incremental-answer stream, encoded as a
// single JSON line on the wire. Delta and Answer are pointers so that an
// explicitly empty fragment or answer is distinguishable from an absent one.
// An Error makes the event terminal regardless of Done.
type StreamEvent struct {
	ChatID string  `json:"chatId,omitempty"`
	Delta  *string `json:"delta,omitempty"`
	Done   bool    `json:"done"`
	Answer *string `json:"answer,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// DeltaEvent builds a non-terminal event carrying one answer fragment.
func DeltaEvent(chatID, fragment string) StreamEvent {
	return StreamEvent{ChatID: chatID, Delta: &fragment}
}

// DoneEvent builds the single terminal event of a successful stream.
func DoneEvent(chatID, answer string) StreamEvent {
	return StreamEvent{ChatID: chatID, Done: true, Answer: &answer}
}

// ErrorEvent builds a terminal failure event.
func ErrorEvent(chatID, message string) StreamEvent {
	return StreamEvent{ChatID: chatID, Error: message}
}
