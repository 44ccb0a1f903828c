package types

import "time"

// Conversation groups an ordered message log with the set of personalities
// eligible to speak in it.
type Conversation struct {
	ID string `json:"id"`

	Title string `json:"title"`

	// Instructions is free-text guidance injected into every prompt composed
	// for this conversation.
	Instructions string `json:"instructions,omitempty"`

	// ParticipantIDs is the subset of personality ids eligible for this
	// conversation. The reserved "user" sender is never present here.
	ParticipantIDs []string `json:"participant_ids"`

	IsActive bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one entry in a conversation's append-only log.
// Messages are never mutated or deleted by the orchestration core.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`

	// SenderID is a personality id, or the literal "user".
	SenderID string `json:"sender_id"`

	Content string `json:"content"`

	// Seq is the authoritative per-conversation insertion order. Wall-clock
	// timestamps may collide; Seq never does.
	Seq int64 `json:"seq"`

	CreatedAt time.Time `json:"created_at"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsAI reports whether the message was authored by a personality.
func (m Message) IsAI() bool {
	return m.SenderID != SenderUser && m.SenderID != ""
}
