package store

import (
	"context"
	"errors"
	"time"

	"github.com/roundtable-ai/roundtable/types"
)

// Common errors. Callers outside the store layer map these to the platform
// error taxonomy (types.ErrNotFound and friends) at the boundary.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrStoreClosed   = errors.New("store is closed")
	ErrInvalidInput  = errors.New("invalid input")
)

// BackendType represents the type of storage backend.
type BackendType string

const (
	BackendMemory BackendType = "memory"
	BackendRedis  BackendType = "redis"
	BackendSQL    BackendType = "sql"
)

// Store is the base interface for all store implementations.
type Store interface {
	// Close closes the store and releases resources.
	Close() error

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error
}

// ConversationStore is an append-only message log keyed by conversation id.
type ConversationStore interface {
	Store

	// CreateConversation persists a new conversation. Fails with
	// ErrAlreadyExists if the id is taken. A missing id is generated.
	CreateConversation(ctx context.Context, conv *types.Conversation) error

	// GetConversation retrieves a conversation by id.
	GetConversation(ctx context.Context, id string) (*types.Conversation, error)

	// UpdateConversation replaces the mutable fields (title, instructions,
	// participants, active flag) of an existing conversation.
	UpdateConversation(ctx context.Context, conv *types.Conversation) error

	// ListConversations returns all conversations, newest first.
	ListConversations(ctx context.Context) ([]types.Conversation, error)

	// Append adds a message to the conversation's log and returns it with
	// its assigned sequence number. Fails with ErrNotFound if the
	// conversation is unknown. The returned message is durable when Append
	// returns: readers observe messages in exactly append order.
	Append(ctx context.Context, conversationID, senderID, content string, metadata map[string]string) (*types.Message, error)

	// History returns the conversation's messages in insertion order.
	History(ctx context.Context, conversationID string) ([]types.Message, error)
}

// PersonalityStore is the participant configuration source.
type PersonalityStore interface {
	Store

	// SavePersonality creates or replaces a personality.
	SavePersonality(ctx context.Context, p types.Personality) error

	// GetPersonality retrieves a personality by name id. Fails with
	// ErrNotFound for unknown ids.
	GetPersonality(ctx context.Context, nameID string) (types.Personality, error)

	// ListPersonalities returns all personalities sorted by name id.
	ListPersonalities(ctx context.Context) ([]types.Personality, error)

	// DeletePersonality removes a personality.
	DeletePersonality(ctx context.Context, nameID string) error
}

// Clock abstracts time for deterministic tests.
type Clock func() time.Time
