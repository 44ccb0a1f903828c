package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roundtable-ai/roundtable/types"
)

// MemoryStore is an in-memory implementation of ConversationStore and
// PersonalityStore. Suitable for development and testing. Data is lost on
// restart.
type MemoryStore struct {
	conversations map[string]*types.Conversation
	messages      map[string][]types.Message
	seqs          map[string]int64
	personalities map[string]types.Personality

	clock  Clock
	mu     sync.RWMutex
	closed bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*types.Conversation),
		messages:      make(map[string][]types.Message),
		seqs:          make(map[string]int64),
		personalities: make(map[string]types.Personality),
		clock:         time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *MemoryStore) WithClock(clock Clock) *MemoryStore {
	s.clock = clock
	return s
}

// Close closes the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// CreateConversation persists a new conversation.
func (s *MemoryStore) CreateConversation(ctx context.Context, conv *types.Conversation) error {
	if conv == nil {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if _, ok := s.conversations[conv.ID]; ok {
		return ErrAlreadyExists
	}

	now := s.clock()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	stored := *conv
	stored.ParticipantIDs = append([]string(nil), conv.ParticipantIDs...)
	s.conversations[conv.ID] = &stored
	return nil
}

// GetConversation retrieves a conversation by id.
func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	out := *conv
	out.ParticipantIDs = append([]string(nil), conv.ParticipantIDs...)
	return &out, nil
}

// UpdateConversation replaces the mutable fields of an existing conversation.
func (s *MemoryStore) UpdateConversation(ctx context.Context, conv *types.Conversation) error {
	if conv == nil {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	existing, ok := s.conversations[conv.ID]
	if !ok {
		return ErrNotFound
	}

	existing.Title = conv.Title
	existing.Instructions = conv.Instructions
	existing.ParticipantIDs = append([]string(nil), conv.ParticipantIDs...)
	existing.IsActive = conv.IsActive
	existing.UpdatedAt = s.clock()
	return nil
}

// ListConversations returns all conversations, newest first.
func (s *MemoryStore) ListConversations(ctx context.Context) ([]types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	result := make([]types.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out := *conv
		out.ParticipantIDs = append([]string(nil), conv.ParticipantIDs...)
		result = append(result, out)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Append adds a message to the conversation's log.
func (s *MemoryStore) Append(ctx context.Context, conversationID, senderID, content string, metadata map[string]string) (*types.Message, error) {
	if conversationID == "" || senderID == "" {
		return nil, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}

	s.seqs[conversationID]++
	msg := types.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Seq:            s.seqs[conversationID],
		CreatedAt:      s.clock(),
	}
	if len(metadata) > 0 {
		msg.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			msg.Metadata[k] = v
		}
	}

	s.messages[conversationID] = append(s.messages[conversationID], msg)

	out := msg
	return &out, nil
}

// History returns the conversation's messages in insertion order.
func (s *MemoryStore) History(ctx context.Context, conversationID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}

	return append([]types.Message(nil), s.messages[conversationID]...), nil
}

// SavePersonality creates or replaces a personality.
func (s *MemoryStore) SavePersonality(ctx context.Context, p types.Personality) error {
	if !p.Valid() {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.personalities[p.NameID] = p
	return nil
}

// GetPersonality retrieves a personality by name id.
func (s *MemoryStore) GetPersonality(ctx context.Context, nameID string) (types.Personality, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return types.Personality{}, ErrStoreClosed
	}

	p, ok := s.personalities[nameID]
	if !ok {
		return types.Personality{}, ErrNotFound
	}
	return p, nil
}

// ListPersonalities returns all personalities sorted by name id.
func (s *MemoryStore) ListPersonalities(ctx context.Context) ([]types.Personality, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	result := make([]types.Personality, 0, len(s.personalities))
	for _, p := range s.personalities {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].NameID < result[j].NameID })
	return result, nil
}

// DeletePersonality removes a personality.
func (s *MemoryStore) DeletePersonality(ctx context.Context, nameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, ok := s.personalities[nameID]; !ok {
		return ErrNotFound
	}
	delete(s.personalities, nameID)
	return nil
}

// Ensure MemoryStore implements both store interfaces.
var (
	_ ConversationStore = (*MemoryStore)(nil)
	_ PersonalityStore  = (*MemoryStore)(nil)
)
