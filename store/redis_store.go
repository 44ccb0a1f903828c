package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/roundtable-ai/roundtable/types"
)

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string `json:"addr" yaml:"addr"`

	// Password is the Redis password (optional).
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number.
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size.
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		DB:        0,
		PoolSize:  10,
		KeyPrefix: "roundtable:",
	}
}

// RedisStore is a Redis-backed implementation of ConversationStore and
// PersonalityStore for distributed deployments.
//
// Key layout:
//
//	{prefix}conversation:{id}  conversation JSON
//	{prefix}conversations      set of conversation ids
//	{prefix}messages:{id}      list of message JSON, RPUSH order = Seq order
//	{prefix}seq:{id}           per-conversation sequence counter
//	{prefix}personalities      hash of nameID -> personality JSON
type RedisStore struct {
	client *redis.Client
	prefix string
	clock  Clock
}

// NewRedisStore creates a Redis store from configuration.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	return &RedisStore{
		client: client,
		prefix: cfg.KeyPrefix,
		clock:  time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *RedisStore) WithClock(clock Clock) *RedisStore {
	s.clock = clock
	return s
}

func (s *RedisStore) conversationKey(id string) string {
	return s.prefix + "conversation:" + id
}

func (s *RedisStore) conversationsKey() string {
	return s.prefix + "conversations"
}

func (s *RedisStore) messagesKey(id string) string {
	return s.prefix + "messages:" + id
}

func (s *RedisStore) seqKey(id string) string {
	return s.prefix + "seq:" + id
}

func (s *RedisStore) personalitiesKey() string {
	return s.prefix + "personalities"
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// CreateConversation persists a new conversation.
func (s *RedisStore) CreateConversation(ctx context.Context, conv *types.Conversation) error {
	if conv == nil {
		return ErrInvalidInput
	}

	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := s.clock()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.conversationKey(conv.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("set conversation: %w", err)
	}
	if !ok {
		return ErrAlreadyExists
	}

	if err := s.client.SAdd(ctx, s.conversationsKey(), conv.ID).Err(); err != nil {
		return fmt.Errorf("index conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by id.
func (s *RedisStore) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	data, err := s.client.Get(ctx, s.conversationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	var conv types.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	return &conv, nil
}

// UpdateConversation replaces the mutable fields of an existing conversation.
func (s *RedisStore) UpdateConversation(ctx context.Context, conv *types.Conversation) error {
	if conv == nil {
		return ErrInvalidInput
	}

	existing, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		return err
	}

	existing.Title = conv.Title
	existing.Instructions = conv.Instructions
	existing.ParticipantIDs = append([]string(nil), conv.ParticipantIDs...)
	existing.IsActive = conv.IsActive
	existing.UpdatedAt = s.clock()

	data, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	return s.client.Set(ctx, s.conversationKey(conv.ID), data, 0).Err()
}

// ListConversations returns all conversations, newest first.
func (s *RedisStore) ListConversations(ctx context.Context) ([]types.Conversation, error) {
	ids, err := s.client.SMembers(ctx, s.conversationsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	result := make([]types.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.GetConversation(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, *conv)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Append adds a message to the conversation's log. The RPUSH happens after
// the conversation existence check and the sequence INCR, so list order and
// sequence order always agree for a single sequential writer.
func (s *RedisStore) Append(ctx context.Context, conversationID, senderID, content string, metadata map[string]string) (*types.Message, error) {
	if conversationID == "" || senderID == "" {
		return nil, ErrInvalidInput
	}

	exists, err := s.client.Exists(ctx, s.conversationKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("check conversation: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	seq, err := s.client.Incr(ctx, s.seqKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("increment sequence: %w", err)
	}

	msg := types.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Seq:            seq,
		CreatedAt:      s.clock(),
		Metadata:       metadata,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	if err := s.client.RPush(ctx, s.messagesKey(conversationID), data).Err(); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return &msg, nil
}

// History returns the conversation's messages in insertion order.
func (s *RedisStore) History(ctx context.Context, conversationID string) ([]types.Message, error) {
	exists, err := s.client.Exists(ctx, s.conversationKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("check conversation: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	items, err := s.client.LRange(ctx, s.messagesKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	result := make([]types.Message, 0, len(items))
	for _, item := range items {
		var msg types.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		result = append(result, msg)
	}
	return result, nil
}

// SavePersonality creates or replaces a personality.
func (s *RedisStore) SavePersonality(ctx context.Context, p types.Personality) error {
	if !p.Valid() {
		return ErrInvalidInput
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal personality: %w", err)
	}
	return s.client.HSet(ctx, s.personalitiesKey(), p.NameID, data).Err()
}

// GetPersonality retrieves a personality by name id.
func (s *RedisStore) GetPersonality(ctx context.Context, nameID string) (types.Personality, error) {
	data, err := s.client.HGet(ctx, s.personalitiesKey(), nameID).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Personality{}, ErrNotFound
	}
	if err != nil {
		return types.Personality{}, fmt.Errorf("get personality: %w", err)
	}

	var p types.Personality
	if err := json.Unmarshal(data, &p); err != nil {
		return types.Personality{}, fmt.Errorf("unmarshal personality: %w", err)
	}
	return p, nil
}

// ListPersonalities returns all personalities sorted by name id.
func (s *RedisStore) ListPersonalities(ctx context.Context) ([]types.Personality, error) {
	entries, err := s.client.HGetAll(ctx, s.personalitiesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list personalities: %w", err)
	}

	result := make([]types.Personality, 0, len(entries))
	for _, data := range entries {
		var p types.Personality
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("unmarshal personality: %w", err)
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].NameID < result[j].NameID })
	return result, nil
}

// DeletePersonality removes a personality.
func (s *RedisStore) DeletePersonality(ctx context.Context, nameID string) error {
	removed, err := s.client.HDel(ctx, s.personalitiesKey(), nameID).Result()
	if err != nil {
		return fmt.Errorf("delete personality: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// Ensure RedisStore implements both store interfaces.
var (
	_ ConversationStore = (*RedisStore)(nil)
	_ PersonalityStore  = (*RedisStore)(nil)
)
