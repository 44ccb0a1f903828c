package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/roundtable-ai/roundtable/types"
)

// DatabaseConfig configures the SQL-backed store.
type DatabaseConfig struct {
	// Driver selects the SQL dialect: sqlite, postgres or mysql.
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the driver-specific connection string.
	DSN string `json:"dsn" yaml:"dsn"`

	// MaxIdleConns / MaxOpenConns tune the connection pool.
	MaxIdleConns int `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`

	// ConnMaxLifetime bounds connection reuse.
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// DefaultDatabaseConfig returns the default SQL configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		DSN:             "roundtable.db",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
	}
}

type conversationRecord struct {
	ID           string `gorm:"primaryKey;size:64"`
	Title        string
	Instructions string
	Participants string // JSON-encoded []string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (conversationRecord) TableName() string { return "conversations" }

// messageRecord uses the auto-increment primary key as the authoritative
// sequence: per-conversation insertion order follows from global insertion
// order for the single sequential writer per conversation.
type messageRecord struct {
	Seq            int64  `gorm:"primaryKey;autoIncrement"`
	MessageID      string `gorm:"size:64;uniqueIndex"`
	ConversationID string `gorm:"size:64;index"`
	SenderID       string `gorm:"size:128"`
	Content        string
	Metadata       string
	CreatedAt      time.Time
}

func (messageRecord) TableName() string { return "messages" }

type personalityRecord struct {
	NameID       string `gorm:"primaryKey;size:128"`
	DisplayName  string
	SystemPrompt string
	Provider     string `gorm:"size:64"`
	Model        string `gorm:"size:128"`
	Temperature  float32
	MaxTokens    int
}

func (personalityRecord) TableName() string { return "personalities" }

// GormStore is a SQL-backed implementation of ConversationStore and
// PersonalityStore.
type GormStore struct {
	db    *gorm.DB
	clock Clock
}

// NewGormStore opens the configured database, applies the pool settings and
// migrates the schema.
func NewGormStore(cfg DatabaseConfig) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access connection pool: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return NewGormStoreWithDB(db)
}

// NewGormStoreWithDB wraps an existing gorm handle (used by tests) and
// migrates the schema.
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&conversationRecord{}, &messageRecord{}, &personalityRecord{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db, clock: time.Now}, nil
}

// WithClock overrides the time source. Test hook.
func (s *GormStore) WithClock(clock Clock) *GormStore {
	s.clock = clock
	return s
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateConversation persists a new conversation.
func (s *GormStore) CreateConversation(ctx context.Context, conv *types.Conversation) error {
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

	participants, err := json.Marshal(conv.ParticipantIDs)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&conversationRecord{}).Where("id = ?", conv.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("check conversation: %w", err)
	}
	if count > 0 {
		return ErrAlreadyExists
	}

	rec := conversationRecord{
		ID:           conv.ID,
		Title:        conv.Title,
		Instructions: conv.Instructions,
		Participants: string(participants),
		IsActive:     conv.IsActive,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *GormStore) toConversation(rec conversationRecord) (*types.Conversation, error) {
	var participants []string
	if rec.Participants != "" {
		if err := json.Unmarshal([]byte(rec.Participants), &participants); err != nil {
			return nil, fmt.Errorf("unmarshal participants: %w", err)
		}
	}
	return &types.Conversation{
		ID:             rec.ID,
		Title:          rec.Title,
		Instructions:   rec.Instructions,
		ParticipantIDs: participants,
		IsActive:       rec.IsActive,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}, nil
}

// GetConversation retrieves a conversation by id.
func (s *GormStore) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	var rec conversationRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return s.toConversation(rec)
}

// UpdateConversation replaces the mutable fields of an existing conversation.
func (s *GormStore) UpdateConversation(ctx context.Context, conv *types.Conversation) error {
	if conv == nil {
		return ErrInvalidInput
	}

	participants, err := json.Marshal(conv.ParticipantIDs)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}

	result := s.db.WithContext(ctx).Model(&conversationRecord{}).
		Where("id = ?", conv.ID).
		Updates(map[string]any{
			"title":        conv.Title,
			"instructions": conv.Instructions,
			"participants": string(participants),
			"is_active":    conv.IsActive,
			"updated_at":   s.clock(),
		})
	if result.Error != nil {
		return fmt.Errorf("update conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConversations returns all conversations, newest first.
func (s *GormStore) ListConversations(ctx context.Context) ([]types.Conversation, error) {
	var recs []conversationRecord
	if err := s.db.WithContext(ctx).Order("created_at DESC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	result := make([]types.Conversation, 0, len(recs))
	for _, rec := range recs {
		conv, err := s.toConversation(rec)
		if err != nil {
			return nil, err
		}
		result = append(result, *conv)
	}
	return result, nil
}

// Append adds a message to the conversation's log.
func (s *GormStore) Append(ctx context.Context, conversationID, senderID, content string, metadata map[string]string) (*types.Message, error) {
	if conversationID == "" || senderID == "" {
		return nil, ErrInvalidInput
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&conversationRecord{}).Where("id = ?", conversationID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check conversation: %w", err)
	}
	if count == 0 {
		return nil, ErrNotFound
	}

	metaJSON := ""
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		metaJSON = string(data)
	}

	rec := messageRecord{
		MessageID:      uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Metadata:       metaJSON,
		CreatedAt:      s.clock(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	return s.toMessage(rec)
}

func (s *GormStore) toMessage(rec messageRecord) (*types.Message, error) {
	msg := types.Message{
		ID:             rec.MessageID,
		ConversationID: rec.ConversationID,
		SenderID:       rec.SenderID,
		Content:        rec.Content,
		Seq:            rec.Seq,
		CreatedAt:      rec.CreatedAt,
	}
	if rec.Metadata != "" {
		if err := json.Unmarshal([]byte(rec.Metadata), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &msg, nil
}

// History returns the conversation's messages in insertion order.
func (s *GormStore) History(ctx context.Context, conversationID string) ([]types.Message, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&conversationRecord{}).Where("id = ?", conversationID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check conversation: %w", err)
	}
	if count == 0 {
		return nil, ErrNotFound
	}

	var recs []messageRecord
	if err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("seq ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	result := make([]types.Message, 0, len(recs))
	for _, rec := range recs {
		msg, err := s.toMessage(rec)
		if err != nil {
			return nil, err
		}
		result = append(result, *msg)
	}
	return result, nil
}

// SavePersonality creates or replaces a personality.
func (s *GormStore) SavePersonality(ctx context.Context, p types.Personality) error {
	if !p.Valid() {
		return ErrInvalidInput
	}

	rec := personalityRecord{
		NameID:       p.NameID,
		DisplayName:  p.DisplayName,
		SystemPrompt: p.SystemPrompt,
		Provider:     p.Provider,
		Model:        p.Model,
		Temperature:  p.Temperature,
		MaxTokens:    p.MaxTokens,
	}
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("save personality: %w", err)
	}
	return nil
}

// GetPersonality retrieves a personality by name id.
func (s *GormStore) GetPersonality(ctx context.Context, nameID string) (types.Personality, error) {
	var rec personalityRecord
	err := s.db.WithContext(ctx).First(&rec, "name_id = ?", nameID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Personality{}, ErrNotFound
	}
	if err != nil {
		return types.Personality{}, fmt.Errorf("get personality: %w", err)
	}
	return types.Personality{
		NameID:       rec.NameID,
		DisplayName:  rec.DisplayName,
		SystemPrompt: rec.SystemPrompt,
		Provider:     rec.Provider,
		Model:        rec.Model,
		Temperature:  rec.Temperature,
		MaxTokens:    rec.MaxTokens,
	}, nil
}

// ListPersonalities returns all personalities sorted by name id.
func (s *GormStore) ListPersonalities(ctx context.Context) ([]types.Personality, error) {
	var recs []personalityRecord
	if err := s.db.WithContext(ctx).Order("name_id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list personalities: %w", err)
	}

	result := make([]types.Personality, 0, len(recs))
	for _, rec := range recs {
		result = append(result, types.Personality{
			NameID:       rec.NameID,
			DisplayName:  rec.DisplayName,
			SystemPrompt: rec.SystemPrompt,
			Provider:     rec.Provider,
			Model:        rec.Model,
			Temperature:  rec.Temperature,
			MaxTokens:    rec.MaxTokens,
		})
	}
	return result, nil
}

// DeletePersonality removes a personality.
func (s *GormStore) DeletePersonality(ctx context.Context, nameID string) error {
	result := s.db.WithContext(ctx).Delete(&personalityRecord{}, "name_id = ?", nameID)
	if result.Error != nil {
		return fmt.Errorf("delete personality: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ensure GormStore implements both store interfaces.
var (
	_ ConversationStore = (*GormStore)(nil)
	_ PersonalityStore  = (*GormStore)(nil)
)
