package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.jetpack.io/typeid"
	"gorm.io/gorm"

	"neuro-match/models"
)

const (
	MaxMessageLength = 5000
	messageIDPrefix  = "msg"
)

// MessageStore 私信持久化：只追加，不修改不删除
type MessageStore interface {
	Append(ctx context.Context, senderID, recipientID, text string, momentID *string) (*models.Message, error)
	ListConversation(ctx context.Context, userA, userB string) ([]models.Message, error)
}

type gormMessageStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMessageStore(db *gorm.DB) MessageStore {
	return &gormMessageStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func validateMessage(senderID, recipientID, text string, momentID *string) error {
	if strings.TrimSpace(senderID) == "" {
		return invalid("senderId", "is required")
	}
	if strings.TrimSpace(recipientID) == "" {
		return invalid("recipientId", "is required")
	}
	if strings.TrimSpace(text) == "" {
		return invalid("text", "is required")
	}
	if !utf8.ValidString(text) {
		return invalid("text", "must be valid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return invalid("text", fmt.Sprintf("must be at most %d characters", MaxMessageLength))
	}
	if momentID != nil && strings.TrimSpace(*momentID) == "" {
		return invalid("momentId", "must not be blank")
	}
	return nil
}

func (s *gormMessageStore) Append(ctx context.Context, senderID, recipientID, text string, momentID *string) (*models.Message, error) {
	if err := validateMessage(senderID, recipientID, text, momentID); err != nil {
		return nil, err
	}

	tid, err := typeid.New(messageIDPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create message id: %w", err)
	}

	message := models.Message{
		MessageID:   tid.String(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        text,
		MomentID:    momentID,
		CreatedAt:   s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		return nil, fmt.Errorf("%w: create message: %v", ErrPersistence, err)
	}
	return &message, nil
}

func (s *gormMessageStore) ListConversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	if strings.TrimSpace(userA) == "" {
		return nil, invalid("userA", "is required")
	}
	if strings.TrimSpace(userB) == "" {
		return nil, invalid("with", "is required")
	}

	messages := make([]models.Message, 0)
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			userA, userB, userB, userA).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list conversation: %v", ErrPersistence, err)
	}
	return messages, nil
}
