package models

import (
	"time"
)

// Message 私信记录，写入后不再修改
type Message struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	MessageID   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"_id"`
	SenderID    string    `gorm:"type:varchar(36);not null;index:idx_messages_pair,priority:1" json:"senderId"`
	RecipientID string    `gorm:"type:varchar(36);not null;index:idx_messages_pair,priority:2" json:"recipientId"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	MomentID    *string   `gorm:"type:varchar(64)" json:"momentId,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}
