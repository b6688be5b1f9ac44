package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CaseMessage is a message exchanged between the parties of a case
type CaseMessage struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	CaseID   string `gorm:"type:uuid;not null;index" json:"case_id"`
	SenderID string `gorm:"type:uuid;not null" json:"sender_id"`
	Content  string `gorm:"type:text;not null" json:"content"`
}

func (m *CaseMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (CaseMessage) TableName() string {
	return "case_messages"
}
