package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Email delivery outcomes
const (
	EmailStatusSent    = "sent"
	EmailStatusFailed  = "failed"
	EmailStatusSkipped = "skipped" // provider not configured or no address
)

// EmailLog stores the final outcome of one outbound email. Individual retry
// attempts are not persisted, only their count.
type EmailLog struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	Recipient   string  `gorm:"not null;index" json:"recipient"`
	Subject     string  `gorm:"not null" json:"subject"`
	Body        string  `gorm:"type:text" json:"body"`
	TemplateKey string  `json:"template_key,omitempty"`
	CaseID      *string `gorm:"type:uuid;index" json:"case_id,omitempty"`

	Status   string `gorm:"not null;index" json:"status"`
	Attempts int    `gorm:"not null" json:"attempts"`
	Error    string `gorm:"type:text" json:"error,omitempty"`
}

func (l *EmailLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

func (EmailLog) TableName() string {
	return "email_logs"
}
