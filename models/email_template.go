package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EmailTemplate is an administrator override of a built-in email template.
// Deleting the row restores the built-in default.
type EmailTemplate struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Key     string `gorm:"column:template_key;not null;uniqueIndex" json:"key"`
	Subject string `gorm:"not null" json:"subject"`
	// HTML with {{variable}} placeholders and {{#if variable}}...{{/if}} blocks
	HTML string `gorm:"type:text;not null" json:"html"`

	UpdatedByID *string `gorm:"type:uuid" json:"updated_by_id,omitempty"`
}

func (t *EmailTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

func (EmailTemplate) TableName() string {
	return "email_templates"
}
