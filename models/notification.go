package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification types
const (
	NotificationTypeCaseCreated        = "case_created"
	NotificationTypeStatusChanged      = "status_changed"
	NotificationTypeLawyerAssigned     = "lawyer_assigned"
	NotificationTypeNewCaseAssigned    = "new_case_assigned"
	NotificationTypeDocumentUploaded   = "document_uploaded"
	NotificationTypeMessageReceived    = "message_received"
	NotificationTypeInactivityReminder = "inactivity_reminder"
)

type Notification struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Targeting
	UserID string  `gorm:"type:uuid;not null;index:idx_notification_user_read" json:"user_id"`
	CaseID *string `gorm:"type:uuid;index" json:"case_id,omitempty"`

	// Content
	Type    string `gorm:"not null" json:"type"`
	Title   string `gorm:"not null" json:"title"`
	Message string `gorm:"type:text" json:"message"`

	// Read tracking
	IsRead bool       `gorm:"not null;default:false;index:idx_notification_user_read" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

func (Notification) TableName() string {
	return "notifications"
}
