package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CaseDocument records an uploaded file. The blob itself lives in external
// storage under StorageKey.
type CaseDocument struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	CaseID string `gorm:"type:uuid;not null;index" json:"case_id"`

	FileName   string `gorm:"not null" json:"file_name"`
	StorageKey string `json:"-"`

	// Upload tracking
	UploadedByID string `gorm:"type:uuid;not null" json:"uploaded_by_id"`
	UploaderRole string `gorm:"not null" json:"uploader_role"`
}

// BeforeCreate hook to generate UUID
func (d *CaseDocument) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

func (CaseDocument) TableName() string {
	return "case_documents"
}
