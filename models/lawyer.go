package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lawyer is the lawyer profile of a user account
type Lawyer struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID string `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Specialization string `json:"specialization,omitempty"`
	// Unavailable lawyers keep their cases but get no weekly digest.
	// Note: gorm applies the default on a false zero value, so set it to
	// false with an explicit Update after create.
	IsAvailable bool `gorm:"not null;default:true" json:"is_available"`
}

func (l *Lawyer) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

func (Lawyer) TableName() string {
	return "lawyers"
}
