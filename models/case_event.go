package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Case event types recorded in the audit timeline
const (
	EventCaseCreated      = "case_created"
	EventStatusChanged    = "status_changed"
	EventLawyerAssigned   = "lawyer_assigned"
	EventDocumentUploaded = "document_uploaded"
	EventMessageSent      = "message_sent"
	EventDeadlineReminder = "deadline_reminder"
)

// EventInactivityDetected triggers notifications only; the scanner records a
// EventDeadlineReminder in the timeline instead.
const EventInactivityDetected = "inactivity_detected"

// ErrImmutableCaseEvent is returned when code tries to change the timeline
var ErrImmutableCaseEvent = errors.New("case events are append-only")

// CaseEvent is an immutable entry of a case timeline
type CaseEvent struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `gorm:"not null;index:idx_case_event_timeline" json:"created_at"`

	CaseID string `gorm:"type:uuid;not null;index:idx_case_event_timeline" json:"case_id"`

	EventType   string            `gorm:"not null;index" json:"event_type"`
	ActorID     *string           `gorm:"type:uuid" json:"actor_id,omitempty"`
	Description string            `gorm:"type:text" json:"description"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
}

func (e *CaseEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

// BeforeUpdate prevents modification of case events
func (e *CaseEvent) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableCaseEvent
}

// BeforeDelete prevents deletion of case events
func (e *CaseEvent) BeforeDelete(tx *gorm.DB) error {
	return ErrImmutableCaseEvent
}

func (CaseEvent) TableName() string {
	return "case_events"
}
