package services

import (
	"context"
	"fmt"
	"time"

	"law_flow_notify/models"

	"gorm.io/gorm"
)

// EventInput describes one entry to append to a case timeline
type EventInput struct {
	CaseID      string
	EventType   string
	ActorID     *string
	Description string
	Metadata    map[string]interface{}
	// At overrides the event time. Zero means now.
	At time.Time
}

// EventLog is the append-only case timeline
type EventLog struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewEventLog(db *gorm.DB) *EventLog {
	return &EventLog{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// Append writes the event through tx and moves the owning case's
// last_activity_at forward to the event time. Callers pass their own
// transaction so the event commits or rolls back with the mutation.
func (l *EventLog) Append(tx *gorm.DB, in EventInput) (*models.CaseEvent, error) {
	if in.CaseID == "" {
		return nil, &ValidationError{Field: "case_id", Message: "is required"}
	}
	if in.EventType == "" {
		return nil, &ValidationError{Field: "event_type", Message: "is required"}
	}

	var count int64
	if err := tx.Model(&models.Case{}).Where("id = ?", in.CaseID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check case: %w", err)
	}
	if count == 0 {
		return nil, notFound("case", in.CaseID)
	}

	at := in.At
	if at.IsZero() {
		at = l.Now()
	}

	event := &models.CaseEvent{
		CaseID:      in.CaseID,
		EventType:   in.EventType,
		ActorID:     in.ActorID,
		Description: in.Description,
		Metadata:    in.Metadata,
		CreatedAt:   at.UTC(),
	}
	if err := tx.Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to append %s event: %w", in.EventType, err)
	}

	// Only ever move forward; a late or back-dated append must not rewind it.
	err := tx.Model(&models.Case{}).
		Where("id = ? AND last_activity_at < ?", in.CaseID, event.CreatedAt).
		Update("last_activity_at", event.CreatedAt).Error
	if err != nil {
		return nil, fmt.Errorf("failed to bump case activity: %w", err)
	}

	return event, nil
}

// AppendStandalone appends outside any caller transaction
func (l *EventLog) AppendStandalone(ctx context.Context, in EventInput) (*models.CaseEvent, error) {
	var event *models.CaseEvent
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		event, err = l.Append(tx, in)
		return err
	})
	return event, err
}

// Timeline returns the events of a case, oldest first
func (l *EventLog) Timeline(ctx context.Context, caseID string) ([]models.CaseEvent, error) {
	var events []models.CaseEvent
	err := l.DB.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

// CountByType counts the events of one type for a case
func (l *EventLog) CountByType(ctx context.Context, caseID, eventType string) (int64, error) {
	var count int64
	err := l.DB.WithContext(ctx).Model(&models.CaseEvent{}).
		Where("case_id = ? AND event_type = ?", caseID, eventType).
		Count(&count).Error
	return count, err
}
