package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"law_flow_notify/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const maxCaseNumberAttempts = 10

// CaseInput is what a caller supplies to open a case
type CaseInput struct {
	ClientID    string  `json:"client_id" validate:"required"`
	LawyerID    *string `json:"lawyer_id,omitempty"`
	CaseType    string  `json:"case_type" validate:"required,max=64"`
	Title       string  `json:"title" validate:"required,max=255"`
	Description string  `json:"description"`
	Priority    string  `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

// CaseService owns every mutation of a case. Each mutation and its timeline
// event commit together; notifications are dispatched only after the commit.
type CaseService struct {
	DB         *gorm.DB
	Events     *EventLog
	Directory  UserDirectory
	Dispatcher EventDispatcher
	Now        func() time.Time

	validate *validator.Validate
	log      zerolog.Logger
}

func NewCaseService(db *gorm.DB, events *EventLog, directory UserDirectory, dispatcher EventDispatcher, log zerolog.Logger) *CaseService {
	return &CaseService{
		DB:         db,
		Events:     events,
		Directory:  directory,
		Dispatcher: dispatcher,
		Now:        func() time.Time { return time.Now().UTC() },
		validate:   validator.New(),
		log:        log,
	}
}

// CreateCase opens a case with status new and records case_created
func (s *CaseService) CreateCase(ctx context.Context, in CaseInput, actorID string) (*models.Case, error) {
	in.CaseType = strings.TrimSpace(in.CaseType)
	in.Title = strings.TrimSpace(in.Title)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationFromValidator(err)
	}
	if _, err := s.Directory.FindClientByID(ctx, in.ClientID); err != nil {
		return nil, err
	}
	if in.LawyerID != nil && *in.LawyerID == "" {
		in.LawyerID = nil
	}
	if in.LawyerID != nil {
		if _, err := s.Directory.FindLawyerByID(ctx, *in.LawyerID); err != nil {
			return nil, err
		}
	}
	priority := in.Priority
	if priority == "" {
		priority = models.CasePriorityMedium
	}

	now := s.Now().UTC()
	var created *models.Case
	var err error
	for attempt := 0; attempt < maxCaseNumberAttempts; attempt++ {
		created, err = s.insertCase(ctx, in, priority, actorID, now)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// another writer took the number between read and insert
			continue
		}
		break
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("failed to allocate a unique case number after %d attempts", maxCaseNumberAttempts)
	}
	if err != nil {
		return nil, err
	}

	snapshot := s.snapshot(ctx, created)
	s.dispatch(ctx, models.EventCaseCreated, snapshot, actorID, nil)
	return snapshot, nil
}

func (s *CaseService) insertCase(ctx context.Context, in CaseInput, priority, actorID string, now time.Time) (*models.Case, error) {
	var c *models.Case
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := NextCaseNumber(tx, in.CaseType, now)
		if err != nil {
			return err
		}

		c = &models.Case{
			CaseNumber:     number,
			CaseType:       in.CaseType,
			Title:          in.Title,
			Description:    in.Description,
			ClientID:       in.ClientID,
			LawyerID:       in.LawyerID,
			Status:         models.CaseStatusNew,
			Priority:       priority,
			LastActivityAt: now,
		}
		if err := tx.Create(c).Error; err != nil {
			return err
		}

		metadata := map[string]interface{}{
			"case_number": number,
			"case_type":   in.CaseType,
		}
		if in.LawyerID != nil {
			metadata["lawyer_id"] = *in.LawyerID
		}
		_, err = s.Events.Append(tx, EventInput{
			CaseID:      c.ID,
			EventType:   models.EventCaseCreated,
			ActorID:     optionalID(actorID),
			Description: fmt.Sprintf("Case %s created", number),
			Metadata:    metadata,
			At:          now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NextCaseNumber returns {year}-{PREFIX}-{seq} where seq is one more than the
// highest sequence already used for that year and prefix.
func NextCaseNumber(tx *gorm.DB, caseType string, now time.Time) (string, error) {
	base := fmt.Sprintf("%d-%s-", now.Year(), CaseNumberPrefix(caseType))

	var numbers []string
	if err := tx.Model(&models.Case{}).Where("case_number LIKE ?", base+"%").Pluck("case_number", &numbers).Error; err != nil {
		return "", fmt.Errorf("failed to query case numbers: %w", err)
	}

	highest := 0
	for _, n := range numbers {
		seq, err := strconv.Atoi(strings.TrimPrefix(n, base))
		if err == nil && seq > highest {
			highest = seq
		}
	}
	return fmt.Sprintf("%s%04d", base, highest+1), nil
}

// CaseNumberPrefix takes the first three letters of the case type, uppercased.
// A type without letters falls back to GEN.
func CaseNumberPrefix(caseType string) string {
	var b strings.Builder
	for _, r := range caseType {
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if b.Len() == 3 {
			break
		}
	}
	if b.Len() == 0 {
		return "GEN"
	}
	return b.String()
}

// UpdateStatus moves a case to newStatus. Setting the current status again
// is a no-op: no event and no notification.
func (s *CaseService) UpdateStatus(ctx context.Context, caseID, newStatus, actorID string) (*models.Case, error) {
	if !models.IsValidCaseStatus(newStatus) {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", newStatus)}
	}

	now := s.Now().UTC()
	var c models.Case
	var oldStatus string
	changed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, "id = ?", caseID).Error; err != nil {
			return lookupError(err, "case", caseID)
		}
		if c.Status == newStatus {
			return nil
		}
		oldStatus = c.Status

		updates := map[string]interface{}{"status": newStatus}
		if models.IsTerminalCaseStatus(newStatus) {
			updates["closed_at"] = now
			c.ClosedAt = &now
		} else if c.ClosedAt != nil {
			// reopened
			updates["closed_at"] = nil
			c.ClosedAt = nil
		}
		if err := tx.Model(&models.Case{}).Where("id = ?", c.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update case status: %w", err)
		}
		c.Status = newStatus

		_, err := s.Events.Append(tx, EventInput{
			CaseID:    c.ID,
			EventType: models.EventStatusChanged,
			ActorID:   optionalID(actorID),
			Description: fmt.Sprintf("Status changed from %s to %s",
				models.CaseStatusLabel(oldStatus), models.CaseStatusLabel(newStatus)),
			Metadata: map[string]interface{}{
				"old_status": oldStatus,
				"new_status": newStatus,
			},
			At: now,
		})
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return &c, nil
	}

	snapshot := s.snapshot(ctx, &c)
	s.dispatch(ctx, models.EventStatusChanged, snapshot, actorID, map[string]string{
		"old_status": models.CaseStatusLabel(oldStatus),
		"new_status": models.CaseStatusLabel(newStatus),
	})
	return snapshot, nil
}

// AssignLawyer sets or replaces the lawyer of a case. Assigning the lawyer
// already on the case is a no-op.
func (s *CaseService) AssignLawyer(ctx context.Context, caseID, lawyerID, actorID string) (*models.Case, error) {
	if strings.TrimSpace(lawyerID) == "" {
		return nil, &ValidationError{Field: "lawyer_id", Message: "is required"}
	}
	lawyer, err := s.Directory.FindLawyerByID(ctx, lawyerID)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	var c models.Case
	changed := false
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, "id = ?", caseID).Error; err != nil {
			return lookupError(err, "case", caseID)
		}
		if c.HasLawyer() && *c.LawyerID == lawyerID {
			return nil
		}

		var previous interface{}
		if c.HasLawyer() {
			previous = *c.LawyerID
		}
		if err := tx.Model(&models.Case{}).Where("id = ?", c.ID).Update("lawyer_id", lawyerID).Error; err != nil {
			return fmt.Errorf("failed to assign lawyer: %w", err)
		}
		c.LawyerID = &lawyerID

		_, err := s.Events.Append(tx, EventInput{
			CaseID:      c.ID,
			EventType:   models.EventLawyerAssigned,
			ActorID:     optionalID(actorID),
			Description: fmt.Sprintf("Lawyer %s assigned", lawyer.Name),
			Metadata: map[string]interface{}{
				"lawyer_id":          lawyerID,
				"previous_lawyer_id": previous,
			},
			At: now,
		})
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return &c, nil
	}

	snapshot := s.snapshot(ctx, &c)
	s.dispatch(ctx, models.EventLawyerAssigned, snapshot, actorID, map[string]string{
		"lawyer_name":  lawyer.Name,
		"lawyer_email": lawyer.Email,
	})
	return snapshot, nil
}

// GetCase loads a case with its client and lawyer
func (s *CaseService) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	var c models.Case
	err := s.DB.WithContext(ctx).
		Preload("Client.User").
		Preload("Lawyer.User").
		First(&c, "id = ?", caseID).Error
	if err != nil {
		return nil, lookupError(err, "case", caseID)
	}
	return &c, nil
}

// ListCaseEvents returns the timeline of a case, oldest first
func (s *CaseService) ListCaseEvents(ctx context.Context, caseID string) ([]models.CaseEvent, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Case{}).Where("id = ?", caseID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check case: %w", err)
	}
	if count == 0 {
		return nil, notFound("case", caseID)
	}
	return s.Events.Timeline(ctx, caseID)
}

// snapshot reloads the committed case with its parties for the notification
// pipeline. If the reload fails the in-memory copy is used.
func (s *CaseService) snapshot(ctx context.Context, c *models.Case) *models.Case {
	loaded, err := s.GetCase(ctx, c.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("case_id", c.ID).Msg("failed to reload case after commit")
		return c
	}
	return loaded
}

func (s *CaseService) dispatch(ctx context.Context, eventType string, c *models.Case, actorID string, data map[string]string) {
	dispatchEvent(ctx, s.Dispatcher, s.Directory, eventType, c, actorID, data)
}

// dispatchEvent hands a committed mutation to the notification pipeline
func dispatchEvent(ctx context.Context, d EventDispatcher, directory UserDirectory, eventType string, c *models.Case, actorID string, data map[string]string) {
	if d == nil {
		return
	}
	event := NotificationEvent{
		Type:        eventType,
		Case:        *c,
		ActorUserID: actorID,
		Data:        data,
	}
	if actorID != "" && directory != nil {
		if actor, err := directory.FindUserByID(ctx, actorID); err == nil {
			event.ActorRole = actor.Role
		}
	}
	d.Dispatch(event)
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
