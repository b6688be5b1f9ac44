package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"law_flow_notify/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const messagePreviewLength = 200

// CaseActivityService records collaborator activity on a case: document
// uploads and messages. Both land on the timeline like any other mutation.
type CaseActivityService struct {
	DB         *gorm.DB
	Events     *EventLog
	Directory  UserDirectory
	Dispatcher EventDispatcher
	Now        func() time.Time

	log zerolog.Logger
}

func NewCaseActivityService(db *gorm.DB, events *EventLog, directory UserDirectory, dispatcher EventDispatcher, log zerolog.Logger) *CaseActivityService {
	return &CaseActivityService{
		DB:         db,
		Events:     events,
		Directory:  directory,
		Dispatcher: dispatcher,
		Now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// RecordDocumentUpload stores the metadata of an uploaded file. Who hears
// about it depends on the uploader's role.
func (s *CaseActivityService) RecordDocumentUpload(ctx context.Context, caseID, uploaderUserID, fileName, storageKey string) (*models.CaseDocument, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, &ValidationError{Field: "file_name", Message: "is required"}
	}
	uploader, err := s.Directory.FindUserByID(ctx, uploaderUserID)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	doc := &models.CaseDocument{
		CaseID:       caseID,
		FileName:     fileName,
		StorageKey:   storageKey,
		UploadedByID: uploader.UserID,
		UploaderRole: uploader.Role,
		CreatedAt:    now,
	}
	var c models.Case
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, "id = ?", caseID).Error; err != nil {
			return lookupError(err, "case", caseID)
		}
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("failed to save document: %w", err)
		}
		_, err := s.Events.Append(tx, EventInput{
			CaseID:      caseID,
			EventType:   models.EventDocumentUploaded,
			ActorID:     &uploader.UserID,
			Description: fmt.Sprintf("%s uploaded %s", uploader.Name, fileName),
			Metadata: map[string]interface{}{
				"document_id":   doc.ID,
				"file_name":     fileName,
				"uploader_role": uploader.Role,
			},
			At: now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, models.EventDocumentUploaded, c.ID, *uploader, map[string]string{
		"file_name":     fileName,
		"uploader_name": uploader.Name,
	})
	return doc, nil
}

// PostMessage stores a message from senderUserID and tells the other party
func (s *CaseActivityService) PostMessage(ctx context.Context, caseID, senderUserID, content string) (*models.CaseMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ValidationError{Field: "content", Message: "must not be empty"}
	}
	sender, err := s.Directory.FindUserByID(ctx, senderUserID)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	msg := &models.CaseMessage{
		CaseID:    caseID,
		SenderID:  sender.UserID,
		Content:   content,
		CreatedAt: now,
	}
	var c models.Case
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, "id = ?", caseID).Error; err != nil {
			return lookupError(err, "case", caseID)
		}
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
		_, err := s.Events.Append(tx, EventInput{
			CaseID:      caseID,
			EventType:   models.EventMessageSent,
			ActorID:     &sender.UserID,
			Description: fmt.Sprintf("Message from %s", sender.Name),
			Metadata: map[string]interface{}{
				"message_id":  msg.ID,
				"sender_role": sender.Role,
			},
			At: now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, models.EventMessageSent, c.ID, *sender, map[string]string{
		"sender_name":     sender.Name,
		"message_preview": preview(content, messagePreviewLength),
	})
	return msg, nil
}

// ListMessages returns the messages of a case, oldest first
func (s *CaseActivityService) ListMessages(ctx context.Context, caseID string) ([]models.CaseMessage, error) {
	var messages []models.CaseMessage
	err := s.DB.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

func (s *CaseActivityService) dispatch(ctx context.Context, eventType, caseID string, actor Contact, data map[string]string) {
	if s.Dispatcher == nil {
		return
	}
	var c models.Case
	err := s.DB.WithContext(ctx).
		Preload("Client.User").
		Preload("Lawyer.User").
		First(&c, "id = ?", caseID).Error
	if err != nil {
		s.log.Error().Err(err).Str("case_id", caseID).Msg("failed to reload case, notification skipped")
		return
	}
	s.Dispatcher.Dispatch(NotificationEvent{
		Type:        eventType,
		Case:        c,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		Data:        data,
	})
}

// preview shortens s to at most n runes, adding an ellipsis when cut
func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
