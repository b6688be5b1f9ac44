package services

import (
	"context"
	"time"

	"law_flow_notify/models"

	"gorm.io/gorm"
)

const defaultNotificationLimit = 50

type NotificationService struct {
	DB *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{DB: db}
}

func (s *NotificationService) CreateNotification(ctx context.Context, notification *models.Notification) error {
	return s.DB.WithContext(ctx).Create(notification).Error
}

// ListForUser returns the newest notifications of a user
func (s *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultNotificationLimit
	}
	query := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").Limit(limit).Find(&notifications).Error
	return notifications, err
}

// ListForCase returns a user's notifications about one case
func (s *NotificationService) ListForCase(ctx context.Context, caseID, userID string) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.DB.WithContext(ctx).
		Where("case_id = ? AND user_id = ?", caseID, userID).
		Order("created_at DESC").
		Find(&notifications).Error
	return notifications, err
}

// MarkAsRead flips one notification. Only the owner can mark it.
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID, userID string) error {
	result := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFound("notification", notificationID)
	}
	return nil
}

// MarkCaseAsRead marks every unread notification of a user for a case
func (s *NotificationService) MarkCaseAsRead(ctx context.Context, caseID, userID string) (int64, error) {
	result := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("case_id = ? AND user_id = ? AND is_read = ?", caseID, userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now().UTC()})
	return result.RowsAffected, result.Error
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	result := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now().UTC()})
	return result.RowsAffected, result.Error
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (s *NotificationService) UnreadCountForCase(ctx context.Context, caseID, userID string) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("case_id = ? AND user_id = ? AND is_read = ?", caseID, userID, false).
		Count(&count).Error
	return count, err
}

// Delete soft-deletes a notification owned by userID
func (s *NotificationService) Delete(ctx context.Context, notificationID, userID string) error {
	result := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFound("notification", notificationID)
	}
	return nil
}
