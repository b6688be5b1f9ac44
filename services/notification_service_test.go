package services

import (
	"context"
	"testing"

	"law_flow_notify/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationService(t *testing.T) {
	database := setupTestDB(t)
	svc := NewNotificationService(database)
	ctx := context.Background()

	userID := "user-1"
	otherID := "user-2"
	caseA := "case-a"
	caseB := "case-b"

	create := func(t *testing.T, user string, caseID *string, title string) models.Notification {
		t.Helper()
		n := models.Notification{UserID: user, CaseID: caseID, Type: models.NotificationTypeStatusChanged, Title: title}
		require.NoError(t, svc.CreateNotification(ctx, &n))
		return n
	}

	t.Run("Create and list unread", func(t *testing.T) {
		create(t, userID, &caseA, "First")
		create(t, userID, &caseB, "Second")
		create(t, otherID, &caseA, "Not yours")

		notifications, err := svc.ListForUser(ctx, userID, true, 0)
		require.NoError(t, err)
		assert.Len(t, notifications, 2)

		count, err := svc.UnreadCount(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("Mark as read is owner only", func(t *testing.T) {
		var n models.Notification
		require.NoError(t, database.Where("user_id = ? AND title = ?", userID, "First").First(&n).Error)

		assert.ErrorIs(t, svc.MarkAsRead(ctx, n.ID, otherID), ErrNotFound)
		require.NoError(t, svc.MarkAsRead(ctx, n.ID, userID))

		require.NoError(t, database.First(&n, "id = ?", n.ID).Error)
		assert.True(t, n.IsRead)
		assert.NotNil(t, n.ReadAt)

		count, err := svc.UnreadCount(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Case scoped", func(t *testing.T) {
		create(t, userID, &caseA, "Third")

		count, err := svc.UnreadCountForCase(ctx, caseA, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		list, err := svc.ListForCase(ctx, caseA, userID)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		marked, err := svc.MarkCaseAsRead(ctx, caseA, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), marked)

		count, err = svc.UnreadCountForCase(ctx, caseB, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Mark all as read", func(t *testing.T) {
		marked, err := svc.MarkAllAsRead(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), marked)

		count, err := svc.UnreadCount(ctx, userID)
		require.NoError(t, err)
		assert.Zero(t, count)

		// other users are untouched
		count, err = svc.UnreadCount(ctx, otherID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Delete", func(t *testing.T) {
		n := create(t, userID, nil, "Disposable")
		assert.ErrorIs(t, svc.Delete(ctx, n.ID, otherID), ErrNotFound)
		require.NoError(t, svc.Delete(ctx, n.ID, userID))
		assert.ErrorIs(t, svc.Delete(ctx, n.ID, userID), ErrNotFound)

		all, err := svc.ListForUser(ctx, userID, false, 10)
		require.NoError(t, err)
		for _, got := range all {
			assert.NotEqual(t, n.ID, got.ID)
		}
	})
}
