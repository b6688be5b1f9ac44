package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"law_flow_notify/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDocumentUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("Client upload notifies the lawyer in-app", func(t *testing.T) {
		f := newPipelineFixture(t)
		ana := createClient(t, f.db, "Ana")
		lawyer := createLawyer(t, f.db, "Luis Lawyer")
		c := createCase(t, f.db, ana, &lawyer, time.Now().UTC().Add(-time.Hour))

		doc, err := f.activity.RecordDocumentUpload(ctx, c.ID, ana.UserID, "contract.pdf", "cases/contract.pdf")
		require.NoError(t, err)
		assert.Equal(t, models.RoleClient, doc.UploaderRole)

		events, err := f.events.Timeline(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, models.EventDocumentUploaded, events[0].EventType)
		assert.Equal(t, doc.ID, events[0].Metadata["document_id"])
		assert.Equal(t, "contract.pdf", events[0].Metadata["file_name"])

		notes := f.notificationsFor(t, lawyer.UserID)
		require.Len(t, notes, 1)
		assert.Equal(t, models.NotificationTypeDocumentUploaded, notes[0].Type)
		assert.Contains(t, notes[0].Message, "contract.pdf")
		assert.Empty(t, f.notificationsFor(t, ana.UserID))
		// document uploads are in-app only
		assert.Empty(t, f.mailer.Sent())
	})

	t.Run("Client upload without lawyer notifies nobody", func(t *testing.T) {
		f := newPipelineFixture(t)
		ana := createClient(t, f.db, "Ana")
		c := createCase(t, f.db, ana, nil, time.Now().UTC())

		_, err := f.activity.RecordDocumentUpload(ctx, c.ID, ana.UserID, "id.png", "")
		require.NoError(t, err)

		var count int64
		require.NoError(t, f.db.Model(&models.Notification{}).Count(&count).Error)
		assert.Zero(t, count)
		require.Len(t, f.sync.results, 1)
		assert.Zero(t, f.sync.results[0].Routes)
	})

	t.Run("Lawyer upload notifies the client", func(t *testing.T) {
		f := newPipelineFixture(t)
		ana := createClient(t, f.db, "Ana")
		lawyer := createLawyer(t, f.db, "Luis Lawyer")
		c := createCase(t, f.db, ana, &lawyer, time.Now().UTC())

		_, err := f.activity.RecordDocumentUpload(ctx, c.ID, lawyer.UserID, "ruling.pdf", "")
		require.NoError(t, err)
		assert.Len(t, f.notificationsFor(t, ana.UserID), 1)
		assert.Empty(t, f.notificationsFor(t, lawyer.UserID))
	})

	t.Run("Rejected input leaves no trace", func(t *testing.T) {
		f := newPipelineFixture(t)
		ana := createClient(t, f.db, "Ana")
		c := createCase(t, f.db, ana, nil, time.Now().UTC())

		_, err := f.activity.RecordDocumentUpload(ctx, c.ID, ana.UserID, "  ", "")
		assert.ErrorIs(t, err, ErrValidation)
		_, err = f.activity.RecordDocumentUpload(ctx, "missing", ana.UserID, "a.pdf", "")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = f.activity.RecordDocumentUpload(ctx, c.ID, "nobody", "a.pdf", "")
		assert.ErrorIs(t, err, ErrNotFound)

		var docs int64
		require.NoError(t, f.db.Model(&models.CaseDocument{}).Count(&docs).Error)
		assert.Zero(t, docs)
		assert.Empty(t, f.sync.results)
	})
}

func TestPostMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("Client message reaches the lawyer", func(t *testing.T) {
		f := newPipelineFixture(t)
		ana := createClient(t, f.db, "Ana")
		lawyer := createLawyer(t, f.db, "Luis Lawyer")
		c := createCase(t, f.db, ana, &lawyer, time.Now().UTC().Add(-time.Hour))

		msg, err := f.activity.PostMessage(ctx, c.ID, ana.UserID, "Any news on the hearing?")
		require.NoError(t, err)

		events, err := f.events.Timeline(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, msg.ID, events[0].Metadata["message_id"])
		assert.Equal(t, models.RoleClient, events[0].Metadata["sender_role"])

		assert.Len(t, f.notificationsFor(t, lawyer.UserID), 1)
		emails := f.emailsTo(lawyer.User.Email)
		require.Len(t, emails, 1)
		assert.Contains(t, emails[0].HTML, "Any news on the hearing?")
		assert.Empty(t, f.emailsTo(ana.User.Email))

		var reloaded models.Case
		require.NoError(t, f.db.First(&reloaded, "id = ?", c.ID).Error)
		assert.True(t, reloaded.LastActivityAt.After(c.LastActivityAt))
	})

	t.Run("Lawyer message reaches the client", func(t *testing.T) {
		f := newPipelineFixture(t)
		ana := createClient(t, f.db, "Ana")
		lawyer := createLawyer(t, f.db, "Luis Lawyer")
		c := createCase(t, f.db, ana, &lawyer, time.Now().UTC())

		_, err := f.activity.PostMessage(ctx, c.ID, lawyer.UserID, "Hearing moved to Monday.")
		require.NoError(t, err)
		assert.Len(t, f.notificationsFor(t, ana.UserID), 1)
		assert.Empty(t, f.notificationsFor(t, lawyer.UserID))
	})

	t.Run("Preview is shortened", func(t *testing.T) {
		f := newPipelineFixture(t)
		ana := createClient(t, f.db, "Ana")
		lawyer := createLawyer(t, f.db, "Luis Lawyer")
		c := createCase(t, f.db, ana, &lawyer, time.Now().UTC())

		long := strings.Repeat("á", 500)
		_, err := f.activity.PostMessage(ctx, c.ID, lawyer.UserID, long)
		require.NoError(t, err)

		emails := f.emailsTo(ana.User.Email)
		require.Len(t, emails, 1)
		assert.Contains(t, emails[0].HTML, strings.Repeat("á", 200)+"…")
		assert.NotContains(t, emails[0].HTML, strings.Repeat("á", 201))

		messages, err := f.activity.ListMessages(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, long, messages[0].Content)
	})

	t.Run("Empty message", func(t *testing.T) {
		f := newPipelineFixture(t)
		ana := createClient(t, f.db, "Ana")
		c := createCase(t, f.db, ana, nil, time.Now().UTC())

		_, err := f.activity.PostMessage(ctx, c.ID, ana.UserID, " \n ")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("  short  ", 10))
	assert.Equal(t, "abc…", preview("abcdef", 3))
}
