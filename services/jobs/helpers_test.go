package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"law_flow_notify/db"
	"law_flow_notify/metrics"
	"law_flow_notify/models"
	"law_flow_notify/services"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(models.All()...))
	return database
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func createUser(t *testing.T, database *gorm.DB, name, role string) models.User {
	t.Helper()
	user := models.User{
		Name:     name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, database.Create(&user).Error)
	return user
}

func createClient(t *testing.T, database *gorm.DB, name string) models.Client {
	t.Helper()
	user := createUser(t, database, name, models.RoleClient)
	client := models.Client{UserID: user.ID, User: user}
	require.NoError(t, database.Omit("User").Create(&client).Error)
	return client
}

func createLawyer(t *testing.T, database *gorm.DB, name string) models.Lawyer {
	t.Helper()
	user := createUser(t, database, name, models.RoleLawyer)
	lawyer := models.Lawyer{UserID: user.ID, User: user, IsAvailable: true}
	require.NoError(t, database.Omit("User").Create(&lawyer).Error)
	return lawyer
}

// caseSpec describes a case relative to a reference time
type caseSpec struct {
	status       string
	createdAgo   time.Duration
	lastActivity time.Duration
	closedAgo    time.Duration
}

func createCase(t *testing.T, database *gorm.DB, client models.Client, lawyer *models.Lawyer, now time.Time, spec caseSpec) models.Case {
	t.Helper()
	if spec.status == "" {
		spec.status = models.CaseStatusInProgress
	}
	c := models.Case{
		CreatedAt:      now.Add(-spec.createdAgo),
		CaseNumber:     fmt.Sprintf("2026-TST-%s", uuid.NewString()[:8]),
		CaseType:       "test",
		Title:          "Case " + spec.status,
		ClientID:       client.ID,
		Status:         spec.status,
		Priority:       models.CasePriorityMedium,
		LastActivityAt: now.Add(-spec.lastActivity),
	}
	if spec.closedAgo > 0 {
		closed := now.Add(-spec.closedAgo)
		c.ClosedAt = &closed
	}
	if lawyer != nil {
		c.LawyerID = &lawyer.ID
	}
	require.NoError(t, database.Create(&c).Error)
	return c
}

// fakePipeline answers Process with a per-case outcome
type fakePipeline struct {
	mu      sync.Mutex
	events  []services.NotificationEvent
	outcome func(c models.Case) services.ProcessResult
}

func (p *fakePipeline) Process(ctx context.Context, event services.NotificationEvent) services.ProcessResult {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	if p.outcome != nil {
		return p.outcome(event.Case)
	}
	return services.ProcessResult{Routes: 1, InAppCreated: 1, EmailsSent: 1}
}

func (p *fakePipeline) Events() []services.NotificationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]services.NotificationEvent, len(p.events))
	copy(out, p.events)
	return out
}

type recordingMailer struct {
	mu     sync.Mutex
	result bool
	sent   []services.OutboundEmail
}

func (m *recordingMailer) Send(ctx context.Context, email services.OutboundEmail) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return m.result
}

func (m *recordingMailer) Sent() []services.OutboundEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]services.OutboundEmail, len(m.sent))
	copy(out, m.sent)
	return out
}
