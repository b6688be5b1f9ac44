package services

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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
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

func emailFor(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com"
}

func createUser(t *testing.T, database *gorm.DB, name, role string) models.User {
	t.Helper()
	user := models.User{Name: name, Email: emailFor(name), Role: role, IsActive: true}
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

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

// recordingDispatcher keeps every dispatched event
type recordingDispatcher struct {
	mu     sync.Mutex
	events []NotificationEvent
}

func (d *recordingDispatcher) Dispatch(event NotificationEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return true
}

func (d *recordingDispatcher) Events() []NotificationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]NotificationEvent, len(d.events))
	copy(out, d.events)
	return out
}

// syncDispatcher runs the full pipeline inline so tests can assert on its effects
type syncDispatcher struct {
	pipeline *Dispatcher
	results  []ProcessResult
}

func (d *syncDispatcher) Dispatch(event NotificationEvent) bool {
	d.results = append(d.results, d.pipeline.Process(context.Background(), event))
	return true
}

// countingRouter counts Resolve calls per event type
type countingRouter struct {
	next  Router
	mu    sync.Mutex
	calls map[string]int
}

func newCountingRouter(next Router) *countingRouter {
	return &countingRouter{next: next, calls: make(map[string]int)}
}

func (r *countingRouter) Resolve(ctx context.Context, event NotificationEvent) ([]RecipientRoute, error) {
	r.mu.Lock()
	r.calls[event.Type]++
	r.mu.Unlock()
	return r.next.Resolve(ctx, event)
}

func (r *countingRouter) Calls(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[eventType]
}

// recordingMailer records emails and reports a fixed outcome
type recordingMailer struct {
	mu     sync.Mutex
	result bool
	sent   []OutboundEmail
}

func (m *recordingMailer) Send(ctx context.Context, email OutboundEmail) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return m.result
}

func (m *recordingMailer) Sent() []OutboundEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundEmail, len(m.sent))
	copy(out, m.sent)
	return out
}

type sentMail struct {
	To      string
	Subject string
	HTML    string
}

// fakeTransport returns errs[i] for the i-th call, then nil
type fakeTransport struct {
	mu    sync.Mutex
	errs  []error
	calls []sentMail
}

func (f *fakeTransport) Name() string {
	return "fake"
}

func (f *fakeTransport) Send(ctx context.Context, to, subject, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.calls)
	f.calls = append(f.calls, sentMail{To: to, Subject: subject, HTML: html})
	if i < len(f.errs) {
		return f.errs[i]
	}
	return nil
}

func (f *fakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// pipelineFixture wires the real pipeline over an in-memory database
type pipelineFixture struct {
	db            *gorm.DB
	directory     *GormUserDirectory
	router        *countingRouter
	notifications *NotificationService
	mailer        *recordingMailer
	dispatcher    *Dispatcher
	sync          *syncDispatcher
	events        *EventLog
	cases         *CaseService
	activity      *CaseActivityService
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	database := setupTestDB(t)
	f := &pipelineFixture{db: database}
	f.directory = NewUserDirectory(database)
	f.router = newCountingRouter(NewRecipientRouter(f.directory))
	f.notifications = NewNotificationService(database)
	f.mailer = &recordingMailer{result: true}
	f.dispatcher = NewDispatcher(f.router, f.notifications, f.mailer, NewTemplateStore(database),
		DispatcherConfig{Workers: 1, QueueSize: 8, FrontendURL: "https://app.example.com"}, newTestMetrics(), zerolog.Nop())
	f.sync = &syncDispatcher{pipeline: f.dispatcher}
	f.events = NewEventLog(database)
	f.cases = NewCaseService(database, f.events, f.directory, f.sync, zerolog.Nop())
	f.activity = NewCaseActivityService(database, f.events, f.directory, f.sync, zerolog.Nop())
	return f
}

func (f *pipelineFixture) notificationsFor(t *testing.T, userID string) []models.Notification {
	t.Helper()
	var out []models.Notification
	require.NoError(t, f.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&out).Error)
	return out
}

func (f *pipelineFixture) emailsTo(address string) []OutboundEmail {
	var out []OutboundEmail
	for _, e := range f.mailer.Sent() {
		if e.To == address {
			out = append(out, e)
		}
	}
	return out
}

func createCase(t *testing.T, database *gorm.DB, client models.Client, lawyer *models.Lawyer, lastActivity time.Time) models.Case {
	t.Helper()
	c := models.Case{
		CaseNumber:     fmt.Sprintf("2026-TST-%s", uuid.NewString()[:8]),
		CaseType:       "test",
		Title:          "Test case",
		ClientID:       client.ID,
		Status:         models.CaseStatusNew,
		Priority:       models.CasePriorityMedium,
		LastActivityAt: lastActivity.UTC(),
	}
	if lawyer != nil {
		c.LawyerID = &lawyer.ID
	}
	require.NoError(t, database.Create(&c).Error)
	return c
}
