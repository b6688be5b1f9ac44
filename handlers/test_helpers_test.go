package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"law_flow_notify/db"
	"law_flow_notify/metrics"
	"law_flow_notify/middleware"
	"law_flow_notify/models"
	"law_flow_notify/services"
	"law_flow_notify/services/jobs"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingDispatcher keeps dispatched events instead of processing them
type recordingDispatcher struct {
	mu     sync.Mutex
	events []services.NotificationEvent
}

func (d *recordingDispatcher) Dispatch(event services.NotificationEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return true
}

func (d *recordingDispatcher) Events() []services.NotificationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]services.NotificationEvent, len(d.events))
	copy(out, d.events)
	return out
}

type noopMailer struct{}

func (noopMailer) Send(ctx context.Context, email services.OutboundEmail) bool {
	return true
}

type testServer struct {
	db         *gorm.DB
	echo       *echo.Echo
	api        *API
	dispatcher *recordingDispatcher
	registry   *prometheus.Registry
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(models.All()...))

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	log := zerolog.Nop()

	directory := services.NewUserDirectory(database)
	dispatcher := &recordingDispatcher{}
	events := services.NewEventLog(database)
	templates := services.NewTemplateStore(database)
	pipeline := services.NewDispatcher(services.NewRecipientRouter(directory), services.NewNotificationService(database),
		noopMailer{}, templates, services.DispatcherConfig{}, m, log)

	api := &API{
		DB:            database,
		Cases:         services.NewCaseService(database, events, directory, dispatcher, log),
		Activity:      services.NewCaseActivityService(database, events, directory, dispatcher, log),
		Notifications: services.NewNotificationService(database),
		Templates:     templates,
		Scheduler:     jobs.NewScheduler(time.UTC, jobs.NewJobGuard(), m, log),
		Scanner:       jobs.NewInactivityScanner(database, events, pipeline, 21, 7, m, log),
		Digest:        jobs.NewDigestBuilder(database, templates, noopMailer{}, "https://app.example.com", m, log),
	}

	e := echo.New()
	api.Register(e, nil, registry)
	return &testServer{db: database, echo: e, api: api, dispatcher: dispatcher, registry: registry}
}

// do sends a request as userID; an empty userID sends no identity
func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			reader = strings.NewReader(raw)
		} else {
			payload, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(payload)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func (s *testServer) createUser(t *testing.T, name, role string) models.User {
	t.Helper()
	user := models.User{
		Name:     name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, s.db.Create(&user).Error)
	return user
}

func (s *testServer) createClient(t *testing.T, name string) models.Client {
	t.Helper()
	user := s.createUser(t, name, models.RoleClient)
	client := models.Client{UserID: user.ID, User: user}
	require.NoError(t, s.db.Omit("User").Create(&client).Error)
	return client
}

func (s *testServer) createLawyer(t *testing.T, name string) models.Lawyer {
	t.Helper()
	user := s.createUser(t, name, models.RoleLawyer)
	lawyer := models.Lawyer{UserID: user.ID, User: user, IsAvailable: true}
	require.NoError(t, s.db.Omit("User").Create(&lawyer).Error)
	return lawyer
}

func (s *testServer) createCase(t *testing.T, client models.Client, lawyer *models.Lawyer) models.Case {
	t.Helper()
	c := models.Case{
		CaseNumber:     "2026-TST-" + client.ID[:8],
		CaseType:       "test",
		Title:          "Test case",
		ClientID:       client.ID,
		Status:         models.CaseStatusNew,
		Priority:       models.CasePriorityMedium,
		LastActivityAt: time.Now().UTC(),
	}
	if lawyer != nil {
		c.LawyerID = &lawyer.ID
	}
	require.NoError(t, s.db.Create(&c).Error)
	return c
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}
