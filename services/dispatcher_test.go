package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"law_flow_notify/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingWriter refuses notifications for one user and keeps the rest
type failingWriter struct {
	mu      sync.Mutex
	failFor string
	created []models.Notification
}

func (w *failingWriter) CreateNotification(ctx context.Context, n *models.Notification) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n.UserID == w.failFor {
		return errors.New("disk full")
	}
	w.created = append(w.created, *n)
	return nil
}

type keyRenderer struct{}

func (keyRenderer) RenderKey(ctx context.Context, key string, vars map[string]string) (RenderedEmail, error) {
	if key == "broken" {
		return RenderedEmail{}, errors.New("bad template")
	}
	return RenderedEmail{Subject: key + " " + vars["case_number"], HTML: "<p>" + vars["recipient_name"] + "</p>"}, nil
}

// blockingRouter holds every Resolve until released
type blockingRouter struct {
	started  chan string
	release  chan struct{}
	resolved atomic.Int32
}

func newBlockingRouter() *blockingRouter {
	return &blockingRouter{started: make(chan string, 16), release: make(chan struct{})}
}

func (r *blockingRouter) Resolve(ctx context.Context, event NotificationEvent) ([]RecipientRoute, error) {
	r.started <- event.Case.ID
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r.resolved.Add(1)
	return nil, nil
}

type panicRouter struct {
	calls atomic.Int32
	done  chan struct{}
}

func (r *panicRouter) Resolve(ctx context.Context, event NotificationEvent) ([]RecipientRoute, error) {
	if r.calls.Add(1) == 1 {
		panic("router exploded")
	}
	close(r.done)
	return nil, nil
}

func eventFor(id string) NotificationEvent {
	return NotificationEvent{Type: models.EventStatusChanged, Case: models.Case{ID: id, CaseNumber: "2026-CIV-0001"}}
}

func TestDispatcherProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("One failing recipient does not stop the others", func(t *testing.T) {
		writer := &failingWriter{failFor: "u-client"}
		mailer := &recordingMailer{result: true}
		d := NewDispatcher(NewRecipientRouter(newFakeDirectory()), writer, mailer, keyRenderer{}, DispatcherConfig{}, newTestMetrics(), zerolog.Nop())

		result := d.Process(ctx, NotificationEvent{Type: models.EventCaseCreated, Case: caseWith("lawyer-1")})
		require.NoError(t, result.Err)
		assert.Equal(t, 4, result.Routes)
		assert.Equal(t, 1, result.InAppFailed)
		assert.Equal(t, 3, result.InAppCreated)
		assert.True(t, result.Delivered())

		// the client still gets the email even though the in-app write failed
		sent := mailer.Sent()
		require.Len(t, sent, 2)
		assert.Equal(t, "ana@example.com", sent[0].To)
		assert.Equal(t, "luis@example.com", sent[1].To)
		assert.Equal(t, 2, result.EmailsSent)
	})

	t.Run("Failed emails are counted", func(t *testing.T) {
		writer := &failingWriter{}
		mailer := &recordingMailer{result: false}
		d := NewDispatcher(NewRecipientRouter(newFakeDirectory()), writer, mailer, keyRenderer{}, DispatcherConfig{}, nil, zerolog.Nop())

		result := d.Process(ctx, NotificationEvent{Type: models.EventStatusChanged, Case: caseWith("")})
		assert.Equal(t, 1, result.InAppCreated)
		assert.Equal(t, 1, result.EmailsFailed)
		assert.Zero(t, result.EmailsSent)
	})

	t.Run("Router failure reports an error", func(t *testing.T) {
		directory := newFakeDirectory()
		directory.err = errors.New("database is locked")
		d := NewDispatcher(NewRecipientRouter(directory), &failingWriter{}, &recordingMailer{}, keyRenderer{}, DispatcherConfig{}, nil, zerolog.Nop())

		result := d.Process(ctx, NotificationEvent{Type: models.EventStatusChanged, Case: caseWith("")})
		assert.Error(t, result.Err)
		assert.False(t, result.Delivered())
	})

	t.Run("In-app notifications are written before emails", func(t *testing.T) {
		var order []string
		writer := writerFunc(func(n *models.Notification) { order = append(order, "in_app:"+n.UserID) })
		mailer := mailerFunc(func(e OutboundEmail) { order = append(order, "email:"+e.To) })
		d := NewDispatcher(NewRecipientRouter(newFakeDirectory()), writer, mailer, keyRenderer{}, DispatcherConfig{}, nil, zerolog.Nop())

		d.Process(ctx, NotificationEvent{Type: models.EventLawyerAssigned, Case: caseWith("lawyer-1")})
		assert.Equal(t, []string{"in_app:u-client", "in_app:u-lawyer", "email:ana@example.com", "email:luis@example.com"}, order)
	})
}

type writerFunc func(n *models.Notification)

func (f writerFunc) CreateNotification(ctx context.Context, n *models.Notification) error {
	f(n)
	return nil
}

type mailerFunc func(e OutboundEmail)

func (f mailerFunc) Send(ctx context.Context, e OutboundEmail) bool {
	f(e)
	return true
}

func TestDispatcherQueue(t *testing.T) {
	t.Run("Drops when the queue is full", func(t *testing.T) {
		router := newBlockingRouter()
		d := NewDispatcher(router, &failingWriter{}, &recordingMailer{}, keyRenderer{}, DispatcherConfig{Workers: 1, QueueSize: 1}, newTestMetrics(), zerolog.Nop())
		d.Start()

		require.True(t, d.Dispatch(eventFor("a")))
		assert.Equal(t, "a", <-router.started)
		require.True(t, d.Dispatch(eventFor("b")))
		assert.False(t, d.Dispatch(eventFor("c")))

		close(router.release)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, d.Close(ctx))
		assert.Equal(t, int32(2), router.resolved.Load())
	})

	t.Run("Rejects events after close", func(t *testing.T) {
		d := NewDispatcher(newBlockingRouter(), &failingWriter{}, &recordingMailer{}, keyRenderer{}, DispatcherConfig{}, nil, zerolog.Nop())
		d.Start()
		require.NoError(t, d.Close(context.Background()))
		assert.False(t, d.Dispatch(eventFor("late")))
		require.NoError(t, d.Close(context.Background()))
	})

	t.Run("Close gives up when the context ends", func(t *testing.T) {
		router := newBlockingRouter()
		d := NewDispatcher(router, &failingWriter{}, &recordingMailer{}, keyRenderer{}, DispatcherConfig{Workers: 1}, nil, zerolog.Nop())
		d.Start()
		require.True(t, d.Dispatch(eventFor("stuck")))
		<-router.started

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.Error(t, d.Close(ctx))
	})

	t.Run("A panicking event does not kill the worker", func(t *testing.T) {
		router := &panicRouter{done: make(chan struct{})}
		d := NewDispatcher(router, &failingWriter{}, &recordingMailer{}, keyRenderer{}, DispatcherConfig{Workers: 1}, nil, zerolog.Nop())
		d.Start()
		defer d.Close(context.Background())

		require.True(t, d.Dispatch(eventFor("first")))
		require.True(t, d.Dispatch(eventFor("second")))

		select {
		case <-router.done:
		case <-time.After(5 * time.Second):
			t.Fatal("second event was never processed")
		}
		assert.Equal(t, int32(2), router.calls.Load())
	})
}

func TestDispatcherTemplateVars(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil, DispatcherConfig{FrontendURL: "https://app.example.com/"}, nil, zerolog.Nop())
	lawyerID := "lawyer-1"
	c := models.Case{
		ID:         "case-1",
		CaseNumber: "2026-CIV-0001",
		Title:      "Lease dispute",
		Status:     models.CaseStatusPendingClient,
		Priority:   models.CasePriorityHigh,
		Client:     &models.Client{User: models.User{ID: "u-client", Name: "Ana"}},
		LawyerID:   &lawyerID,
		Lawyer:     &models.Lawyer{User: models.User{ID: "u-lawyer", Name: "Luis", Email: "luis@example.com"}},
	}

	vars := d.TemplateVars(
		NotificationEvent{Case: c, Data: map[string]string{"old_status": "New", "priority": "overridden"}},
		RecipientRoute{Name: "Ana", Email: "ana@example.com"},
	)
	assert.Equal(t, "https://app.example.com/cases/case-1", vars["case_url"])
	assert.Equal(t, "https://app.example.com/dashboard", vars["dashboard_url"])
	assert.Equal(t, "Waiting on client", vars["status"])
	assert.Equal(t, "Ana", vars["client_name"])
	assert.Equal(t, "Luis", vars["lawyer_name"])
	assert.Equal(t, "luis@example.com", vars["lawyer_email"])
	assert.Equal(t, "New", vars["old_status"])
	assert.Equal(t, "overridden", vars["priority"])
}
