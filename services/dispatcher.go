package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"law_flow_notify/metrics"
	"law_flow_notify/models"

	"github.com/rs/zerolog"
)

// EventDispatcher accepts committed case events for notification.
// Dispatch never blocks and reports whether the event was queued.
type EventDispatcher interface {
	Dispatch(event NotificationEvent) bool
}

// NotificationWriter persists in-app notifications
type NotificationWriter interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// EmailRenderer turns a template key and variables into a subject and body
type EmailRenderer interface {
	RenderKey(ctx context.Context, key string, vars map[string]string) (RenderedEmail, error)
}

// ProcessResult summarises what one event produced
type ProcessResult struct {
	Routes       int
	InAppCreated int
	InAppFailed  int
	EmailsSent   int
	EmailsFailed int
	Err          error
}

// Delivered reports whether at least one recipient was reached on any channel
func (r ProcessResult) Delivered() bool {
	return r.InAppCreated+r.EmailsSent > 0
}

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	FrontendURL string
}

// Dispatcher runs the notification pipeline on a fixed pool of workers fed
// by a bounded queue.
type Dispatcher struct {
	router        Router
	notifications NotificationWriter
	mailer        Mailer
	templates     EmailRenderer
	frontendURL   string
	metrics       *metrics.Metrics
	log           zerolog.Logger

	workers int
	queue   chan NotificationEvent
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewDispatcher builds the pipeline. Workers are not running until Start.
func NewDispatcher(router Router, notifications NotificationWriter, mailer Mailer, templates EmailRenderer, cfg DispatcherConfig, m *metrics.Metrics, log zerolog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		router:        router,
		notifications: notifications,
		mailer:        mailer,
		templates:     templates,
		frontendURL:   strings.TrimRight(cfg.FrontendURL, "/"),
		metrics:       m,
		log:           log,
		queue:         make(chan NotificationEvent, cfg.QueueSize),
		workers:       cfg.Workers,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start launches the workers
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.log.Info().Int("workers", d.workers).Int("queue_size", cap(d.queue)).Msg("notification dispatcher started")
}

// Dispatch enqueues event. A full or closed queue drops the event.
func (d *Dispatcher) Dispatch(event NotificationEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(event, "dispatcher closed")
		return false
	}
	select {
	case d.queue <- event:
		if d.metrics != nil {
			d.metrics.EventsDispatched.WithLabelValues(event.Type).Inc()
			d.metrics.DispatchQueue.Set(float64(len(d.queue)))
		}
		return true
	default:
		d.drop(event, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(event NotificationEvent, reason string) {
	d.log.Error().
		Str("event_type", event.Type).
		Str("case_id", event.Case.ID).
		Str("reason", reason).
		Msg("notification event dropped")
	if d.metrics != nil {
		d.metrics.EventsDropped.WithLabelValues(event.Type).Inc()
	}
}

// Close stops accepting events and waits for queued ones to finish.
// If ctx ends first the in-flight work is cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return fmt.Errorf("dispatcher drain interrupted: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for event := range d.queue {
		if d.metrics != nil {
			d.metrics.DispatchQueue.Set(float64(len(d.queue)))
		}
		d.safeProcess(event, id)
	}
}

func (d *Dispatcher) safeProcess(event NotificationEvent, worker int) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Interface("panic", r).
				Int("worker", worker).
				Str("event_type", event.Type).
				Msg("notification worker recovered from panic")
		}
	}()
	d.Process(d.ctx, event)
}

// Process runs the pipeline for one event synchronously: resolve the
// routes once, write every in-app notification, then send every email.
// One recipient's failure never stops the others.
func (d *Dispatcher) Process(ctx context.Context, event NotificationEvent) ProcessResult {
	log := d.log.With().Str("event_type", event.Type).Str("case_id", event.Case.ID).Logger()

	routes, err := d.router.Resolve(ctx, event)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve notification recipients")
		return ProcessResult{Err: err}
	}
	result := ProcessResult{Routes: len(routes)}
	if len(routes) == 0 {
		log.Debug().Msg("no recipients for event")
		return result
	}

	for _, route := range routes {
		if !route.Channels.Has(ChannelInApp) {
			continue
		}
		n := d.buildNotification(event, route)
		if err := d.notifications.CreateNotification(ctx, n); err != nil {
			result.InAppFailed++
			log.Error().Err(err).Str("user_id", route.UserID).Msg("failed to create notification")
			if d.metrics != nil {
				d.metrics.NotificationsFailed.Inc()
			}
			continue
		}
		result.InAppCreated++
		if d.metrics != nil {
			d.metrics.NotificationsCreated.WithLabelValues(n.Type).Inc()
		}
	}

	for _, route := range routes {
		if !route.Channels.Has(ChannelEmail) || route.TemplateKey == "" {
			continue
		}
		if d.sendEmail(ctx, event, route) {
			result.EmailsSent++
		} else {
			result.EmailsFailed++
		}
	}

	log.Debug().
		Int("routes", result.Routes).
		Int("in_app", result.InAppCreated).
		Int("emails", result.EmailsSent).
		Msg("event processed")
	return result
}

func (d *Dispatcher) sendEmail(ctx context.Context, event NotificationEvent, route RecipientRoute) bool {
	rendered, err := d.templates.RenderKey(ctx, route.TemplateKey, d.TemplateVars(event, route))
	if err != nil {
		d.log.Error().Err(err).Str("template", route.TemplateKey).Msg("failed to render email")
		return false
	}
	caseID := event.Case.ID
	return d.mailer.Send(ctx, OutboundEmail{
		To:          route.Email,
		Subject:     rendered.Subject,
		HTML:        rendered.HTML,
		TemplateKey: route.TemplateKey,
		CaseID:      &caseID,
	})
}

// TemplateVars builds the variables available to every email template,
// overlaid with the event's own data.
func (d *Dispatcher) TemplateVars(event NotificationEvent, route RecipientRoute) map[string]string {
	c := event.Case
	vars := map[string]string{
		"recipient_name":  route.Name,
		"recipient_email": route.Email,
		"case_id":         c.ID,
		"case_number":     c.CaseNumber,
		"case_title":      c.Title,
		"case_type":       c.CaseType,
		"status":          models.CaseStatusLabel(c.Status),
		"priority":        c.Priority,
		"case_url":        d.frontendURL + "/cases/" + c.ID,
		"dashboard_url":   d.frontendURL + "/dashboard",
	}
	if c.Client != nil && c.Client.User.ID != "" {
		vars["client_name"] = c.Client.User.Name
	}
	if c.Lawyer != nil && c.Lawyer.User.ID != "" {
		vars["lawyer_name"] = c.Lawyer.User.Name
		vars["lawyer_email"] = c.Lawyer.User.Email
	}
	for k, v := range event.Data {
		vars[k] = v
	}
	return vars
}

func (d *Dispatcher) buildNotification(event NotificationEvent, route RecipientRoute) *models.Notification {
	title, message := notificationText(event, route)
	caseID := event.Case.ID
	return &models.Notification{
		UserID:  route.UserID,
		CaseID:  &caseID,
		Type:    route.NotificationType,
		Title:   title,
		Message: message,
	}
}

func notificationText(event NotificationEvent, route RecipientRoute) (string, string) {
	c := event.Case
	data := event.Data
	switch route.NotificationType {
	case models.NotificationTypeCaseCreated:
		if route.Role == models.RoleAdmin {
			return "New case created", fmt.Sprintf("Case %s (%s) was opened.", c.CaseNumber, c.Title)
		}
		return "Case opened", fmt.Sprintf("Your case %s (%s) has been registered.", c.CaseNumber, c.Title)
	case models.NotificationTypeNewCaseAssigned:
		return "New case assigned", fmt.Sprintf("Case %s (%s) has been assigned to you.", c.CaseNumber, c.Title)
	case models.NotificationTypeStatusChanged:
		return "Case status updated", fmt.Sprintf("Case %s is now %s.", c.CaseNumber, models.CaseStatusLabel(c.Status))
	case models.NotificationTypeLawyerAssigned:
		name := data["lawyer_name"]
		if name == "" && c.Lawyer != nil {
			name = c.Lawyer.User.Name
		}
		if name == "" {
			name = "A lawyer"
		}
		return "Lawyer assigned", fmt.Sprintf("%s is now handling case %s.", name, c.CaseNumber)
	case models.NotificationTypeDocumentUploaded:
		return "New document", fmt.Sprintf("%s uploaded %s to case %s.", fallback(data["uploader_name"], "Someone"), data["file_name"], c.CaseNumber)
	case models.NotificationTypeMessageReceived:
		return "New message", fmt.Sprintf("%s sent a message on case %s.", fallback(data["sender_name"], "Someone"), c.CaseNumber)
	case models.NotificationTypeInactivityReminder:
		return "Case inactive", fmt.Sprintf("There has been no activity on case %s for %s days.", c.CaseNumber, fallback(data["days_inactive"], "several"))
	}
	return "Case update", fmt.Sprintf("Case %s was updated.", c.CaseNumber)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
