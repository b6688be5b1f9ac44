package services

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"law_flow_notify/metrics"
	"law_flow_notify/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// RetryPolicy bounds email retries. Retry k (starting at 0) waits
// min(MaxDelay, BaseDelay*2^k + jitter) with jitter drawn from [0, MaxJitter).
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxJitter  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		MaxJitter:  time.Second,
	}
}

// Delay returns the wait before retry k given an already drawn jitter
func (p RetryPolicy) Delay(k int, jitter time.Duration) time.Duration {
	if k < 0 {
		k = 0
	}
	// past 2^20 the cap always wins; avoids overflowing the shift
	if k > 20 {
		return p.MaxDelay
	}
	d := p.BaseDelay*time.Duration(1<<uint(k)) + jitter
	if d > p.MaxDelay || d < 0 {
		return p.MaxDelay
	}
	return d
}

// OutboundEmail is one rendered email addressed to one recipient
type OutboundEmail struct {
	To          string
	Subject     string
	HTML        string
	TemplateKey string
	CaseID      *string
}

// Mailer sends one email and reports whether it was delivered. It never
// returns an error: failures are logged and recorded.
type Mailer interface {
	Send(ctx context.Context, email OutboundEmail) bool
}

// EmailLogStore records the final outcome of a send
type EmailLogStore interface {
	RecordEmail(ctx context.Context, entry *models.EmailLog) error
}

// GormEmailLogStore writes to the email_logs table
type GormEmailLogStore struct {
	DB *gorm.DB
}

func (s *GormEmailLogStore) RecordEmail(ctx context.Context, entry *models.EmailLog) error {
	return s.DB.WithContext(ctx).Create(entry).Error
}

// DeliveryEngine sends emails through an injected transport with bounded
// exponential backoff.
type DeliveryEngine struct {
	transport MailTransport
	policy    RetryPolicy
	limiter   *rate.Limiter
	logs      EmailLogStore
	metrics   *metrics.Metrics
	log       zerolog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
	now    func() time.Time
}

type DeliveryOption func(*DeliveryEngine)

// WithRateLimiter throttles attempts to the provider's allowed rate
func WithRateLimiter(l *rate.Limiter) DeliveryOption {
	return func(e *DeliveryEngine) { e.limiter = l }
}

func WithEmailLog(store EmailLogStore) DeliveryOption {
	return func(e *DeliveryEngine) { e.logs = store }
}

func WithDeliveryMetrics(m *metrics.Metrics) DeliveryOption {
	return func(e *DeliveryEngine) { e.metrics = m }
}

func WithDeliveryLogger(l zerolog.Logger) DeliveryOption {
	return func(e *DeliveryEngine) { e.log = l }
}

// WithSleep replaces the backoff wait (tests record delays instead of sleeping)
func WithSleep(fn func(ctx context.Context, d time.Duration) error) DeliveryOption {
	return func(e *DeliveryEngine) { e.sleep = fn }
}

// WithJitter replaces the jitter source
func WithJitter(fn func(max time.Duration) time.Duration) DeliveryOption {
	return func(e *DeliveryEngine) { e.jitter = fn }
}

func NewDeliveryEngine(transport MailTransport, policy RetryPolicy, opts ...DeliveryOption) *DeliveryEngine {
	e := &DeliveryEngine{
		transport: transport,
		policy:    policy,
		log:       zerolog.Nop(),
		sleep:     sleepContext,
		jitter:    randomJitter,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Send delivers email, retrying retryable failures. At most MaxRetries+1
// attempts are made. A transport that is not configured is skipped without
// retrying; a permanent failure stops immediately.
func (e *DeliveryEngine) Send(ctx context.Context, email OutboundEmail) bool {
	start := e.now()
	log := e.log.With().Str("to", email.To).Str("template", email.TemplateKey).Logger()

	if strings.TrimSpace(email.To) == "" {
		log.Warn().Msg("email skipped: recipient has no address")
		e.finish(ctx, email, models.EmailStatusSkipped, 0, fmt.Errorf("recipient has no email address"), start)
		return false
	}

	var (
		attempts int
		lastErr  error
	)
	for attempt := 0; attempt <= e.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := e.policy.Delay(attempt-1, e.jitter(e.policy.MaxJitter))
			log.Debug().Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying email")
			if err := e.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}

		attempts++
		err := e.transport.Send(ctx, email.To, email.Subject, email.HTML)
		class := ClassifyError(err)
		e.countAttempt(class)

		switch class {
		case ClassNone:
			log.Info().Int("attempts", attempts).Str("transport", e.transport.Name()).Msg("email sent")
			e.finish(ctx, email, models.EmailStatusSent, attempts, nil, start)
			return true
		case ClassNotConfigured:
			log.Warn().Str("transport", e.transport.Name()).Msg("email skipped: provider not configured")
			e.finish(ctx, email, models.EmailStatusSkipped, attempts, err, start)
			return false
		case ClassPermanent:
			log.Error().Err(err).Int("attempts", attempts).Msg("email failed permanently")
			e.finish(ctx, email, models.EmailStatusFailed, attempts, err, start)
			return false
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempts).Msg("email attempt failed, will retry")
	}

	log.Error().Err(lastErr).Int("attempts", attempts).Msg("email failed after retries")
	e.finish(ctx, email, models.EmailStatusFailed, attempts, lastErr, start)
	return false
}

func (e *DeliveryEngine) countAttempt(class DeliveryErrorClass) {
	if e.metrics == nil {
		return
	}
	outcome := "sent"
	if class != ClassNone {
		outcome = class.String()
	}
	e.metrics.DeliveryAttempts.WithLabelValues(outcome).Inc()
}

func (e *DeliveryEngine) finish(ctx context.Context, email OutboundEmail, status string, attempts int, err error, start time.Time) {
	if e.metrics != nil {
		e.metrics.Deliveries.WithLabelValues(status).Inc()
		e.metrics.DeliveryLatency.Observe(e.now().Sub(start).Seconds())
	}
	if e.logs == nil {
		return
	}

	entry := &models.EmailLog{
		Recipient:   email.To,
		Subject:     email.Subject,
		Body:        email.HTML,
		TemplateKey: email.TemplateKey,
		CaseID:      email.CaseID,
		Status:      status,
		Attempts:    attempts,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	// the caller's context may already be done; the outcome is still worth keeping
	if recErr := e.logs.RecordEmail(context.WithoutCancel(ctx), entry); recErr != nil {
		e.log.Error().Err(recErr).Msg("failed to record email log")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
