package jobs

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"law_flow_notify/metrics"
	"law_flow_notify/models"
	"law_flow_notify/services"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Pipeline processes one notification event synchronously
type Pipeline interface {
	Process(ctx context.Context, event services.NotificationEvent) services.ProcessResult
}

// ScanResult is the outcome of one inactivity scan
type ScanResult struct {
	Checked  int `json:"checked"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}

// InactivityScanner nudges clients of open cases that have been quiet for
// longer than ThresholdDays, at most once per ThrottleDays.
type InactivityScanner struct {
	DB            *gorm.DB
	Events        *services.EventLog
	Pipeline      Pipeline
	ThresholdDays int
	ThrottleDays  int
	Now           func() time.Time
	Metrics       *metrics.Metrics
	Log           zerolog.Logger
}

func NewInactivityScanner(db *gorm.DB, events *services.EventLog, pipeline Pipeline, thresholdDays, throttleDays int, m *metrics.Metrics, log zerolog.Logger) *InactivityScanner {
	return &InactivityScanner{
		DB:            db,
		Events:        events,
		Pipeline:      pipeline,
		ThresholdDays: thresholdDays,
		ThrottleDays:  throttleDays,
		Now:           func() time.Time { return time.Now().UTC() },
		Metrics:       m,
		Log:           log,
	}
}

// FindInactive returns the cases the scan would pick at now
func (s *InactivityScanner) FindInactive(ctx context.Context, now time.Time) ([]models.Case, error) {
	activityCutoff := now.Add(-days(s.ThresholdDays))
	throttleCutoff := now.Add(-days(s.ThrottleDays))

	var cases []models.Case
	err := s.DB.WithContext(ctx).
		Preload("Client.User").
		Preload("Lawyer.User").
		Where("status NOT IN ?", models.InactivityExemptStatuses).
		Where("last_activity_at < ?", activityCutoff).
		Where("last_inactivity_notification IS NULL OR last_inactivity_notification < ?", throttleCutoff).
		Order("last_activity_at ASC").
		Find(&cases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query inactive cases: %w", err)
	}
	return cases, nil
}

// Run scans once. Each case is handled on its own; a failing case is counted
// and the scan moves on.
func (s *InactivityScanner) Run(ctx context.Context) (ScanResult, error) {
	now := s.Now().UTC()
	log := s.Log.With().Str("job", JobInactivityScan).Logger()

	cases, err := s.FindInactive(ctx, now)
	if err != nil {
		return ScanResult{}, err
	}
	log.Info().Int("cases", len(cases)).Msg("inactivity scan started")

	var result ScanResult
	for _, c := range cases {
		result.Checked++
		notified, err := s.processCase(ctx, c, now)
		switch {
		case err != nil:
			result.Failed++
			s.countItem("failed")
			log.Error().Err(err).Str("case_id", c.ID).Str("case_number", c.CaseNumber).Msg("inactivity reminder failed")
		case notified:
			result.Notified++
			s.countItem("notified")
		}
	}

	log.Info().
		Int("checked", result.Checked).
		Int("notified", result.Notified).
		Int("failed", result.Failed).
		Msg("inactivity scan completed")
	return result, nil
}

func (s *InactivityScanner) processCase(ctx context.Context, c models.Case, now time.Time) (notified bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing case: %v", r)
		}
	}()

	daysInactive := int(now.Sub(c.LastActivityAt).Hours() / 24)
	res := s.Pipeline.Process(ctx, services.NotificationEvent{
		Type: models.EventInactivityDetected,
		Case: c,
		Data: map[string]string{"days_inactive": strconv.Itoa(daysInactive)},
	})
	if res.Err != nil {
		return false, res.Err
	}
	if res.Routes > 0 && !res.Delivered() {
		// nothing reached anyone; leave the case unstamped so the next run retries
		return false, fmt.Errorf("no notification delivered to %d recipient(s)", res.Routes)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Case{}).Where("id = ?", c.ID).
			Update("last_inactivity_notification", now).Error; err != nil {
			return fmt.Errorf("failed to stamp inactivity notification: %w", err)
		}
		_, err := s.Events.Append(tx, services.EventInput{
			CaseID:      c.ID,
			EventType:   models.EventDeadlineReminder,
			Description: fmt.Sprintf("Inactivity reminder sent after %d days without activity", daysInactive),
			Metadata:    map[string]interface{}{"days_inactive": daysInactive},
			At:          now,
		})
		return err
	})
	if err != nil {
		return false, err
	}
	return res.Delivered(), nil
}

func (s *InactivityScanner) countItem(result string) {
	if s.Metrics != nil {
		s.Metrics.JobItems.WithLabelValues(JobInactivityScan, result).Inc()
	}
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
