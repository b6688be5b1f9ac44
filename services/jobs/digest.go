package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"law_flow_notify/metrics"
	"law_flow_notify/models"
	"law_flow_notify/services"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const (
	digestAttentionLimit = 10
	digestActiveLimit    = 15
	digestStaleDays      = 7
)

// DigestCase is one line of a digest list
type DigestCase struct {
	ID             string    `json:"id"`
	CaseNumber     string    `json:"case_number"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	Priority       string    `json:"priority"`
	ClientName     string    `json:"client_name"`
	LastActivityAt time.Time `json:"last_activity_at"`
	DaysInactive   int       `json:"days_inactive"`
}

// DigestPayload is the weekly summary of one lawyer's caseload
type DigestPayload struct {
	LawyerID    string    `json:"lawyer_id"`
	LawyerName  string    `json:"lawyer_name"`
	LawyerEmail string    `json:"lawyer_email"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	TotalCases      int `json:"total_cases"`
	ActiveCases     int `json:"active_cases"`
	CreatedThisWeek int `json:"created_this_week"`
	ClosedThisWeek  int `json:"closed_this_week"`
	StaleCases      int `json:"stale_cases"`

	Attention []DigestCase `json:"attention"`
	Active    []DigestCase `json:"active"`
}

// DigestResult is the outcome of one digest run
type DigestResult struct {
	Lawyers int `json:"lawyers"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// DigestBuilder sends every available lawyer a weekly summary of their cases
type DigestBuilder struct {
	DB          *gorm.DB
	Templates   services.EmailRenderer
	Mailer      services.Mailer
	FrontendURL string
	Now         func() time.Time
	Metrics     *metrics.Metrics
	Log         zerolog.Logger
}

func NewDigestBuilder(db *gorm.DB, templates services.EmailRenderer, mailer services.Mailer, frontendURL string, m *metrics.Metrics, log zerolog.Logger) *DigestBuilder {
	return &DigestBuilder{
		DB:          db,
		Templates:   templates,
		Mailer:      mailer,
		FrontendURL: strings.TrimRight(frontendURL, "/"),
		Now:         func() time.Time { return time.Now().UTC() },
		Metrics:     m,
		Log:         log,
	}
}

// EligibleLawyers returns available lawyers whose account is active
func (b *DigestBuilder) EligibleLawyers(ctx context.Context) ([]models.Lawyer, error) {
	var lawyers []models.Lawyer
	err := b.DB.WithContext(ctx).
		Joins("JOIN users ON users.id = lawyers.user_id").
		Where("lawyers.is_available = ? AND users.is_active = ? AND users.deleted_at IS NULL", true, true).
		Preload("User").
		Order("users.name ASC").
		Find(&lawyers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load lawyers: %w", err)
	}
	return lawyers, nil
}

// Run builds and sends every digest. Lawyers without cases are skipped; one
// lawyer's failure does not stop the others.
func (b *DigestBuilder) Run(ctx context.Context) (DigestResult, error) {
	log := b.Log.With().Str("job", JobWeeklyDigest).Logger()

	lawyers, err := b.EligibleLawyers(ctx)
	if err != nil {
		return DigestResult{}, err
	}

	now := b.Now().UTC()
	var result DigestResult
	for _, lawyer := range lawyers {
		result.Lawyers++
		sent, err := b.sendOne(ctx, lawyer, now)
		switch {
		case err != nil:
			result.Failed++
			b.countItem("failed")
			log.Error().Err(err).Str("lawyer_id", lawyer.ID).Msg("weekly digest failed")
		case !sent:
			result.Skipped++
			b.countItem("skipped")
		default:
			result.Sent++
			b.countItem("sent")
		}
	}

	log.Info().
		Int("lawyers", result.Lawyers).
		Int("sent", result.Sent).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("weekly digest completed")
	return result, nil
}

func (b *DigestBuilder) sendOne(ctx context.Context, lawyer models.Lawyer, now time.Time) (sent bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while building digest: %v", r)
		}
	}()

	payload, err := b.Build(ctx, lawyer, now)
	if err != nil {
		return false, err
	}
	if payload.TotalCases == 0 {
		return false, nil
	}

	rendered, err := b.Templates.RenderKey(ctx, services.TemplateWeeklyDigest, b.TemplateVars(payload))
	if err != nil {
		return false, err
	}
	ok := b.Mailer.Send(ctx, services.OutboundEmail{
		To:          payload.LawyerEmail,
		Subject:     rendered.Subject,
		HTML:        rendered.HTML,
		TemplateKey: services.TemplateWeeklyDigest,
	})
	if !ok {
		return false, errors.New("digest email was not delivered")
	}
	return true, nil
}

// Build computes the digest of lawyer as of now
func (b *DigestBuilder) Build(ctx context.Context, lawyer models.Lawyer, now time.Time) (*DigestPayload, error) {
	var cases []models.Case
	err := b.DB.WithContext(ctx).
		Preload("Client.User").
		Where("lawyer_id = ?", lawyer.ID).
		Find(&cases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cases for lawyer %s: %w", lawyer.ID, err)
	}

	weekStart := now.Add(-days(7))
	staleCutoff := now.Add(-days(digestStaleDays))
	p := &DigestPayload{
		LawyerID:    lawyer.ID,
		LawyerName:  lawyer.User.Name,
		LawyerEmail: lawyer.User.Email,
		PeriodStart: weekStart,
		PeriodEnd:   now,
		TotalCases:  len(cases),
	}

	var stale, active []DigestCase
	for _, c := range cases {
		if !c.CreatedAt.Before(weekStart) {
			p.CreatedThisWeek++
		}
		if c.ClosedAt != nil && !c.ClosedAt.Before(weekStart) {
			p.ClosedThisWeek++
		}
		if !isActiveStatus(c.Status) {
			continue
		}
		line := digestLine(c, now)
		active = append(active, line)
		if c.LastActivityAt.Before(staleCutoff) {
			stale = append(stale, line)
		}
	}
	p.ActiveCases = len(active)
	p.StaleCases = len(stale)

	// oldest activity first
	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].LastActivityAt.Before(stale[j].LastActivityAt)
	})
	// most recent activity first
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].LastActivityAt.After(active[j].LastActivityAt)
	})
	p.Attention = capLines(stale, digestAttentionLimit)
	p.Active = capLines(active, digestActiveLimit)
	return p, nil
}

// BuildForLawyerID computes the digest of one lawyer for export
func (b *DigestBuilder) BuildForLawyerID(ctx context.Context, lawyerID string) (*DigestPayload, error) {
	var lawyer models.Lawyer
	err := b.DB.WithContext(ctx).Preload("User").First(&lawyer, "id = ?", lawyerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &services.NotFoundError{Resource: "lawyer", ID: lawyerID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lawyer %s: %w", lawyerID, err)
	}
	return b.Build(ctx, lawyer, b.Now().UTC())
}

// TemplateVars flattens a payload into weekly_digest template variables.
// Row variables hold escaped HTML and are meant for {{{raw}}} placeholders.
func (b *DigestBuilder) TemplateVars(p *DigestPayload) map[string]string {
	return map[string]string{
		"recipient_name":    p.LawyerName,
		"period_start":      p.PeriodStart.Format("Jan 2, 2006"),
		"period_end":        p.PeriodEnd.Format("Jan 2, 2006"),
		"total_cases":       strconv.Itoa(p.TotalCases),
		"active_cases":      strconv.Itoa(p.ActiveCases),
		"created_this_week": strconv.Itoa(p.CreatedThisWeek),
		"closed_this_week":  strconv.Itoa(p.ClosedThisWeek),
		"stale_cases":       strconv.Itoa(p.StaleCases),
		"attention_rows":    b.rows(p.Attention),
		"active_rows":       b.rows(p.Active),
		"dashboard_url":     b.FrontendURL + "/dashboard",
	}
}

func (b *DigestBuilder) rows(lines []DigestCase) string {
	var sb strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&sb, `<tr><td><a href="%s">%s</a></td><td>%s</td><td>%s</td><td>%s</td><td>%d days</td></tr>`,
			html.EscapeString(b.FrontendURL+"/cases/"+l.ID),
			html.EscapeString(l.CaseNumber),
			html.EscapeString(l.Title),
			html.EscapeString(l.ClientName),
			html.EscapeString(models.CaseStatusLabel(l.Status)),
			l.DaysInactive,
		)
	}
	return sb.String()
}

// ExportXLSX writes a digest as a spreadsheet with a summary sheet and one
// sheet per list.
func (b *DigestBuilder) ExportXLSX(p *DigestPayload) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheetSummary = "Summary"
	const sheetAttention = "Needs attention"
	const sheetActive = "Active cases"

	f.SetSheetName("Sheet1", sheetSummary)
	titleStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	headerStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})

	f.SetCellValue(sheetSummary, "A1", fmt.Sprintf("Weekly summary for %s", p.LawyerName))
	f.SetCellStyle(sheetSummary, "A1", "A1", titleStyle)
	summary := [][2]interface{}{
		{"Period start", p.PeriodStart.Format("2006-01-02")},
		{"Period end", p.PeriodEnd.Format("2006-01-02")},
		{"Total cases", p.TotalCases},
		{"Active cases", p.ActiveCases},
		{"Opened this week", p.CreatedThisWeek},
		{"Closed this week", p.ClosedThisWeek},
		{"Without activity for more than 7 days", p.StaleCases},
	}
	for i, row := range summary {
		r := i + 3
		f.SetCellValue(sheetSummary, fmt.Sprintf("A%d", r), row[0])
		f.SetCellValue(sheetSummary, fmt.Sprintf("B%d", r), row[1])
	}
	f.SetColWidth(sheetSummary, "A", "A", 40)
	f.SetColWidth(sheetSummary, "B", "B", 16)

	headers := []string{"Case number", "Title", "Client", "Status", "Priority", "Last activity", "Days inactive"}
	for _, sheet := range []struct {
		name  string
		lines []DigestCase
	}{
		{sheetAttention, p.Attention},
		{sheetActive, p.Active},
	} {
		if _, err := f.NewSheet(sheet.name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", sheet.name, err)
		}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			f.SetCellValue(sheet.name, cell, h)
		}
		f.SetCellStyle(sheet.name, "A1", "G1", headerStyle)
		for i, l := range sheet.lines {
			values := []interface{}{
				l.CaseNumber,
				l.Title,
				l.ClientName,
				models.CaseStatusLabel(l.Status),
				l.Priority,
				l.LastActivityAt.Format("2006-01-02"),
				l.DaysInactive,
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
				f.SetCellValue(sheet.name, cell, v)
			}
		}
		f.SetColWidth(sheet.name, "A", "G", 20)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write excel buffer: %w", err)
	}
	return buf, nil
}

func (b *DigestBuilder) countItem(result string) {
	if b.Metrics != nil {
		b.Metrics.JobItems.WithLabelValues(JobWeeklyDigest, result).Inc()
	}
}

func digestLine(c models.Case, now time.Time) DigestCase {
	line := DigestCase{
		ID:             c.ID,
		CaseNumber:     c.CaseNumber,
		Title:          c.Title,
		Status:         c.Status,
		Priority:       c.Priority,
		LastActivityAt: c.LastActivityAt,
		DaysInactive:   int(now.Sub(c.LastActivityAt).Hours() / 24),
	}
	if c.Client != nil {
		line.ClientName = c.Client.User.Name
	}
	return line
}

func isActiveStatus(status string) bool {
	for _, s := range models.ActiveCaseStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func capLines(lines []DigestCase, n int) []DigestCase {
	if len(lines) > n {
		return lines[:n]
	}
	return lines
}
