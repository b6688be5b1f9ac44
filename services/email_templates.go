package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"law_flow_notify/models"

	"github.com/microcosm-cc/bluemonday"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Built-in email template keys
const (
	TemplateCaseCreated        = "case_created"
	TemplateCaseCreatedLawyer  = "case_created_lawyer"
	TemplateStatusChanged      = "status_changed"
	TemplateLawyerAssigned     = "lawyer_assigned"
	TemplateNewCaseAssigned    = "new_case_assigned"
	TemplateMessageReceived    = "message_received"
	TemplateInactivityReminder = "inactivity_reminder"
	TemplateWeeklyDigest       = "weekly_digest"
)

// EmailTemplateContent is a subject and HTML body with placeholders
type EmailTemplateContent struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// RenderedEmail is a template after variable substitution
type RenderedEmail struct {
	Subject string
	HTML    string
}

const emailLayoutStart = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; color: #1f2937;">`
const emailLayoutEnd = `<p style="color: #6b7280; font-size: 12px;">This message was sent automatically by Law Flow.</p></div>`

var defaultEmailTemplates = map[string]EmailTemplateContent{
	TemplateCaseCreated: {
		Subject: "Your case {{case_number}} has been opened",
		HTML: emailLayoutStart + `<h2>Hello {{recipient_name}},</h2>
<p>Your case <strong>{{case_number}}</strong> ({{case_title}}) has been registered.</p>
{{#if lawyer_name}}<p>Your assigned lawyer is <strong>{{lawyer_name}}</strong>.</p>{{/if}}
<p><a href="{{case_url}}">View your case</a></p>` + emailLayoutEnd,
	},
	TemplateCaseCreatedLawyer: {
		Subject: "New case {{case_number}} assigned to you",
		HTML: emailLayoutStart + `<h2>Hello {{recipient_name}},</h2>
<p>A new case <strong>{{case_number}}</strong> ({{case_title}}) was opened for {{client_name}} and assigned to you.</p>
<p>Priority: {{priority}}</p>
<p><a href="{{case_url}}">Open the case</a></p>` + emailLayoutEnd,
	},
	TemplateStatusChanged: {
		Subject: "Case {{case_number}} is now {{new_status}}",
		HTML: emailLayoutStart + `<h2>Hello {{recipient_name}},</h2>
<p>The status of your case <strong>{{case_number}}</strong> changed from <em>{{old_status}}</em> to <strong>{{new_status}}</strong>.</p>
<p><a href="{{case_url}}">View your case</a></p>` + emailLayoutEnd,
	},
	TemplateLawyerAssigned: {
		Subject: "A lawyer has been assigned to case {{case_number}}",
		HTML: emailLayoutStart + `<h2>Hello {{recipient_name}},</h2>
<p><strong>{{lawyer_name}}</strong> is now handling your case <strong>{{case_number}}</strong>.</p>
{{#if lawyer_email}}<p>You can reach them at {{lawyer_email}}.</p>{{/if}}
<p><a href="{{case_url}}">View your case</a></p>` + emailLayoutEnd,
	},
	TemplateNewCaseAssigned: {
		Subject: "Case {{case_number}} has been assigned to you",
		HTML: emailLayoutStart + `<h2>Hello {{recipient_name}},</h2>
<p>You have been assigned case <strong>{{case_number}}</strong> ({{case_title}}) for client {{client_name}}.</p>
<p><a href="{{case_url}}">Open the case</a></p>` + emailLayoutEnd,
	},
	TemplateMessageReceived: {
		Subject: "New message on case {{case_number}}",
		HTML: emailLayoutStart + `<h2>Hello {{recipient_name}},</h2>
<p>{{sender_name}} sent a new message on case <strong>{{case_number}}</strong>:</p>
<blockquote style="border-left: 3px solid #d1d5db; padding-left: 12px;">{{message_preview}}</blockquote>
<p><a href="{{case_url}}">Reply</a></p>` + emailLayoutEnd,
	},
	TemplateInactivityReminder: {
		Subject: "Update on your case {{case_number}}",
		HTML: emailLayoutStart + `<h2>Hello {{recipient_name}},</h2>
<p>There has been no activity on your case <strong>{{case_number}}</strong> for {{days_inactive}} days.</p>
<p>If you have new information or documents, please share them with us.</p>
{{#if lawyer_name}}<p>Your lawyer, {{lawyer_name}}, remains available.</p>{{/if}}
<p><a href="{{case_url}}">View your case</a></p>` + emailLayoutEnd,
	},
	TemplateWeeklyDigest: {
		Subject: "Your weekly case summary ({{period_start}} to {{period_end}})",
		HTML: emailLayoutStart + `<h2>Hello {{recipient_name}},</h2>
<p>Here is your summary for the week.</p>
<ul>
<li>Total cases: <strong>{{total_cases}}</strong></li>
<li>Active cases: <strong>{{active_cases}}</strong></li>
<li>Opened this week: {{created_this_week}}</li>
<li>Closed this week: {{closed_this_week}}</li>
<li>Without activity for more than 7 days: {{stale_cases}}</li>
</ul>
{{#if attention_rows}}<h3>Needs attention</h3><table>{{{attention_rows}}}</table>{{/if}}
{{#if active_rows}}<h3>Active cases</h3><table>{{{active_rows}}}</table>{{/if}}
<p><a href="{{dashboard_url}}">Open your dashboard</a></p>` + emailLayoutEnd,
	},
}

// TemplateStore resolves email templates: an administrator override stored
// by key wins, otherwise the built-in default is used.
type TemplateStore struct {
	DB     *gorm.DB
	cache  *cache.Cache
	policy *bluemonday.Policy
}

func NewTemplateStore(db *gorm.DB) *TemplateStore {
	return &TemplateStore{
		DB:     db,
		cache:  cache.New(5*time.Minute, 10*time.Minute),
		policy: bluemonday.UGCPolicy(),
	}
}

// Keys lists the built-in template keys in alphabetical order
func (s *TemplateStore) Keys() []string {
	keys := make([]string, 0, len(defaultEmailTemplates))
	for k := range defaultEmailTemplates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetDefault returns the built-in template for key
func (s *TemplateStore) GetDefault(key string) (EmailTemplateContent, bool) {
	tpl, ok := defaultEmailTemplates[key]
	return tpl, ok
}

// GetByKey returns the stored override for key, or nil when there is none
func (s *TemplateStore) GetByKey(ctx context.Context, key string) (*EmailTemplateContent, error) {
	if cached, found := s.cache.Get(key); found {
		return cached.(*EmailTemplateContent), nil
	}

	var row models.EmailTemplate
	err := s.DB.WithContext(ctx).Where("template_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.cache.SetDefault(key, (*EmailTemplateContent)(nil))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load email template %s: %w", key, err)
	}

	tpl := &EmailTemplateContent{Subject: row.Subject, HTML: row.HTML}
	s.cache.SetDefault(key, tpl)
	return tpl, nil
}

// Resolve returns the override for key when one exists, else the default.
// A failing override lookup also falls back to the default.
func (s *TemplateStore) Resolve(ctx context.Context, key string) (EmailTemplateContent, error) {
	def, ok := s.GetDefault(key)
	if !ok {
		return EmailTemplateContent{}, notFound("email template", key)
	}
	override, err := s.GetByKey(ctx, key)
	if err != nil || override == nil {
		return def, nil
	}
	return *override, nil
}

// Render substitutes vars into tpl. The subject is plain text, the body HTML.
func (s *TemplateStore) Render(tpl EmailTemplateContent, vars map[string]string) RenderedEmail {
	return RenderedEmail{
		Subject: strings.TrimSpace(RenderTemplate(tpl.Subject, vars)),
		HTML:    RenderHTML(tpl.HTML, vars),
	}
}

// RenderKey resolves and renders in one step
func (s *TemplateStore) RenderKey(ctx context.Context, key string, vars map[string]string) (RenderedEmail, error) {
	tpl, err := s.Resolve(ctx, key)
	if err != nil {
		return RenderedEmail{}, err
	}
	return s.Render(tpl, vars), nil
}

// SaveOverride stores an administrator edited template. The HTML is sanitized
// with the same UGC policy used for other user authored content.
func (s *TemplateStore) SaveOverride(ctx context.Context, key, subject, htmlBody string, updatedBy *string) (*models.EmailTemplate, error) {
	if _, ok := s.GetDefault(key); !ok {
		return nil, notFound("email template", key)
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, &ValidationError{Field: "subject", Message: "is required"}
	}
	clean := s.policy.Sanitize(htmlBody)
	if strings.TrimSpace(clean) == "" {
		return nil, &ValidationError{Field: "html", Message: "is empty after sanitizing"}
	}

	row := models.EmailTemplate{Key: key, Subject: subject, HTML: clean, UpdatedByID: updatedBy}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "template_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"subject", "html", "updated_by_id", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save email template %s: %w", key, err)
	}

	s.cache.Delete(key)
	return &row, nil
}

// ResetOverride removes the override so the built-in default applies again
func (s *TemplateStore) ResetOverride(ctx context.Context, key string) error {
	if _, ok := s.GetDefault(key); !ok {
		return notFound("email template", key)
	}
	if err := s.DB.WithContext(ctx).Where("template_key = ?", key).Delete(&models.EmailTemplate{}).Error; err != nil {
		return fmt.Errorf("failed to reset email template %s: %w", key, err)
	}
	s.cache.Delete(key)
	return nil
}
