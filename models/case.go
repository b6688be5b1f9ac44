package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Case status constants
const (
	CaseStatusNew           = "new"
	CaseStatusInReview      = "in_review"
	CaseStatusInProgress    = "in_progress"
	CaseStatusPendingClient = "pending_client"
	CaseStatusPendingCourt  = "pending_court"
	CaseStatusResolved      = "resolved"
	CaseStatusClosed        = "closed"
	CaseStatusArchived      = "archived"
)

// Case priority constants
const (
	CasePriorityLow    = "low"
	CasePriorityMedium = "medium"
	CasePriorityHigh   = "high"
	CasePriorityUrgent = "urgent"
)

// CaseStatuses lists every status a case may hold. Any status may follow any
// other; there is no transition graph.
var CaseStatuses = []string{
	CaseStatusNew,
	CaseStatusInReview,
	CaseStatusInProgress,
	CaseStatusPendingClient,
	CaseStatusPendingCourt,
	CaseStatusResolved,
	CaseStatusClosed,
	CaseStatusArchived,
}

// ActiveCaseStatuses are the statuses counted as "active" in lawyer digests
var ActiveCaseStatuses = []string{
	CaseStatusNew,
	CaseStatusInReview,
	CaseStatusInProgress,
	CaseStatusPendingClient,
	CaseStatusPendingCourt,
}

// InactivityExemptStatuses are never picked up by the inactivity scan
var InactivityExemptStatuses = []string{
	CaseStatusClosed,
	CaseStatusArchived,
	CaseStatusResolved,
}

// Case represents a legal case
type Case struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Case identification
	CaseNumber  string `gorm:"not null;uniqueIndex" json:"case_number"`
	CaseType    string `gorm:"not null" json:"case_type"`
	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	// Parties
	ClientID string  `gorm:"type:uuid;not null;index" json:"client_id"`
	Client   *Client `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	LawyerID *string `gorm:"type:uuid;index" json:"lawyer_id,omitempty"`
	Lawyer   *Lawyer `gorm:"foreignKey:LawyerID" json:"lawyer,omitempty"`

	// Status and lifecycle
	Status   string     `gorm:"not null;default:new;index" json:"status"`
	Priority string     `gorm:"not null;default:medium" json:"priority"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`

	// Activity tracking. LastActivityAt only moves forward; it is bumped by
	// every CaseEvent append.
	LastActivityAt             time.Time  `gorm:"not null;index" json:"last_activity_at"`
	LastInactivityNotification *time.Time `json:"last_inactivity_notification,omitempty"`
}

// BeforeCreate hook to generate UUID and seed LastActivityAt
func (c *Case) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.LastActivityAt.IsZero() {
		c.LastActivityAt = time.Now().UTC()
	}
	return nil
}

// TableName specifies the table name for Case model
func (Case) TableName() string {
	return "cases"
}

// HasLawyer reports whether a lawyer is assigned
func (c *Case) HasLawyer() bool {
	return c.LawyerID != nil && *c.LawyerID != ""
}

// IsTerminal reports whether the case is closed or archived
func (c *Case) IsTerminal() bool {
	return IsTerminalCaseStatus(c.Status)
}

// IsValidCaseStatus checks if the status is one of the enumerated statuses
func IsValidCaseStatus(status string) bool {
	for _, s := range CaseStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminalCaseStatus reports whether entering status stamps ClosedAt
func IsTerminalCaseStatus(status string) bool {
	return status == CaseStatusClosed || status == CaseStatusArchived
}

// IsValidCasePriority checks if the priority is valid
func IsValidCasePriority(priority string) bool {
	switch priority {
	case CasePriorityLow, CasePriorityMedium, CasePriorityHigh, CasePriorityUrgent:
		return true
	}
	return false
}

// CaseStatusLabel returns a human readable label for emails and notifications
func CaseStatusLabel(status string) string {
	switch status {
	case CaseStatusNew:
		return "New"
	case CaseStatusInReview:
		return "In review"
	case CaseStatusInProgress:
		return "In progress"
	case CaseStatusPendingClient:
		return "Waiting on client"
	case CaseStatusPendingCourt:
		return "Waiting on court"
	case CaseStatusResolved:
		return "Resolved"
	case CaseStatusClosed:
		return "Closed"
	case CaseStatusArchived:
		return "Archived"
	}
	return status
}
