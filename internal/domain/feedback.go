package domain

import (
	"strings"
	"time"
)

// Severity ranks how urgently a feedback item should be addressed.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Valid reports whether s is one of high, medium or low.
func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// NormalizeSeverity lower-cases s and maps unknown values to medium.
func NormalizeSeverity(s string) Severity {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Valid() {
		return sev
	}
	return SeverityMedium
}

// FeedbackItem is one categorized critique line owned by a Roast.
type FeedbackItem struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	RoastID   string    `gorm:"type:text;not null;index:idx_feedback_items_roast_id" json:"roast_id"`
	Category  string    `gorm:"type:text;not null" json:"category"`
	Feedback  string    `gorm:"type:text;not null" json:"feedback"`
	Severity  Severity  `gorm:"type:text;not null" json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for FeedbackItem.
func (FeedbackItem) TableName() string {
	return "feedback_items"
}
