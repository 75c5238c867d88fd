package domain

import "time"

// RoastStatus represents where a roast is in its lifecycle.
// Values include RoastStatusProcessing, RoastStatusCompleted, and RoastStatusFailed.
type RoastStatus string

const (
	RoastStatusProcessing RoastStatus = "processing"
	RoastStatusCompleted  RoastStatus = "completed"
	RoastStatusFailed     RoastStatus = "failed"
)

// IsTerminal reports whether s is completed or failed.
func (s RoastStatus) IsTerminal() bool {
	return s == RoastStatusCompleted || s == RoastStatusFailed
}

// Roast is one submitted landing-page critique job and its result.
// Version increases on every retry; background writes are conditional on it.
type Roast struct {
	ID            string          `gorm:"type:text;primaryKey" json:"id"`
	URL           string          `gorm:"type:text;not null" json:"url"`
	ScreenshotURL *string         `gorm:"column:screenshot_url;type:text" json:"screenshot_url"`
	Analysis      *AnalysisResult `gorm:"column:ai_analysis;type:text" json:"ai_analysis"`
	Status        RoastStatus     `gorm:"type:text;not null;index:idx_roasts_status;default:processing" json:"status"`
	Score         *int            `json:"score"`
	Version       int             `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time       `gorm:"index:idx_roasts_created_at" json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at"`

	FeedbackItems []FeedbackItem `gorm:"foreignKey:RoastID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the database table name for Roast.
func (Roast) TableName() string {
	return "roasts"
}
