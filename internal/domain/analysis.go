package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Analysis sources recorded on AnalysisResult.Source.
const (
	AnalysisSourceModel     = "model"
	AnalysisSourceSimulated = "simulated"
)

// AnalysisFeedback is a feedback entry inside an AnalysisResult.
type AnalysisFeedback struct {
	Category string   `json:"category"`
	Feedback string   `json:"feedback"`
	Severity Severity `json:"severity"`
}

// AnalysisResult is the structured critique stored in roasts.ai_analysis.
type AnalysisResult struct {
	Score          int                `json:"score"`
	CategoryScores map[string]int     `json:"categoryScores"`
	Feedback       []AnalysisFeedback `json:"feedback"`
	Positives      []string           `json:"positives"`
	Source         string             `json:"source,omitempty"`
}

// Normalize clamps scores into 0-100, fixes severities and drops empty feedback.
func (a *AnalysisResult) Normalize() {
	a.Score = clampScore(a.Score)
	if a.CategoryScores == nil {
		a.CategoryScores = map[string]int{}
	}
	for k, v := range a.CategoryScores {
		a.CategoryScores[k] = clampScore(v)
	}
	kept := a.Feedback[:0]
	for _, f := range a.Feedback {
		if f.Category == "" || f.Feedback == "" {
			continue
		}
		f.Severity = NormalizeSeverity(string(f.Severity))
		kept = append(kept, f)
	}
	a.Feedback = kept
	if a.Positives == nil {
		a.Positives = []string{}
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Value implements the driver.Valuer interface, storing the result as JSON text.
func (a AnalysisResult) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface.
func (a *AnalysisResult) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("failed to scan AnalysisResult")
	}
	return json.Unmarshal(b, a)
}
