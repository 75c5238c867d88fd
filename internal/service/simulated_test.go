package service

import (
	"testing"

	"github.com/timmy/roastpage/internal/domain"
	"github.com/timmy/roastpage/internal/prompts"
)

func TestSimulatedAnalysis_Bands(t *testing.T) {
	for i := 0; i < 500; i++ {
		a := SimulatedAnalysis()
		if a.Score < 40 || a.Score > 69 {
			t.Fatalf("score %d outside [40,69]", a.Score)
		}
		if len(a.CategoryScores) != len(prompts.Categories) {
			t.Fatalf("category scores = %v", a.CategoryScores)
		}
		for _, name := range prompts.Categories {
			band := SimulatedCategoryBands[name]
			got, ok := a.CategoryScores[name]
			if !ok || got < band.Min || got > band.Max {
				t.Fatalf("%s = %d (present=%v), band %v", name, got, ok, band)
			}
		}
	}
}

func TestSimulatedAnalysis_Catalog(t *testing.T) {
	a := SimulatedAnalysis()

	wantSeverities := []domain.Severity{
		domain.SeverityHigh, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityHigh,
		domain.SeverityMedium, domain.SeverityMedium, domain.SeverityLow,
	}
	if len(a.Feedback) != len(wantSeverities) {
		t.Fatalf("feedback len = %d", len(a.Feedback))
	}
	for i, f := range a.Feedback {
		if f.Category != prompts.Categories[i] {
			t.Errorf("feedback[%d].category = %q, want %q", i, f.Category, prompts.Categories[i])
		}
		if f.Severity != wantSeverities[i] {
			t.Errorf("feedback[%d].severity = %q, want %q", i, f.Severity, wantSeverities[i])
		}
	}
	if a.Feedback[4].Feedback != `Your primary CTA "Enter App" is generic and doesn't communicate value. Consider something more specific like "Start Earning 8% APY" or "Trade With Zero Slippage" that highlights your unique value proposition.` {
		t.Errorf("call-to-action text changed: %q", a.Feedback[4].Feedback)
	}
	if len(a.Positives) != 3 || a.Positives[0] != "Clean design with appropriate Web3 aesthetic." {
		t.Errorf("positives = %v", a.Positives)
	}
	if a.Source != domain.AnalysisSourceSimulated {
		t.Errorf("source = %q", a.Source)
	}
}

func TestSimulatedAnalysis_ReturnsIndependentCopies(t *testing.T) {
	a := SimulatedAnalysis()
	a.Feedback[0].Feedback = "mutated"
	a.Positives[0] = "mutated"

	b := SimulatedAnalysis()
	if b.Feedback[0].Feedback == "mutated" || b.Positives[0] == "mutated" {
		t.Error("SimulatedAnalysis shares state between calls")
	}
}
