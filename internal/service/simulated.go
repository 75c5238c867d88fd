package service

import (
	"math/rand/v2"

	"github.com/timmy/roastpage/internal/domain"
	"github.com/timmy/roastpage/internal/prompts"
)

// scoreBand is an inclusive range a simulated score is drawn from.
type scoreBand struct {
	Min, Max int
}

func (b scoreBand) draw() int {
	return b.Min + rand.IntN(b.Max-b.Min+1)
}

// SimulatedScoreBand bounds the simulated overall score.
var SimulatedScoreBand = scoreBand{Min: 40, Max: 69}

// SimulatedCategoryBands bounds each simulated category score.
var SimulatedCategoryBands = map[string]scoreBand{
	"Value proposition clarity":           {30, 69},
	"Web3 terminology usage":              {40, 79},
	"Technical explanation quality":       {30, 69},
	"Trust signals & security indicators": {30, 69},
	"Call-to-action effectiveness":        {40, 79},
	"Mobile responsiveness":               {50, 89},
	"Web3 integration visibility":         {30, 69},
}

var simulatedFeedback = []domain.AnalysisFeedback{
	{
		Category: "Value proposition clarity",
		Feedback: "Your value proposition is buried below the fold. Web3 users need to immediately understand what problem you're solving and why your blockchain solution is unique. Right now, it takes too much scrolling to figure out what your project actually does.",
		Severity: domain.SeverityHigh,
	},
	{
		Category: "Web3 terminology usage",
		Feedback: `You're dropping terms like "L2 scaling" and "ZK-rollups" without explaining what they mean to the average user. While Web3-native visitors might understand, newcomers will bounce. Define your terms or simplify the language.`,
		Severity: domain.SeverityMedium,
	},
	{
		Category: "Technical explanation quality",
		Feedback: "Your technical explanation of how the smart contracts work is overly complex. It reads like documentation, not a landing page. Web3 users need to understand the benefits without getting lost in implementation details.",
		Severity: domain.SeverityHigh,
	},
	{
		Category: "Trust signals & security indicators",
		Feedback: "Missing critical trust signals like audit reports, TVL data, and team information. In Web3, security is paramount - you need to prominently display your security credentials and audit partners.",
		Severity: domain.SeverityHigh,
	},
	{
		Category: "Call-to-action effectiveness",
		Feedback: `Your primary CTA "Enter App" is generic and doesn't communicate value. Consider something more specific like "Start Earning 8% APY" or "Trade With Zero Slippage" that highlights your unique value proposition.`,
		Severity: domain.SeverityMedium,
	},
	{
		Category: "Mobile responsiveness",
		Feedback: "The wallet connection button is too small on mobile screens and the gas fee estimator becomes unusable. Since over 60% of Web3 users access dApps via mobile, this needs immediate fixing.",
		Severity: domain.SeverityMedium,
	},
	{
		Category: "Web3 integration visibility",
		Feedback: "Your wallet connection feature is hidden in a dropdown menu. This should be one of the most prominent elements on the page - Web3 users expect to see it immediately.",
		Severity: domain.SeverityLow,
	},
}

var simulatedPositives = []string{
	"Clean design with appropriate Web3 aesthetic.",
	"Good balance of technical information and user benefits.",
	"Clearly explained tokenomics section with helpful visualizations.",
}

// SimulatedAnalysis returns the canned critique with freshly drawn scores.
// The returned value shares nothing with the catalog and may be modified.
func SimulatedAnalysis() *domain.AnalysisResult {
	categoryScores := make(map[string]int, len(prompts.Categories))
	for _, name := range prompts.Categories {
		categoryScores[name] = SimulatedCategoryBands[name].draw()
	}

	feedback := make([]domain.AnalysisFeedback, len(simulatedFeedback))
	copy(feedback, simulatedFeedback)
	positives := make([]string, len(simulatedPositives))
	copy(positives, simulatedPositives)

	return &domain.AnalysisResult{
		Score:          SimulatedScoreBand.draw(),
		CategoryScores: categoryScores,
		Feedback:       feedback,
		Positives:      positives,
		Source:         domain.AnalysisSourceSimulated,
	}
}
