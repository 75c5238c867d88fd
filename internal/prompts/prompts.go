package prompts

import (
	"fmt"
	"strings"
)

// ============================================================================
// Roast categories
// ============================================================================

// Categories is the ordered list of landing-page aspects every roast scores.
var Categories = []string{
	"Value proposition clarity",
	"Web3 terminology usage",
	"Technical explanation quality",
	"Trust signals & security indicators",
	"Call-to-action effectiveness",
	"Mobile responsiveness",
	"Web3 integration visibility",
}

// ============================================================================
// Analysis prompts (vision chat completion)
// ============================================================================

// AnalysisSystemPrompt defines the reviewer role and the output contract.
const AnalysisSystemPrompt = `You are a Web3 UX expert reviewing landing pages.
Provide brutally honest but constructive feedback. Be specific, actionable, and include Web3-specific insights.

Respond with a single JSON object and nothing else, using exactly this shape:
{
  "score": <integer 0-100>,
  "categoryScores": { "<category>": <integer 0-100>, ... },
  "feedback": [ { "category": "<category>", "feedback": "<text>", "severity": "high" | "medium" | "low" }, ... ],
  "positives": [ "<text>", ... ]
}`

// analysisUserTemplate is filled by AnalysisUserPrompt.
const analysisUserTemplate = `Analyze the landing page at %s.
Focus especially on these categories: %s.
For each category, provide specific feedback with a severity (high, medium, or low).
Score each category (0-100) and give an overall score.`

// AnalysisUserPrompt builds the user message for url. pageSummary, when not
// empty, is appended as extra context extracted from the page's HTML.
func AnalysisUserPrompt(url, pageSummary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, analysisUserTemplate, url, strings.Join(Categories, ", "))
	if pageSummary = strings.TrimSpace(pageSummary); pageSummary != "" {
		b.WriteString("\n\nPage content extracted from the HTML:\n")
		b.WriteString(pageSummary)
	}
	return b.String()
}
