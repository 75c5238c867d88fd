package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/roastpage/internal/config"
	"github.com/timmy/roastpage/internal/domain"
	"github.com/timmy/roastpage/internal/logger"
	"github.com/timmy/roastpage/internal/prompts"
	"golang.org/x/time/rate"
)

// Inspector summarizes a landing page for the analysis prompt.
type Inspector interface {
	Inspect(ctx context.Context, targetURL string) (*PageSummary, error)
}

// AnalysisService critiques landing pages with an OpenAI-compatible vision
// model. Failures fall back to the simulated critique; only a done context
// is reported as an error.
type AnalysisService struct {
	client    *resty.Client
	model     string
	apiKey    string
	endpoint  string
	maxTokens int
	limiter   *rate.Limiter
	inspector Inspector

	// inspectTimeout bounds each Inspect call.
	inspectTimeout time.Duration
}

// NewAnalysisService creates an AnalysisService. inspector may be nil.
func NewAnalysisService(cfg *config.AnalysisConfig, inspector Inspector) *AnalysisService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(cfg.Timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	inspectTimeout := cfg.InspectTimeout
	if inspectTimeout <= 0 {
		inspectTimeout = cfg.Timeout / 4
	}

	return &AnalysisService{
		client:    client,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		endpoint:  strings.TrimSuffix(baseURL, "/") + "/chat/completions",
		maxTokens: maxTokens,
		limiter:   limiter,
		inspector: inspector,

		inspectTimeout: inspectTimeout,
	}
}

// Configured reports whether an API key is set.
func (s *AnalysisService) Configured() bool {
	return s.apiKey != ""
}

// GetModel returns the model name being used.
func (s *AnalysisService) GetModel() string {
	return s.model
}

// OpenAI-compatible Chat Completion API request/response structures
type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type openAITextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageContent struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Analyze returns a critique of targetURL. screenshotRef is attached to the
// request when it is an absolute http(s) URL.
func (s *AnalysisService) Analyze(ctx context.Context, targetURL, screenshotRef string) (*domain.AnalysisResult, error) {
	if !s.Configured() {
		logger.CtxDebug(ctx, "No analysis API key, using simulated analysis")
		return SimulatedAnalysis(), nil
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// Wait also fails when the deadline is shorter than the expected delay.
			logger.CtxWarn(ctx, "Analysis rate limit exceeds remaining budget, using simulated analysis: %v", err)
			return SimulatedAnalysis(), nil
		}
	}

	var pageSummary string
	if s.inspector != nil {
		start := time.Now()
		summary, err := s.inspect(ctx, targetURL)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Page inspection failed, analyzing without page content")
		} else {
			pageSummary = summary.String()
			logger.With(logger.Fields{
				"headings": len(summary.Headings),
				"ctas":     len(summary.CTAs),
			}).WithDuration(start).Debug(ctx, "Inspected page")
		}
	}

	content, err := s.complete(ctx, targetURL, screenshotRef, pageSummary)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.FromContext(ctx).WithError(err).Warn("Analysis API failed, using simulated analysis")
		return SimulatedAnalysis(), nil
	}

	result, err := parseAnalysis(content)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Analysis response unparseable, using simulated analysis")
		return SimulatedAnalysis(), nil
	}
	result.Normalize()
	result.Source = domain.AnalysisSourceModel
	return result, nil
}

func (s *AnalysisService) complete(ctx context.Context, targetURL, screenshotRef, pageSummary string) (string, error) {
	parts := []interface{}{
		openAITextContent{
			Type: "text",
			Text: prompts.AnalysisUserPrompt(targetURL, pageSummary),
		},
	}
	if isAbsoluteHTTP(screenshotRef) {
		parts = append(parts, openAIImageContent{
			Type: "image_url",
			ImageURL: openAIImageURL{
				URL:    screenshotRef,
				Detail: "auto",
			},
		})
	}

	req := openAIRequest{
		Model: s.model,
		Messages: []openAIMessage{
			{Role: "system", Content: prompts.AnalysisSystemPrompt},
			{Role: "user", Content: parts},
		},
		MaxTokens: s.maxTokens,
	}

	start := time.Now()
	var resp openAIResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call analysis API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		if resp.Error != nil {
			return "", fmt.Errorf("analysis API returned HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return "", fmt.Errorf("analysis API returned HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
	}
	if resp.Error != nil {
		return "", fmt.Errorf("analysis API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in analysis response (status: %d)", httpResp.StatusCode())
	}

	logger.With(logger.Fields{"model": s.model}).WithDuration(start).Info(ctx, "Analysis API responded")
	return resp.Choices[0].Message.Content, nil
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

var errEmptyAnalysis = errors.New("analysis has no scores or feedback")

// parseAnalysis decodes model output as an AnalysisResult, first directly,
// then from a fenced code block, then from the outermost braces.
func parseAnalysis(content string) (*domain.AnalysisResult, error) {
	content = strings.TrimSpace(content)

	candidates := []string{content}
	if m := fencedJSON.FindStringSubmatch(content); m != nil {
		candidates = append(candidates, m[1])
	}
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		candidates = append(candidates, content[start:end+1])
	}

	var lastErr error
	for _, candidate := range candidates {
		var result domain.AnalysisResult
		if err := json.Unmarshal([]byte(candidate), &result); err != nil {
			lastErr = err
			continue
		}
		if len(result.Feedback) == 0 && len(result.CategoryScores) == 0 {
			lastErr = errEmptyAnalysis
			continue
		}
		return &result, nil
	}
	return nil, fmt.Errorf("failed to parse analysis: %w", lastErr)
}

func (s *AnalysisService) inspect(ctx context.Context, targetURL string) (*PageSummary, error) {
	if s.inspectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.inspectTimeout)
		defer cancel()
	}
	return s.inspector.Inspect(ctx, targetURL)
}
