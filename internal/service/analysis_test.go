package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/timmy/roastpage/internal/config"
	"github.com/timmy/roastpage/internal/domain"
)

const modelJSON = `{"score":72,"categoryScores":{"Value proposition clarity":65},"feedback":[{"category":"Value proposition clarity","feedback":"Say what it does.","severity":"HIGH"}],"positives":["Crisp hero image."]}`

func chatServer(t *testing.T, status int, content string, seen *openAIRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		if seen != nil {
			var raw struct {
				Model    string `json:"model"`
				Messages []struct {
					Role    string          `json:"role"`
					Content json.RawMessage `json:"content"`
				} `json:"messages"`
			}
			_ = json.NewDecoder(r.Body).Decode(&raw)
			seen.Model = raw.Model
			for _, m := range raw.Messages {
				seen.Messages = append(seen.Messages, openAIMessage{Role: m.Role, Content: string(m.Content)})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestAnalysis(baseURL string, inspector Inspector) *AnalysisService {
	return NewAnalysisService(&config.AnalysisConfig{
		Model:   "gpt-4o-mini",
		APIKey:  "sk-test",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}, inspector)
}

type stubInspector struct {
	summary *PageSummary
	err     error
}

func (s stubInspector) Inspect(ctx context.Context, targetURL string) (*PageSummary, error) {
	return s.summary, s.err
}

func TestAnalysisService_NoKeyReturnsSimulated(t *testing.T) {
	svc := NewAnalysisService(&config.AnalysisConfig{Timeout: time.Second}, nil)

	result, err := svc.Analyze(context.Background(), "https://example.com", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Source != domain.AnalysisSourceSimulated || len(result.Feedback) != 7 {
		t.Errorf("result = %+v", result)
	}
}

func TestAnalysisService_ParsesModelResponse(t *testing.T) {
	var seen openAIRequest
	srv := chatServer(t, http.StatusOK, "Here you go:\n```json\n"+modelJSON+"\n```", &seen)
	defer srv.Close()

	inspector := stubInspector{summary: &PageSummary{Title: "DeFi Vault", CTAs: []string{"Enter App"}}}
	svc := newTestAnalysis(srv.URL, inspector)

	result, err := svc.Analyze(context.Background(), "https://example.com", "https://shots.example/1.png")
	if err != nil {
		t.Fatal(err)
	}
	if result.Source != domain.AnalysisSourceModel || result.Score != 72 {
		t.Errorf("result = %+v", result)
	}
	if result.Feedback[0].Severity != domain.SeverityHigh {
		t.Errorf("severity = %q, want high", result.Feedback[0].Severity)
	}

	if len(seen.Messages) != 2 {
		t.Fatalf("messages = %d", len(seen.Messages))
	}
	user := seen.Messages[1].Content.(string)
	if !strings.Contains(user, "image_url") || !strings.Contains(user, "https://shots.example/1.png") {
		t.Errorf("screenshot not attached: %s", user)
	}
	if !strings.Contains(user, "DeFi Vault") || !strings.Contains(user, "Enter App") {
		t.Errorf("page summary not in prompt: %s", user)
	}
}

func TestAnalysisService_SkipsRelativeScreenshot(t *testing.T) {
	var seen openAIRequest
	srv := chatServer(t, http.StatusOK, modelJSON, &seen)
	defer srv.Close()

	svc := newTestAnalysis(srv.URL, stubInspector{err: errors.New("blocked")})
	if _, err := svc.Analyze(context.Background(), "https://example.com", "/placeholder.svg?text=x"); err != nil {
		t.Fatal(err)
	}
	if user := seen.Messages[1].Content.(string); strings.Contains(user, "image_url") {
		t.Errorf("placeholder should not be sent as image: %s", user)
	}
}

type hangingInspector struct{}

func (hangingInspector) Inspect(ctx context.Context, targetURL string) (*PageSummary, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAnalysisService_SlowInspectionKeepsModelBudget(t *testing.T) {
	srv := chatServer(t, http.StatusOK, modelJSON, nil)
	defer srv.Close()

	svc := NewAnalysisService(&config.AnalysisConfig{
		Model:          "gpt-4o-mini",
		APIKey:         "sk-test",
		BaseURL:        srv.URL,
		Timeout:        5 * time.Second,
		InspectTimeout: 20 * time.Millisecond,
	}, hangingInspector{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := svc.Analyze(ctx, "https://example.com", "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Source != domain.AnalysisSourceModel || result.Score != 72 {
		t.Errorf("result = %+v", result)
	}
}

func TestAnalysisService_FallsBackOnBadResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
	}{
		{"http error", http.StatusTooManyRequests, ""},
		{"prose", http.StatusOK, "I cannot review this page."},
		{"empty object", http.StatusOK, "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.status, tt.content, nil)
			defer srv.Close()

			result, err := newTestAnalysis(srv.URL, nil).Analyze(context.Background(), "https://example.com", "")
			if err != nil {
				t.Fatal(err)
			}
			if result.Source != domain.AnalysisSourceSimulated {
				t.Errorf("source = %q, want simulated", result.Source)
			}
		})
	}
}

func TestAnalysisService_ReturnsContextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestAnalysis(srv.URL, nil).Analyze(ctx, "https://example.com", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"direct", modelJSON, false},
		{"fenced", "```json\n" + modelJSON + "\n```", false},
		{"fenced without language", "Result:\n```\n" + modelJSON + "\n```\nThanks", false},
		{"braces in prose", "Sure! " + modelJSON + " Hope this helps.", false},
		{"no json", "no idea", true},
		{"broken json", `{"score": 5, "feedback": [}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseAnalysis(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", result)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAnalysis: %v", err)
			}
			if result.Score != 72 || len(result.Feedback) != 1 {
				t.Errorf("result = %+v", result)
			}
		})
	}
}
