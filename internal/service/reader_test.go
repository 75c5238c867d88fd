package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/timmy/roastpage/internal/config"
	"github.com/timmy/roastpage/internal/domain"
	"github.com/timmy/roastpage/internal/repository"
)

type countingRoastReader struct {
	RoastReader
	pingErr error
	gets    int
}

func (c *countingRoastReader) Ping(ctx context.Context) error {
	if c.pingErr != nil {
		return c.pingErr
	}
	return c.RoastReader.Ping(ctx)
}

func (c *countingRoastReader) GetByID(ctx context.Context, id string) (*domain.Roast, error) {
	c.gets++
	return c.RoastReader.GetByID(ctx, id)
}

// hookedRoastReader runs afterRead once, right after the first GetByID.
type hookedRoastReader struct {
	RoastReader
	afterRead func()
}

func (h *hookedRoastReader) GetByID(ctx context.Context, id string) (*domain.Roast, error) {
	roast, err := h.RoastReader.GetByID(ctx, id)
	if h.afterRead != nil {
		fn := h.afterRead
		h.afterRead = nil
		fn()
	}
	return roast, err
}

type brokenFeedbackReader struct{}

func (brokenFeedbackReader) ListByRoastID(ctx context.Context, roastID string) ([]domain.FeedbackItem, error) {
	return nil, errors.New("feedback table locked")
}

type panickingRoastReader struct{}

func (panickingRoastReader) Ping(ctx context.Context) error { return nil }

func (panickingRoastReader) GetByID(ctx context.Context, id string) (*domain.Roast, error) {
	panic("nil map write")
}

func seedCompleted(t *testing.T, f *roastFixture) string {
	t.Helper()
	id, err := f.svc.Create(context.Background(), "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	f.queue.runAll(t)
	return id
}

func TestReaderService_GetNotFound(t *testing.T) {
	f := newRoastFixture(t, RoastConfig{})
	reader := NewReaderService(f.roasts, f.feedback, Capabilities{}, time.Minute)

	result := reader.Get(context.Background(), "does-not-exist")
	if result.Success {
		t.Fatal("expected success=false")
	}
	if result.Error != "Failed to get roast: roast not found" {
		t.Errorf("error = %q", result.Error)
	}
	if !result.NotFound() {
		t.Error("NotFound() = false")
	}
	if result.FeedbackItems == nil {
		t.Error("feedback items should be an empty list, not nil")
	}
}

func TestReaderService_GetAnnotatesCapabilities(t *testing.T) {
	f := newRoastFixture(t, RoastConfig{})
	id := seedCompleted(t, f)

	cfg := &config.Config{}
	cfg.Analysis.APIKey = "sk-test"
	reader := NewReaderService(f.roasts, f.feedback, NewCapabilities(cfg), 0)

	result := reader.Get(context.Background(), id)
	if !result.Success || result.Roast.ID != id || len(result.FeedbackItems) != 2 {
		t.Fatalf("result = %+v", result)
	}
	if !result.LimitedFunctionality {
		t.Error("limited functionality should be set without a screenshot key")
	}
	if len(result.MissingOptionalVars) != 1 || result.MissingOptionalVars[0] != EnvScreenshotKey {
		t.Errorf("missing = %v", result.MissingOptionalVars)
	}
}

func TestReaderService_PingFailureIsNotFatal(t *testing.T) {
	f := newRoastFixture(t, RoastConfig{})
	id := seedCompleted(t, f)
	roasts := &countingRoastReader{RoastReader: f.roasts, pingErr: errors.New("ping timeout")}
	reader := NewReaderService(roasts, f.feedback, Capabilities{}, 0)

	if result := reader.Get(context.Background(), id); !result.Success {
		t.Errorf("Get failed: %s", result.Error)
	}
}

func TestReaderService_FeedbackFailureReturnsEmptyList(t *testing.T) {
	f := newRoastFixture(t, RoastConfig{})
	id := seedCompleted(t, f)
	reader := NewReaderService(f.roasts, brokenFeedbackReader{}, Capabilities{}, 0)

	result := reader.Get(context.Background(), id)
	if !result.Success {
		t.Fatalf("Get failed: %s", result.Error)
	}
	if result.FeedbackItems == nil || len(result.FeedbackItems) != 0 {
		t.Errorf("feedback items = %v, want empty list", result.FeedbackItems)
	}
}

func TestReaderService_RecoversPanics(t *testing.T) {
	reader := NewReaderService(panickingRoastReader{}, brokenFeedbackReader{}, Capabilities{}, 0)

	result := reader.Get(context.Background(), "x")
	if result.Success || result.Error == "" {
		t.Errorf("result = %+v, want failure", result)
	}
}

func TestReaderService_CachesTerminalResultsUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	f := newRoastFixture(t, RoastConfig{})
	roasts := &countingRoastReader{RoastReader: f.roasts}
	reader := NewReaderService(roasts, f.feedback, Capabilities{}, time.Minute)
	f.svc.AddListener(reader)

	id, _ := f.svc.Create(ctx, "https://example.com")

	// Processing roasts are never cached.
	reader.Get(ctx, id)
	reader.Get(ctx, id)
	if roasts.gets != 2 {
		t.Fatalf("gets = %d, want 2", roasts.gets)
	}

	f.queue.runAll(t)
	reader.Get(ctx, id)
	reader.Get(ctx, id)
	if roasts.gets != 3 {
		t.Fatalf("gets = %d, want 3 (second read cached)", roasts.gets)
	}

	if err := f.svc.Retry(ctx, id); err != nil {
		t.Fatal(err)
	}
	result := reader.Get(ctx, id)
	if roasts.gets != 4 || result.Roast.Status != domain.RoastStatusProcessing {
		t.Errorf("after retry gets = %d status = %s", roasts.gets, result.Roast.Status)
	}
}

func TestReaderService_RetryDuringReadIsNotCached(t *testing.T) {
	ctx := context.Background()
	f := newRoastFixture(t, RoastConfig{})
	id := seedCompleted(t, f)

	roasts := &hookedRoastReader{RoastReader: f.roasts}
	reader := NewReaderService(roasts, f.feedback, Capabilities{}, time.Minute)
	f.svc.AddListener(reader)
	roasts.afterRead = func() {
		if err := f.svc.Retry(ctx, id); err != nil {
			t.Errorf("Retry: %v", err)
		}
	}

	if first := reader.Get(ctx, id); first.Roast.Status != domain.RoastStatusCompleted {
		t.Fatalf("first read status = %s, want the completed row it read", first.Roast.Status)
	}

	second := reader.Get(ctx, id)
	if second.Roast.Status != domain.RoastStatusProcessing || second.Roast.Version != 2 {
		t.Errorf("second read status = %s version = %d, want processing v2", second.Roast.Status, second.Roast.Version)
	}
}

func TestCapabilities(t *testing.T) {
	tests := []struct {
		name        string
		shotKey     string
		analysisKey string
		wantMissing []string
	}{
		{"none", "", "", []string{EnvScreenshotKey, EnvAnalysisKey}},
		{"screenshot only", "k", "", []string{EnvAnalysisKey}},
		{"both", "k", "sk", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Screenshot.AccessKey = tt.shotKey
			cfg.Analysis.APIKey = tt.analysisKey
			caps := NewCapabilities(cfg)

			missing := caps.Check()
			if len(missing) != len(tt.wantMissing) {
				t.Fatalf("missing = %v, want %v", missing, tt.wantMissing)
			}
			for i := range missing {
				if missing[i] != tt.wantMissing[i] {
					t.Errorf("missing[%d] = %s, want %s", i, missing[i], tt.wantMissing[i])
				}
			}
			if caps.LimitedFunctionality() != (len(tt.wantMissing) > 0) {
				t.Errorf("LimitedFunctionality = %v", caps.LimitedFunctionality())
			}
		})
	}
}

var _ RoastReader = (*repository.RoastRepository)(nil)
var _ FeedbackStore = (*repository.FeedbackRepository)(nil)
