package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/timmy/roastpage/internal/config"
	"github.com/timmy/roastpage/internal/logger"
)

const defaultScreenshotBaseURL = "https://api.apiflash.com/v1/urltoimage"

// ScreenshotService builds screenshot references through the APIFlash
// URL-to-image API.
type ScreenshotService struct {
	baseURL   string
	accessKey string
	width     int
	height    int
}

// NewScreenshotService creates a ScreenshotService.
func NewScreenshotService(cfg *config.ScreenshotConfig) *ScreenshotService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultScreenshotBaseURL
	}
	width, height := cfg.Width, cfg.Height
	if width <= 0 {
		width = 1920
	}
	if height <= 0 {
		height = 1080
	}
	return &ScreenshotService{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		accessKey: cfg.AccessKey,
		width:     width,
		height:    height,
	}
}

// Configured reports whether an access key is set.
func (s *ScreenshotService) Configured() bool {
	return s.accessKey != ""
}

// Capture returns the image URL for targetURL, or the placeholder when no
// access key is configured. It only fails when ctx is already done.
func (s *ScreenshotService) Capture(ctx context.Context, targetURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !s.Configured() {
		logger.CtxDebug(ctx, "No screenshot access key, using placeholder")
		return s.Placeholder(targetURL), nil
	}
	return fmt.Sprintf("%s?access_key=%s&url=%s&wait_until=page_loaded&fresh=true",
		s.baseURL, s.accessKey, encodeURIComponent(targetURL)), nil
}

// Placeholder returns the deterministic stand-in reference for targetURL.
func (s *ScreenshotService) Placeholder(targetURL string) string {
	return fmt.Sprintf("/placeholder.svg?height=%d&width=%d&text=%s", s.height, s.width, encodeURIComponent(targetURL))
}

var componentUnescaper = strings.NewReplacer("+", "%20", "%21", "!", "%27", "'", "%28", "(", "%29", ")", "%2A", "*")

// encodeURIComponent escapes s the way browsers escape a URI component.
func encodeURIComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
