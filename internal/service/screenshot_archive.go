package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/roastpage/internal/logger"
	"github.com/timmy/roastpage/internal/storage"
	_ "golang.org/x/image/webp"
)

const maxScreenshotBytes = 20 << 20

// ScreenshotArchive copies captured images into object storage so stored
// references keep working after the imaging provider's cache expires.
type ScreenshotArchive struct {
	client  *resty.Client
	storage storage.ObjectStorage
	prefix  string
}

// NewScreenshotArchive creates a ScreenshotArchive uploading under prefix.
func NewScreenshotArchive(store storage.ObjectStorage, prefix string, timeout time.Duration) *ScreenshotArchive {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "image/*")
	return &ScreenshotArchive{
		client:  client,
		storage: store,
		prefix:  prefix,
	}
}

// Archive downloads sourceURL and uploads it for the given roast execution,
// returning the stored object's public URL.
func (a *ScreenshotArchive) Archive(ctx context.Context, roastID string, version int, sourceURL string) (string, error) {
	if !isAbsoluteHTTP(sourceURL) {
		return "", fmt.Errorf("not an absolute http(s) URL: %q", sourceURL)
	}

	start := time.Now()
	resp, err := a.client.R().
		SetContext(ctx).
		Get(sourceURL)
	if err != nil {
		return "", fmt.Errorf("failed to download screenshot: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("screenshot download returned HTTP %d", resp.StatusCode())
	}

	data := resp.Body()
	if len(data) == 0 {
		return "", fmt.Errorf("screenshot download returned an empty body")
	}
	if len(data) > maxScreenshotBytes {
		return "", fmt.Errorf("screenshot is %d bytes, limit is %d", len(data), maxScreenshotBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("downloaded screenshot is not a supported image: %w", err)
	}

	key := storage.ScreenshotKey(a.prefix, roastID, version, format)
	if err := a.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), getContentType(format)); err != nil {
		return "", err
	}

	logger.With(logger.Fields{
		logger.FieldSize: len(data),
		"format":         format,
		"width":          cfg.Width,
		"height":         cfg.Height,
		"storage_key":    key,
	}).WithDuration(start).Info(ctx, "Archived screenshot")

	return a.storage.GetURL(key), nil
}

// Remove deletes an archived screenshot. References that were not produced
// by this archive are ignored.
func (a *ScreenshotArchive) Remove(ctx context.Context, screenshotURL string) error {
	key, ok := a.storage.KeyFromURL(screenshotURL)
	if !ok {
		return nil
	}
	return a.storage.Delete(ctx, key)
}

func getContentType(format string) string {
	switch format {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

func isAbsoluteHTTP(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
