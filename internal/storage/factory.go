package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/timmy/roastpage/internal/config"
)

// NewStorage creates an S3-compatible storage client from the storage section.
func NewStorage(cfg *config.StorageConfig) (*S3Storage, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("storage is not configured")
	}

	storeType := StorageType(cfg.Type)
	if storeType == "" {
		storeType = detectStorageType(cfg.Endpoint)
	}

	return NewS3Storage(&S3Config{
		Type:      storeType,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		PublicURL: cfg.PublicURL,
	})
}

// ScreenshotKey names the archived screenshot of one roast execution.
// Each retry gets its own key so a stale upload never overwrites a newer one.
func ScreenshotKey(prefix, roastID string, version int, ext string) string {
	name := fmt.Sprintf("%s-v%d.%s", roastID, version, strings.TrimPrefix(ext, "."))
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// detectStorageType guesses the provider from the endpoint host.
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
