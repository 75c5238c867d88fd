package storage

import (
	"context"
	"io"
)

// ObjectStorage is the subset of object storage the screenshot archive needs.
type ObjectStorage interface {
	// Upload stores an object under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// GetURL returns the public URL of key.
	GetURL(key string) string

	// KeyFromURL reverses GetURL. ok is false for URLs this storage did not produce.
	KeyFromURL(url string) (key string, ok bool)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
