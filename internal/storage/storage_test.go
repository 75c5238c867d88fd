package storage

import "testing"

func TestDetectStorageType(t *testing.T) {
	tests := []struct {
		endpoint string
		want     StorageType
	}{
		{"https://abc.r2.cloudflarestorage.com", StorageTypeR2},
		{"s3.us-west-2.amazonaws.com", StorageTypeS3},
		{"localhost:9000", StorageTypeS3Compatible},
	}
	for _, tt := range tests {
		if got := detectStorageType(tt.endpoint); got != tt.want {
			t.Errorf("detectStorageType(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"https://minio.local:9000/":   "minio.local:9000",
		"http://minio.local:9000/x/y": "minio.local:9000",
		"s3.us-east-1.amazonaws.com":  "s3.us-east-1.amazonaws.com",
	}
	for in, want := range tests {
		if got := normalizeEndpoint(in); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScreenshotKey(t *testing.T) {
	if got := ScreenshotKey("screenshots", "abc", 2, ".png"); got != "screenshots/abc-v2.png" {
		t.Errorf("key = %q", got)
	}
	if got := ScreenshotKey("", "abc", 1, "webp"); got != "abc-v1.webp" {
		t.Errorf("key = %q", got)
	}
}

func TestS3Storage_URLRoundTrip(t *testing.T) {
	s, err := NewS3Storage(&S3Config{
		Type:      StorageTypeS3Compatible,
		Endpoint:  "localhost:9000",
		AccessKey: "k",
		SecretKey: "s",
		Bucket:    "roasts",
	})
	if err != nil {
		t.Fatal(err)
	}

	url := s.GetURL("screenshots/abc-v1.png")
	if url != "http://localhost:9000/roasts/screenshots/abc-v1.png" {
		t.Fatalf("url = %q", url)
	}
	key, ok := s.KeyFromURL(url)
	if !ok || key != "screenshots/abc-v1.png" {
		t.Errorf("KeyFromURL = %q, %v", key, ok)
	}
	if _, ok := s.KeyFromURL("https://api.apiflash.com/v1/urltoimage?x=1"); ok {
		t.Error("foreign URL should not map to a key")
	}
}
