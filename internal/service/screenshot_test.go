package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/timmy/roastpage/internal/config"
)

func TestScreenshotService_Capture(t *testing.T) {
	tests := []struct {
		name string
		key  string
		url  string
		want string
	}{
		{
			name: "configured",
			key:  "abc123",
			url:  "https://example.com/a b?x=1",
			want: "https://api.apiflash.com/v1/urltoimage?access_key=abc123&url=https%3A%2F%2Fexample.com%2Fa%20b%3Fx%3D1&wait_until=page_loaded&fresh=true",
		},
		{
			name: "missing key",
			url:  "https://example.com",
			want: "/placeholder.svg?height=1080&width=1920&text=https%3A%2F%2Fexample.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewScreenshotService(&config.ScreenshotConfig{AccessKey: tt.key})
			got, err := svc.Capture(context.Background(), tt.url)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Capture = %q\nwant      %q", got, tt.want)
			}
		})
	}
}

func TestScreenshotService_CaptureHonorsDoneContext(t *testing.T) {
	svc := NewScreenshotService(&config.ScreenshotConfig{AccessKey: "k"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Capture(ctx, "https://example.com"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestEncodeURIComponent(t *testing.T) {
	tests := map[string]string{
		"a b":          "a%20b",
		"it's (fine)*": "it's%20(fine)*",
		"a+b&c=d":      "a%2Bb%26c%3Dd",
		"~_.-!":        "~_.-!",
	}
	for in, want := range tests {
		if got := encodeURIComponent(in); got != want {
			t.Errorf("encodeURIComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

type memoryStorage struct {
	objects     map[string][]byte
	contentType map[string]string
	uploadErr   error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}, contentType: map[string]string{}}
}

func (m *memoryStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.contentType[key] = contentType
	return nil
}

func (m *memoryStorage) GetURL(key string) string {
	return "https://cdn.example/" + key
}

func (m *memoryStorage) KeyFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, "https://cdn.example/") {
		return "", false
	}
	return strings.TrimPrefix(url, "https://cdn.example/"), true
}

func (m *memoryStorage) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestScreenshotArchive_ArchiveAndRemove(t *testing.T) {
	data := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	store := newMemoryStorage()
	archive := NewScreenshotArchive(store, "screenshots", 5*time.Second)

	url, err := archive.Archive(context.Background(), "roast-1", 2, srv.URL+"/shot")
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if url != "https://cdn.example/screenshots/roast-1-v2.png" {
		t.Errorf("url = %q", url)
	}
	if got := store.contentType["screenshots/roast-1-v2.png"]; got != "image/png" {
		t.Errorf("content type = %q", got)
	}

	if err := archive.Remove(context.Background(), url); err != nil {
		t.Fatal(err)
	}
	if len(store.objects) != 0 {
		t.Errorf("objects left: %d", len(store.objects))
	}
	if err := archive.Remove(context.Background(), "/placeholder.svg"); err != nil {
		t.Errorf("Remove(foreign) = %v", err)
	}
}

func TestScreenshotArchive_RejectsNonImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>quota exceeded</html>"))
	}))
	defer srv.Close()

	archive := NewScreenshotArchive(newMemoryStorage(), "", 5*time.Second)
	if _, err := archive.Archive(context.Background(), "r", 1, srv.URL); err == nil {
		t.Error("expected error for non-image body")
	}
	if _, err := archive.Archive(context.Background(), "r", 1, "/placeholder.svg"); err == nil {
		t.Error("expected error for relative reference")
	}
}

func TestRoastService_ArchiveFailureKeepsProviderURL(t *testing.T) {
	data := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	f := newRoastFixture(t, RoastConfig{})
	f.shots.ref = srv.URL + "/shot.png"
	store := newMemoryStorage()
	store.uploadErr = errors.New("bucket missing")
	f.svc.SetArchive(NewScreenshotArchive(store, "", time.Second))

	id, _ := f.svc.Create(context.Background(), "https://example.com")
	f.queue.runAll(t)

	roast := f.get(t, id)
	if roast.ScreenshotURL == nil || *roast.ScreenshotURL != srv.URL+"/shot.png" {
		t.Errorf("screenshot = %v, want provider URL", roast.ScreenshotURL)
	}
}

func TestRoastService_ArchivesScreenshot(t *testing.T) {
	data := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	f := newRoastFixture(t, RoastConfig{})
	f.shots.ref = srv.URL + "/shot.png"
	store := newMemoryStorage()
	f.svc.SetArchive(NewScreenshotArchive(store, "shots", time.Second))

	id, _ := f.svc.Create(context.Background(), "https://example.com")
	f.queue.runAll(t)

	want := "https://cdn.example/shots/" + id + "-v1.png"
	roast := f.get(t, id)
	if roast.ScreenshotURL == nil || *roast.ScreenshotURL != want {
		t.Errorf("screenshot = %v, want %s", roast.ScreenshotURL, want)
	}
	if got := f.analyzer.refs[0]; got != want {
		t.Errorf("analyzer saw %q, want archived URL", got)
	}

	if err := f.svc.Delete(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if len(store.objects) != 0 {
		t.Errorf("archived screenshot not removed on delete")
	}
}
