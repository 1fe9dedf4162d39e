package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Dylan-Perrill/Sora2-Tool/internal/domain"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/static")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func TestPutVideoReturnsPublicURL(t *testing.T) {
	store := newTestStore(t)

	url, err := store.PutVideo(context.Background(), "job-1/video_abc.mp4", []byte("payload"), "video/mp4")
	if err != nil {
		t.Fatalf("PutVideo: %v", err)
	}
	want := "http://localhost:8080/static/job-1/video_abc.mp4"
	if url != want {
		t.Fatalf("url = %q, want %q", url, want)
	}
	data, err := os.ReadFile(filepath.Join(store.BasePath(), "job-1", "video_abc.mp4"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("stored bytes = %q", data)
	}
}

func TestPutVideoOverwriteIsAllowed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.PutVideo(ctx, "job-1/video_abc.mp4", []byte("one"), "video/mp4")
	if err != nil {
		t.Fatalf("first PutVideo: %v", err)
	}
	second, err := store.PutVideo(ctx, "job-1/video_abc.mp4", []byte("two"), "video/mp4")
	if err != nil {
		t.Fatalf("second PutVideo: %v", err)
	}
	if first != second {
		t.Fatalf("urls diverged: %q vs %q", first, second)
	}
	data, _ := os.ReadFile(filepath.Join(store.BasePath(), "job-1", "video_abc.mp4"))
	if string(data) != "two" {
		t.Fatalf("overwrite did not land: %q", data)
	}
}

func TestPutReferenceImageRejectsCollision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.PutReferenceImage(ctx, "ref-1.png", []byte("img"), "image/png"); err != nil {
		t.Fatalf("first PutReferenceImage: %v", err)
	}
	_, err := store.PutReferenceImage(ctx, "ref-1.png", []byte("img2"), "image/png")
	if !errors.Is(err, domain.ErrStorageConflict) {
		t.Fatalf("error = %v, want ErrStorageConflict", err)
	}
}

func TestPutVideoRejectsTraversalKeys(t *testing.T) {
	store := newTestStore(t)

	for _, key := range []string{"", "../escape.mp4", "a/../../escape.mp4"} {
		if _, err := store.PutVideo(context.Background(), key, []byte("x"), "video/mp4"); err == nil {
			t.Fatalf("key %q accepted, want error", key)
		}
	}
}

func TestPutVideoNormalizesLeadingSlash(t *testing.T) {
	store := newTestStore(t)

	url, err := store.PutVideo(context.Background(), "/job-2/clip.mp4", []byte("x"), "video/mp4")
	if err != nil {
		t.Fatalf("PutVideo: %v", err)
	}
	if url != "http://localhost:8080/static/job-2/clip.mp4" {
		t.Fatalf("url = %q", url)
	}
}
