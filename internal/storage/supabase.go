package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	storage_go "github.com/supabase-community/storage-go"

	"github.com/Dylan-Perrill/Sora2-Tool/internal/domain"
)

// SupabaseStore persists artifacts into Supabase storage buckets: one bucket
// for finished videos, one for user-supplied reference images. Objects are
// addressed by caller-supplied keys and exposed through public URLs.
type SupabaseStore struct {
	videoBucket     string
	referenceBucket string

	// Seams over the storage-go client so tests can observe the upload
	// options and inject API errors.
	upload    func(bucket, key string, data []byte, opts storage_go.FileOptions) error
	publicURL func(bucket, key string) string
}

// SupabaseOptions configures a SupabaseStore. URL points at the storage API
// root (https://<project>.supabase.co/storage/v1); the service key is injected
// by the caller, never read from ambient state.
type SupabaseOptions struct {
	URL             string
	ServiceKey      string
	VideoBucket     string
	ReferenceBucket string
}

// NewSupabaseStore constructs a store over the two configured buckets.
func NewSupabaseStore(opts SupabaseOptions) (*SupabaseStore, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("storage: supabase url is required")
	}
	if strings.TrimSpace(opts.ServiceKey) == "" {
		return nil, errors.New("storage: supabase service key is required")
	}
	videoBucket := opts.VideoBucket
	if videoBucket == "" {
		videoBucket = "videos"
	}
	referenceBucket := opts.ReferenceBucket
	if referenceBucket == "" {
		referenceBucket = "reference-images"
	}
	client := storage_go.NewClient(strings.TrimRight(opts.URL, "/"), opts.ServiceKey, nil)
	return &SupabaseStore{
		videoBucket:     videoBucket,
		referenceBucket: referenceBucket,
		upload: func(bucket, key string, data []byte, opts storage_go.FileOptions) error {
			_, err := client.UploadFile(bucket, key, bytes.NewReader(data), opts)
			return err
		},
		publicURL: func(bucket, key string) string {
			return client.GetPublicUrl(bucket, key).SignedURL
		},
	}, nil
}

// PutVideo uploads a finished video with upsert semantics. Re-uploading the
// same key on a migration retry lands on the same object.
func (s *SupabaseStore) PutVideo(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	upsert := true
	if err := s.upload(s.videoBucket, cleanKey, data, storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}); err != nil {
		return "", fmt.Errorf("storage: upload video %s: %w", cleanKey, err)
	}
	return s.publicURL(s.videoBucket, cleanKey), nil
}

// PutReferenceImage uploads a reference image without upsert. The storage API
// rejects duplicate keys, which surfaces caller bugs that reuse a key instead
// of generating a fresh one per upload.
func (s *SupabaseStore) PutReferenceImage(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if err := s.upload(s.referenceBucket, cleanKey, data, storage_go.FileOptions{
		ContentType: &contentType,
	}); err != nil {
		if isConflict(err) {
			return "", fmt.Errorf("storage: %w: %s", domain.ErrStorageConflict, cleanKey)
		}
		return "", fmt.Errorf("storage: upload reference image %s: %w", cleanKey, err)
	}
	return s.publicURL(s.referenceBucket, cleanKey), nil
}

// isConflict classifies a duplicate-key rejection. The structured API error
// carries the HTTP status; the message match remains as a fallback for error
// values that arrive unwrapped.
func isConflict(err error) bool {
	var storageErr *storage_go.StorageError
	if errors.As(err, &storageErr) {
		return storageErr.Status == http.StatusConflict
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate") || strings.Contains(msg, "already exists")
}
