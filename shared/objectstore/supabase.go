package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	storage_go "github.com/supabase-community/storage-go"
)

const supabaseStoragePath = "/storage/v1"

// SupabaseStore keeps objects in a Supabase Storage bucket
type SupabaseStore struct {
	bucket string
	client *storage_go.Client
	logger *slog.Logger

	// storage-go writes per-upload headers into a header set shared by every
	// request of a client, so uploads go through their own client, one at a time
	uploader *storage_go.Client
	uploadMu sync.Mutex
}

// NewSupabaseStore creates a store for bucket using the project's service key
func NewSupabaseStore(projectURL, serviceKey, bucket string, logger *slog.Logger) *SupabaseStore {
	endpoint := strings.TrimRight(projectURL, "/") + supabaseStoragePath
	headers := map[string]string{"apikey": serviceKey}

	return &SupabaseStore{
		bucket:   bucket,
		client:   storage_go.NewClient(endpoint, serviceKey, headers),
		uploader: storage_go.NewClient(endpoint, serviceKey, headers),
		logger:   logger,
	}
}

// Upload stores data at objectPath, overwriting any existing object
func (s *SupabaseStore) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	upsert := true

	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()

	_, err := s.uploader.UploadFile(s.bucket, objectPath, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectPath, s.mapError(err))
	}

	s.logger.Debug("Object uploaded",
		slog.String("bucket", s.bucket),
		slog.String("path", objectPath),
		slog.Int("size", len(data)),
	)
	return nil
}

// Download fetches the object at objectPath
func (s *SupabaseStore) Download(ctx context.Context, objectPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.client.DownloadFile(s.bucket, objectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", objectPath, s.mapError(err))
	}
	return data, nil
}

// SignedURL returns a time-limited download link
func (s *SupabaseStore) SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	seconds := int(ttl / time.Second)
	if seconds <= 0 {
		seconds = 60
	}

	resp, err := s.client.CreateSignedUrl(s.bucket, objectPath, seconds)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", objectPath, s.mapError(err))
	}
	return resp.SignedURL, nil
}

// Delete removes objects; missing objects are ignored
func (s *SupabaseStore) Delete(ctx context.Context, objectPaths ...string) error {
	if len(objectPaths) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.client.RemoveFile(s.bucket, objectPaths); err != nil {
		return fmt.Errorf("failed to delete objects: %w", s.mapError(err))
	}
	return nil
}

func (s *SupabaseStore) mapError(err error) error {
	var storageErr *storage_go.StorageError
	if errors.As(err, &storageErr) {
		if storageErr.Status == 404 || strings.Contains(strings.ToLower(storageErr.Message), "not found") {
			return ErrObjectNotFound
		}
	}
	return err
}
