package storage

import (
	"fmt"
	"io"
	"strings"
	"time"

	supabase "github.com/supabase-community/storage-go"
)

// SupabaseStorage implements Storage on a Supabase storage bucket
type SupabaseStorage struct {
	client  *supabase.Client
	bucket  string
	baseURL string
}

func NewSupabaseStorage(supabaseURL, serviceKey, bucket string) *SupabaseStorage {
	baseURL := strings.TrimSuffix(supabaseURL, "/")
	client := supabase.NewClient(baseURL+"/storage/v1", serviceKey, nil)

	return &SupabaseStorage{
		client:  client,
		bucket:  bucket,
		baseURL: baseURL,
	}
}

func (s *SupabaseStorage) Save(path string, data io.Reader, contentType string) error {
	upsert := true
	_, err := s.client.UploadFile(s.bucket, path, data, supabase.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to supabase: %w", err)
	}

	return nil
}

// Delete removes objects in one call. Supabase ignores paths that do not exist.
func (s *SupabaseStorage) Delete(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	_, err := s.client.RemoveFile(s.bucket, paths)
	if err != nil {
		return fmt.Errorf("failed to delete from supabase: %w", err)
	}

	return nil
}

func (s *SupabaseStorage) URL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, path)
}

func (s *SupabaseStorage) SignedURL(path string, expiry time.Duration) (string, error) {
	resp, err := s.client.CreateSignedUrl(s.bucket, path, int(expiry.Seconds()))
	if err != nil {
		return "", fmt.Errorf("failed to sign supabase URL: %w", err)
	}

	if strings.HasPrefix(resp.SignedURL, "http") {
		return resp.SignedURL, nil
	}
	return s.baseURL + "/storage/v1" + resp.SignedURL, nil
}
