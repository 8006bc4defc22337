package storage

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	cfg "github.com/promptlab/promptlab/internal/config"
)

// Storage defines the interface for generated asset storage
type Storage interface {
	// Save stores an object at the given path
	Save(path string, data io.Reader, contentType string) error

	// Delete removes the objects at the given paths. Paths that do not exist
	// are not an error.
	Delete(paths ...string) error

	// URL returns the public URL for accessing the object
	URL(path string) string

	// SignedURL returns a time-limited URL for a private object
	SignedURL(path string, expiry time.Duration) (string, error)
}

// New creates the storage backend selected by STORAGE_DRIVER
func New(c *cfg.Config) (Storage, error) {
	switch c.StorageDriver {
	case "s3":
		slog.Info("initializing S3 storage",
			"bucket", c.S3Bucket,
			"region", c.S3Region,
			"endpoint", c.S3Endpoint,
		)
		return NewS3Storage(S3Config{
			Region:               c.S3Region,
			Bucket:               c.S3Bucket,
			AccessKey:            c.S3AccessKey,
			SecretKey:            c.S3SecretKey,
			Endpoint:             c.S3Endpoint,
			PresignExpiryPublic:  c.S3PresignExpiryPublic,
			PresignExpiryPrivate: c.S3PresignExpiryPrivate,
		})
	case "supabase":
		slog.Info("initializing supabase storage", "bucket", c.SupabaseBucket)
		return NewSupabaseStorage(c.SupabaseURL, c.SupabaseServiceKey, c.SupabaseBucket), nil
	case "memory":
		slog.Warn("using in-memory storage, generated images are lost on restart")
		return NewMemoryStorage(c.AppURL + "/files"), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", c.StorageDriver)
	}
}
