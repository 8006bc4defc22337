package model

import (
	"time"
)

const (
	GenerationStatusPending   = "pending"
	GenerationStatusCompleted = "completed"
	GenerationStatusFailed    = "failed"
)

const (
	GenerationSourceWeb = "web"
	GenerationSourceBot = "bot"
)

// Generation is one image generation request and its outcome.
// Status only moves pending -> completed or pending -> failed.
type Generation struct {
	ID               string     `db:"id"`
	UserID           string     `db:"user_id"`
	Prompt           string     `db:"prompt"`
	Model            string     `db:"model"`
	AspectRatio      string     `db:"aspect_ratio"`
	Source           string     `db:"source"`
	Status           string     `db:"status"`
	Cost             int64      `db:"cost"`
	ImageURL         string     `db:"image_url"`
	StoragePath      string     `db:"storage_path"`
	ReferenceURL     string     `db:"reference_url"`
	ReferencePath    string     `db:"reference_path"`
	GenerationTimeMs int64      `db:"generation_time_ms"`
	IsFavorite       bool       `db:"is_favorite"`
	CreatedAt        time.Time  `db:"created_at"`
	CompletedAt      *time.Time `db:"completed_at"`
}

func (g *Generation) IsPending() bool {
	return g.Status == GenerationStatusPending
}

// StoragePaths returns every object path owned by this record.
func (g *Generation) StoragePaths() []string {
	var paths []string
	if g.StoragePath != "" {
		paths = append(paths, g.StoragePath)
	}
	if g.ReferencePath != "" {
		paths = append(paths, g.ReferencePath)
	}
	return paths
}
