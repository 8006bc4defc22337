package model

import (
	"time"
)

// Prompt is a catalog entry loaded from content/prompts.
type Prompt struct {
	Slug         string    `json:"slug"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Tags         []string  `json:"tags"`
	Model        string    `json:"model"`
	AspectRatio  string    `json:"aspect_ratio,omitempty"`
	Premium      bool      `json:"premium"`
	Price        int64     `json:"price"`
	PreviewImage string    `json:"preview_image,omitempty"`
	Date         time.Time `json:"date"`
	Text         string    `json:"text,omitempty"`
	NotesHTML    string    `json:"notes_html,omitempty"`
	Locked       bool      `json:"locked"`
}

type PromptFavorite struct {
	UserID    string    `db:"user_id"`
	Slug      string    `db:"slug"`
	CreatedAt time.Time `db:"created_at"`
}

type PromptUnlock struct {
	UserID    string    `db:"user_id"`
	Slug      string    `db:"slug"`
	Price     int64     `db:"price"`
	CreatedAt time.Time `db:"created_at"`
}

// PromptTag is a catalog tag with its display title.
type PromptTag struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Count int    `json:"count"`
}
