package repository

import (
	"github.com/jmoiron/sqlx"
	"github.com/promptlab/promptlab/internal/model"
)

type FavoriteRepository interface {
	Add(userID, slug string) error
	Remove(userID, slug string) error
	ByUserID(userID string) ([]*model.PromptFavorite, error)
}

type favoriteRepository struct {
	db *sqlx.DB
}

func NewFavoriteRepository(db *sqlx.DB) FavoriteRepository {
	return &favoriteRepository{db: db}
}

// Add is idempotent: favoriting twice keeps a single row.
func (r *favoriteRepository) Add(userID, slug string) error {
	query := `INSERT INTO prompt_favorites (user_id, slug, created_at) VALUES ($1, $2, $3)
	          ON CONFLICT (user_id, slug) DO NOTHING`

	_, err := r.db.Exec(query, userID, slug, nowUTC())
	return err
}

func (r *favoriteRepository) Remove(userID, slug string) error {
	query := `DELETE FROM prompt_favorites WHERE user_id = $1 AND slug = $2`
	_, err := r.db.Exec(query, userID, slug)
	return err
}

func (r *favoriteRepository) ByUserID(userID string) ([]*model.PromptFavorite, error) {
	var favorites []*model.PromptFavorite
	query := `SELECT * FROM prompt_favorites WHERE user_id = $1 ORDER BY created_at DESC`

	err := r.db.Select(&favorites, query, userID)
	if err != nil {
		return nil, err
	}

	return favorites, nil
}

type UnlockRepository interface {
	Create(unlock *model.PromptUnlock) error
	Exists(userID, slug string) (bool, error)
	Slugs(userID string) ([]string, error)
}

type unlockRepository struct {
	db *sqlx.DB
}

func NewUnlockRepository(db *sqlx.DB) UnlockRepository {
	return &unlockRepository{db: db}
}

func (r *unlockRepository) Create(unlock *model.PromptUnlock) error {
	query := `INSERT INTO prompt_unlocks (user_id, slug, price, created_at) VALUES ($1, $2, $3, $4)`

	_, err := r.db.Exec(query, unlock.UserID, unlock.Slug, unlock.Price, unlock.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEntry
	}

	return err
}

func (r *unlockRepository) Exists(userID, slug string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM prompt_unlocks WHERE user_id = $1 AND slug = $2`

	err := r.db.Get(&count, query, userID, slug)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *unlockRepository) Slugs(userID string) ([]string, error) {
	var slugs []string
	query := `SELECT slug FROM prompt_unlocks WHERE user_id = $1`

	err := r.db.Select(&slugs, query, userID)
	if err != nil {
		return nil, err
	}

	return slugs, nil
}
