package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/promptlab/promptlab/internal/model"
)

var (
	ErrGenerationNotFound = errors.New("generation not found")
	ErrDuplicatePending   = errors.New("user already has a pending generation")
	ErrNotPending         = errors.New("generation is not pending")
)

type GenerationFilter struct {
	Status        string
	FavoritesOnly bool
	Limit         int
	Offset        int
}

type GenerationRepository interface {
	Create(gen *model.Generation) error
	ByID(id string) (*model.Generation, error)
	ByUserID(userID string, filter GenerationFilter) ([]*model.Generation, error)
	LastCreatedAt(userID string) (*time.Time, error)
	Complete(gen *model.Generation) error
	Fail(id string) error
	FailStale(userID string, olderThan time.Time) (int64, error)
	FailAllStale(olderThan time.Time) (int64, error)
	SetFavorite(id string, favorite bool) error
	Delete(id string) error
}

type generationRepository struct {
	db *sqlx.DB
}

func NewGenerationRepository(db *sqlx.DB) GenerationRepository {
	return &generationRepository{db: db}
}

// Create inserts a pending record. The partial unique index on pending rows
// turns a second concurrent pending insert for the same user into ErrDuplicatePending.
func (r *generationRepository) Create(gen *model.Generation) error {
	query := `INSERT INTO generations (id, user_id, prompt, model, aspect_ratio, source, status, cost, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(query,
		gen.ID,
		gen.UserID,
		gen.Prompt,
		gen.Model,
		gen.AspectRatio,
		gen.Source,
		gen.Status,
		gen.Cost,
		gen.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicatePending
	}

	return err
}

func (r *generationRepository) ByID(id string) (*model.Generation, error) {
	gen := &model.Generation{}
	query := `SELECT * FROM generations WHERE id = $1`

	err := r.db.Get(gen, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrGenerationNotFound
	}
	if err != nil {
		return nil, err
	}

	return gen, nil
}

func (r *generationRepository) ByUserID(userID string, filter GenerationFilter) ([]*model.Generation, error) {
	query := `SELECT * FROM generations WHERE user_id = $1`
	args := []any{userID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.FavoritesOnly {
		query += " AND is_favorite = TRUE"
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var gens []*model.Generation
	err := r.db.Select(&gens, query, args...)
	if err != nil {
		return nil, err
	}

	return gens, nil
}

func (r *generationRepository) LastCreatedAt(userID string) (*time.Time, error) {
	var createdAt time.Time
	query := `SELECT created_at FROM generations WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`

	err := r.db.Get(&createdAt, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &createdAt, nil
}

func (r *generationRepository) Complete(gen *model.Generation) error {
	query := `UPDATE generations
	          SET status = $1, image_url = $2, storage_path = $3, reference_url = $4, reference_path = $5,
	              generation_time_ms = $6, completed_at = $7
	          WHERE id = $8 AND status = $9`

	result, err := r.db.Exec(query,
		model.GenerationStatusCompleted,
		gen.ImageURL,
		gen.StoragePath,
		gen.ReferenceURL,
		gen.ReferencePath,
		gen.GenerationTimeMs,
		gen.CompletedAt,
		gen.ID,
		model.GenerationStatusPending,
	)
	if err != nil {
		return err
	}

	return r.checkTransition(result, gen.ID)
}

func (r *generationRepository) Fail(id string) error {
	query := `UPDATE generations SET status = $1, completed_at = $2 WHERE id = $3 AND status = $4`

	result, err := r.db.Exec(query, model.GenerationStatusFailed, time.Now().UTC(), id, model.GenerationStatusPending)
	if err != nil {
		return err
	}

	return r.checkTransition(result, id)
}

// FailStale marks the user's pending records created before olderThan as failed.
// Running it again is a no-op.
func (r *generationRepository) FailStale(userID string, olderThan time.Time) (int64, error) {
	query := `UPDATE generations SET status = $1, completed_at = $2 WHERE user_id = $3 AND status = $4 AND created_at < $5`

	result, err := r.db.Exec(query, model.GenerationStatusFailed, time.Now().UTC(), userID, model.GenerationStatusPending, olderThan)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (r *generationRepository) FailAllStale(olderThan time.Time) (int64, error) {
	query := `UPDATE generations SET status = $1, completed_at = $2 WHERE status = $3 AND created_at < $4`

	result, err := r.db.Exec(query, model.GenerationStatusFailed, time.Now().UTC(), model.GenerationStatusPending, olderThan)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (r *generationRepository) SetFavorite(id string, favorite bool) error {
	query := `UPDATE generations SET is_favorite = $1 WHERE id = $2`

	result, err := r.db.Exec(query, favorite, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrGenerationNotFound
	}

	return nil
}

func (r *generationRepository) Delete(id string) error {
	query := `DELETE FROM generations WHERE id = $1`

	result, err := r.db.Exec(query, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrGenerationNotFound
	}

	return nil
}

// checkTransition distinguishes a missing record from one that already left pending.
func (r *generationRepository) checkTransition(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	_, err = r.ByID(id)
	if err != nil {
		return err
	}

	return ErrNotPending
}
