package repository

import (
	"github.com/jmoiron/sqlx"
	"github.com/promptlab/promptlab/internal/model"
)

type ErrorLogRepository interface {
	Create(entry *model.ErrorLog) error
	Recent(limit int) ([]*model.ErrorLog, error)
}

type errorLogRepository struct {
	db *sqlx.DB
}

func NewErrorLogRepository(db *sqlx.DB) ErrorLogRepository {
	return &errorLogRepository{db: db}
}

func (r *errorLogRepository) Create(entry *model.ErrorLog) error {
	query := `INSERT INTO error_logs (id, user_id, generation_id, message, stack, created_at) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(query, entry.ID, entry.UserID, entry.GenerationID, entry.Message, entry.Stack, entry.CreatedAt)
	return err
}

func (r *errorLogRepository) Recent(limit int) ([]*model.ErrorLog, error) {
	var entries []*model.ErrorLog
	query := `SELECT * FROM error_logs ORDER BY created_at DESC LIMIT $1`

	err := r.db.Select(&entries, query, limit)
	if err != nil {
		return nil, err
	}

	return entries, nil
}
