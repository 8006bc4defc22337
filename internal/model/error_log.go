package model

import (
	"time"
)

type ErrorLog struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	GenerationID string    `db:"generation_id"`
	Message      string    `db:"message"`
	Stack        string    `db:"stack"`
	CreatedAt    time.Time `db:"created_at"`
}
