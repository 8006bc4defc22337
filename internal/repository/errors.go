package repository

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrDuplicateEntry = errors.New("duplicate entry")
)

// isUniqueViolation checks for unique constraint violations (works for both SQLite and PostgreSQL)
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "duplicate key value")
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
