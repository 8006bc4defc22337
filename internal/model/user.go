package model

import (
	"time"
)

type User struct {
	ID         string    `db:"id"`
	Email      *string   `db:"email"`       // Nullable for bot users
	ExternalID *string   `db:"external_id"` // Bot platform identity
	Name       string    `db:"name"`
	Locale     string    `db:"locale"`
	CreatedAt  time.Time `db:"created_at"`
}

func (u *User) EmailAddress() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}
