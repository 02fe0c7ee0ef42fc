package entity

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateUsername = errors.New("username already taken")
)

// User represents an account row in the `users` table.
// PasswordHash never leaves the service layer; handlers serialize a separate view.
type User struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	Email        *string   `db:"email"`
	PasswordHash string    `db:"password_hash"`
	IsAdmin      bool      `db:"is_admin"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Patch holds the editable fields of a user; nil means unchanged.
// PasswordHash is already hashed by the service.
type Patch struct {
	Username     *string
	Email        *string
	PasswordHash *string
	IsAdmin      *bool
}

// Apply writes the patch onto u.
func (p Patch) Apply(u *User) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = p.Email
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.IsAdmin != nil {
		u.IsAdmin = *p.IsAdmin
	}
}
