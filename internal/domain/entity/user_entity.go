package entity

import (
	"strings"
	"time"
)

// User is the aggregate root for the credential store.
// Password holds the bcrypt hash and never leaves the service layer.
type User struct {
	ID        string
	Email     string
	Password  string
	Name      string
	Role      Role
	AvatarURL string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeEmail is the canonical form used for every lookup and write.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Clone returns a copy safe to hand out of an in-memory store.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
