package entity

import "time"

// Session binds an opaque bearer token to a user until ExpiresAt.
// It is never reactivated: revocation deletes the row and a new login creates a new one.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ValidAt reports whether the session has not yet expired at now.
func (s *Session) ValidAt(now time.Time) bool {
	return s != nil && s.ExpiresAt.After(now)
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
