package auth

import "time"

type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// SessionPayload is what a verified session cookie decodes to. Sessions are
// not stored server-side; the token itself is the session.
type SessionPayload struct {
	Username string
}
