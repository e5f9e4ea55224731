package models

import "time"

// User is the identity record owned by the auth subsystem.
type User struct {
	ID           string         `json:"id"` // uuid
	Email        string         `json:"email"`
	BannedUntil  *time.Time     `json:"banned_until,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastSignInAt *time.Time     `json:"last_sign_in_at,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// IsBanned is true only when a ban timestamp exists and lies strictly after now.
func (u *User) IsBanned(now time.Time) bool {
	return u != nil && u.BannedUntil != nil && u.BannedUntil.After(now)
}

// Session is the credential bundle issued and refreshed by the auth subsystem.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

func (s *Session) Expired(now time.Time) bool {
	return s == nil || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt))
}

// Identity is what a verified bearer credential proves about the caller.
type Identity struct {
	UserID string
	Email  string
}

type AuthEventKind string

const (
	AuthInitialSession   AuthEventKind = "INITIAL_SESSION"
	AuthSignedIn         AuthEventKind = "SIGNED_IN"
	AuthSignedOut        AuthEventKind = "SIGNED_OUT"
	AuthTokenRefreshed   AuthEventKind = "TOKEN_REFRESHED"
	AuthUserUpdated      AuthEventKind = "USER_UPDATED"
	AuthPasswordRecovery AuthEventKind = "PASSWORD_RECOVERY"
)

// AuthEvent is pushed by the auth subsystem whenever the signed-in session
// changes. Session is nil when nobody is signed in.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}
