package auth

import (
	"time"

	"github.com/meridian-pim/meridian/internal/users"
)

// TokenPair is the access/refresh credential pair minted per session.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResult is returned on a fully authenticated login.
type LoginResult struct {
	TokenPair
	User *users.User `json:"user"`
}

// session is the redis-persisted state for one login session. It tracks
// the hash of the currently valid refresh token; rotation replaces it.
type session struct {
	UserID      int64     `json:"user_id"`
	RefreshHash string    `json:"refresh_hash"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// refreshRecord is the redis-persisted state behind one refresh token.
type refreshRecord struct {
	UserID    int64     `json:"user_id"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
