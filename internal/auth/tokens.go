package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

const tokenIssuer = "meridian"

// Claims are the JWT claims carried by access tokens.
type Claims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Issuer signs and validates access tokens with a server-held HS256 secret.
type Issuer struct {
	secret    []byte
	accessTTL time.Duration
}

// NewIssuer constructs an Issuer.
func NewIssuer(secret string, accessTTL time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), accessTTL: accessTTL}
}

// Sign mints an access token for the user bound to a session.
func (i *Issuer) Sign(user *users.User, sessionID string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Email:     user.Email,
		Role:      string(user.Role),
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   formatID(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Parse verifies the token signature and required claims.
func (i *Issuer) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, shared.E(shared.KindInvalidToken, "unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, shared.E(shared.KindInvalidToken, "invalid access token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Issuer != tokenIssuer || claims.Subject == "" || claims.SessionID == "" {
		return nil, shared.E(shared.KindInvalidToken, "invalid access token")
	}
	return claims, nil
}

// NewOpaqueToken returns a 256-bit random token. Used for refresh, reset
// and invite tokens; stores only ever see its hash.
func NewOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken derives the storage key for an opaque token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

