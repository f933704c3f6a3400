package models

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/sha3"
)

// RefreshToken records an issued refresh token. Only a digest of the
// token is stored.
type RefreshToken struct {
	BaseModel
	UserID    string    `json:"userId"`
	TokenHash string    `json:"tokenHash"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsRevoked bool      `json:"isRevoked"`
}

// HashToken returns the digest stored for a refresh token.
func HashToken(token string) string {
	sum := sha3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Usable reports whether the token can still be exchanged at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.IsRevoked && now.Before(t.ExpiresAt)
}
