package repository

import (
	"context"
	"fmt"
	"time"

	"pathology-records-server/internal/models"
	"pathology-records-server/internal/store"
)

// RefreshTokenRepository keeps issued refresh tokens by digest.
type RefreshTokenRepository struct {
	docs collection[models.RefreshToken]
}

// Issue records the digest of token for userID.
func (r *RefreshTokenRepository) Issue(ctx context.Context, userID, token string, expiresAt time.Time) error {
	t := &models.RefreshToken{
		UserID:    userID,
		TokenHash: models.HashToken(token),
		ExpiresAt: expiresAt.UTC(),
	}
	if err := r.docs.create(ctx, t); err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	return nil
}

// Lookup finds the stored record for a raw token.
func (r *RefreshTokenRepository) Lookup(ctx context.Context, token string) (*models.RefreshToken, error) {
	return r.docs.first(ctx, store.Where("tokenHash", models.HashToken(token)))
}

// Revoke marks t unusable.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, t *models.RefreshToken) error {
	if t.IsRevoked {
		return nil
	}
	t.IsRevoked = true
	return r.docs.replace(ctx, t.ID, t)
}

// RevokeAll revokes every live token of userID.
func (r *RefreshTokenRepository) RevokeAll(ctx context.Context, userID string) error {
	tokens, err := r.docs.find(ctx, store.Where("userId", userID).And("isRevoked", false))
	if err != nil {
		return err
	}
	for i := range tokens {
		if err := r.Revoke(ctx, &tokens[i]); err != nil {
			return err
		}
	}
	return nil
}
