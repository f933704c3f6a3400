package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pathology-records-server/internal/models"
	"pathology-records-server/internal/store"
)

// UserRepository stores accounts. Emails are kept lower-cased and unique.
type UserRepository struct {
	docs collection[models.User]
}

// Create returns ErrDuplicateEmail when the email is taken.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	u.Email = normalizeEmail(u.Email)
	if err := r.ensureEmailFree(ctx, u.Email, ""); err != nil {
		return err
	}
	if err := r.docs.create(ctx, u); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	return r.docs.get(ctx, id)
}

// GetByEmail returns store.ErrNotFound when no account uses email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.docs.first(ctx, store.Where("email", normalizeEmail(email)))
}

// List returns accounts oldest first; an empty role lists everyone.
func (r *UserRepository) List(ctx context.Context, role models.Role) ([]models.User, error) {
	var q store.Query
	if role != "" {
		q = store.Where("role", role)
	}
	return r.docs.find(ctx, q)
}

// Update saves u, checking the email is not used by another account.
func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	u.Email = normalizeEmail(u.Email)
	if err := r.ensureEmailFree(ctx, u.Email, u.ID); err != nil {
		return err
	}
	return r.docs.replace(ctx, u.ID, u)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.docs.delete(ctx, id)
}

func (r *UserRepository) ensureEmailFree(ctx context.Context, email, exceptID string) error {
	existing, err := r.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("checking email: %w", err)
	case existing.ID != exceptID:
		return ErrDuplicateEmail
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EnsureAdmin creates an admin account for email unless one exists.
// It reports whether an account was created.
func (r *UserRepository) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	existing, err := r.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role != models.RoleAdmin {
			return false, fmt.Errorf("bootstrap account %s exists with role %s", existing.Email, existing.Role)
		}
		return false, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}

	admin := &models.User{Email: email, FirstName: "System", LastName: "Administrator", Role: models.RoleAdmin}
	if err := admin.SetPassword(password); err != nil {
		return false, fmt.Errorf("hashing bootstrap password: %w", err)
	}
	if err := r.Create(ctx, admin); err != nil {
		return false, err
	}
	return true, nil
}
