package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opsdash/scheduler/internal/model"
	"github.com/opsdash/scheduler/internal/store"
)

type userStore struct {
	tx *sql.Tx
}

func (u *userStore) Create(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = nowUTC()
	}
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, created_at) VALUES ($1,$2,$3)`,
		user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %q: %w", user.Email, store.ErrDuplicateEmail)
		}
		return fmt.Errorf("create user %q: %w", user.Email, err)
	}
	return nil
}

func (u *userStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := u.tx.QueryRowContext(ctx, `
		SELECT email, password_hash, created_at FROM users WHERE email = $1`, email,
	).Scan(&user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get user %q: %w", email, err)
	}
	return &user, nil
}
