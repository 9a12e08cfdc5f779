package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/novap2p/novap2p/shared/database"
	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/models"
)

// UserRepository reads credentials from the users table owned by user-service.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, username, password_hash, role, created_at
		FROM users
		WHERE email = $1
	`

	var user models.User
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, errs.ErrNotFound)
	}
	if err != nil {
		return nil, database.Wrap("failed to get user", err)
	}
	return &user, nil
}
