// Package postgres provides the PostgreSQL-backed recipient directory.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/imajkumar/chakra-user-service/internal/directory"
	"github.com/imajkumar/chakra-user-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements directory.Directory against the users table.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL directory.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Lookup returns the profile for the given email address.
func (r *Repository) Lookup(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT id, email, first_name, last_name, role, status, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	var user domain.User
	err := r.db.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrNotFound
		}
		return nil, fmt.Errorf("lookup recipient: %w", err)
	}
	return &user, nil
}
