// Package users provides a PostgreSQL-backed repository for administrative
// accounts.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wiresaver/backend/internal/common"
	"github.com/wiresaver/backend/internal/dbx"
	"github.com/wiresaver/backend/internal/server/models"
)

// Postgres error code for unique_violation.
const uniqueViolation = "23505"

const userColumns = `id, username, password, first_name, last_name, email, role,
		is_active, is_admin, two_factor_secret, two_factor_enabled,
		last_login_at, created_at, updated_at`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user and returns it with the generated id and
// timestamps filled in. A username collision maps to common.ErrUsernameTaken
// via the unique constraint, so callers racing on the same name get a clean
// duplicate error instead of a raw database failure.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (username, password, first_name, last_name, email,
			role, is_active, is_admin, two_factor_secret, two_factor_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Password, user.FirstName, user.LastName, user.Email,
		user.Role, user.IsActive, user.IsAdmin, user.TwoFactorSecret, user.TwoFactorEnabled).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrUsernameTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// GetByUsername returns the user with the given username, or
// common.ErrorNotFound.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

// GetByID returns the user with the given id, or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// UpdateTwoFactor stores the two-factor secret and enablement flag.
// A nil secret clears the column.
func (r *PostgresRepository) UpdateTwoFactor(ctx context.Context, id int64, secret *string, enabled bool) error {
	query := `
		UPDATE users
		SET two_factor_secret = $2, two_factor_enabled = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, secret, enabled)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// UpdateLastLogin records a successful login.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id int64) error {
	query := `UPDATE users SET last_login_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteByUsername removes a user; sessions cascade via the schema.
// Deleting a missing user is not an error.
func (r *PostgresRepository) DeleteByUsername(ctx context.Context, username string) error {
	query := `DELETE FROM users WHERE username = $1`
	if _, err := r.db.ExecContext(ctx, query, username); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Username, &user.Password,
		&user.FirstName, &user.LastName, &user.Email, &user.Role,
		&user.IsActive, &user.IsAdmin, &user.TwoFactorSecret, &user.TwoFactorEnabled,
		&user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}
