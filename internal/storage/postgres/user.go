package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pribylovaa/auth-system/internal/models"
	"github.com/pribylovaa/auth-system/internal/storage"
)

const userColumns = `id, email, password_hash, role, refresh_token, refresh_token_expires_at, created_at, updated_at`

// SaveUser создает нового пользователя в БД.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users(` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.RefreshToken,
		user.RefreshTokenExpiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UserByEmail находит пользователя по email (точное совпадение).
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.postgres.UserByEmail"

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(s.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.postgres.UserByID"

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateRefreshToken перезаписывает refresh-слот одной командой UPDATE.
func (s *Storage) UpdateRefreshToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	const op = "storage.postgres.UpdateRefreshToken"

	query := `
		UPDATE users
		SET refresh_token = $2, refresh_token_expires_at = $3, updated_at = now()
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id, token, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// ClearRefreshToken очищает refresh-слот.
func (s *Storage) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	const op = "storage.postgres.ClearRefreshToken"

	query := `
		UPDATE users
		SET refresh_token = NULL, refresh_token_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// ClearExpiredRefreshTokens очищает слоты, срок которых наступил к now.
func (s *Storage) ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.ClearExpiredRefreshTokens"

	query := `
		UPDATE users
		SET refresh_token = NULL, refresh_token_expires_at = NULL, updated_at = now()
		WHERE refresh_token_expires_at <= $1
	`

	cmdTag, err := s.db.Exec(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		user       models.User
		role       string
		refresh    *string
		refreshExp *time.Time
	)

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&role,
		&refresh,
		&refreshExp,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	user.Role, err = models.ParseRole(role)
	if err != nil {
		return nil, err
	}

	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()

	if refresh != nil && refreshExp != nil {
		user.SetRefreshToken(*refresh, *refreshExp)
	}

	return &user, nil
}
