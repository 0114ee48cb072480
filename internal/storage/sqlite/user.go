package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/auth-system/internal/models"
	"github.com/pribylovaa/auth-system/internal/storage"
)

const userColumns = `id, email, password_hash, role, refresh_token, refresh_token_expires_at, created_at, updated_at`

// SaveUser создает нового пользователя.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.sqlite.SaveUser"

	var (
		refresh    sql.NullString
		refreshExp sql.NullInt64
	)

	if user.HasRefreshToken() {
		refresh = sql.NullString{String: *user.RefreshToken, Valid: true}
		refreshExp = sql.NullInt64{Int64: toMillis(*user.RefreshTokenExpiresAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users(`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		string(user.Role),
		refresh,
		refreshExp,
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UserByEmail находит пользователя по email (точное совпадение).
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.sqlite.UserByEmail"

	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)

	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.sqlite.UserByID"

	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())

	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateRefreshToken перезаписывает refresh-слот одной командой UPDATE.
func (s *Storage) UpdateRefreshToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	const op = "storage.sqlite.UpdateRefreshToken"

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = ?, refresh_token_expires_at = ?, updated_at = ?
		WHERE id = ?`,
		token,
		toMillis(expiresAt),
		toMillis(time.Now()),
		id.String(),
	)

	return affectedOne(op, res, err)
}

// ClearRefreshToken очищает refresh-слот.
func (s *Storage) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	const op = "storage.sqlite.ClearRefreshToken"

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = NULL, refresh_token_expires_at = NULL, updated_at = ?
		WHERE id = ?`,
		toMillis(time.Now()),
		id.String(),
	)

	return affectedOne(op, res, err)
}

// ClearExpiredRefreshTokens очищает слоты, срок которых наступил к now.
func (s *Storage) ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.sqlite.ClearExpiredRefreshTokens"

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = NULL, refresh_token_expires_at = NULL, updated_at = ?
		WHERE refresh_token_expires_at IS NOT NULL AND refresh_token_expires_at <= ?`,
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func affectedOne(op string, res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		user       models.User
		id         string
		role       string
		refresh    sql.NullString
		refreshExp sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)

	err := row.Scan(&id, &user.Email, &user.PasswordHash, &role, &refresh, &refreshExp, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	user.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse user id %q: %w", id, err)
	}

	user.Role, err = models.ParseRole(role)
	if err != nil {
		return nil, err
	}

	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)

	if refresh.Valid && refreshExp.Valid {
		user.SetRefreshToken(refresh.String, fromMillis(refreshExp.Int64))
	}

	return &user, nil
}
