// storage определяет контракт хранилища учётных записей и общие ошибки,
// в которые адаптеры (postgres, sqlite, redis, mongo) транслируют ошибки драйверов.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/auth-system/internal/models"
)

//go:generate mockgen -destination=../../mocks/mock_storage.go -package=mocks github.com/pribylovaa/auth-system/internal/storage Storage

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/id).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над учётными записями.
//
// Контракт для всех реализаций:
//   - уникальность email обеспечивается самим хранилищем (уникальный индекс,
//     атомарный SETNX), а не проверкой перед вставкой;
//   - UpdateRefreshToken/ClearRefreshToken меняют оба поля refresh-слота
//     одной атомарной операцией над одной записью;
//   - чтение после записи консистентно в пределах одного процесса.
type UserStorage interface {
	// SaveUser создаёт пользователя; ErrAlreadyExists при конфликте email/id.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по точному совпадению email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// UpdateRefreshToken перезаписывает refresh-слот; ErrNotFound, если пользователя нет.
	UpdateRefreshToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error
	// ClearRefreshToken очищает refresh-слот; ErrNotFound, если пользователя нет.
	ClearRefreshToken(ctx context.Context, id uuid.UUID) error
	// ClearExpiredRefreshTokens очищает слоты с истёкшим сроком и возвращает их число.
	ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// Storage задаёт контракт работы с хранилищем.
type Storage interface {
	UserStorage
	Close()
}
