package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/auth-system/internal/models"
	"github.com/pribylovaa/auth-system/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// dummyPassword хэшируется при создании CredentialStore; с этим хэшем
// сравнивается пароль неизвестного пользователя, чтобы время ответа
// не выдавало наличие учётной записи.
const dummyPassword = "dummy-password-for-unknown-users"

// CredentialStore — учётные записи поверх storage.UserStorage:
// поиск, создание с хэшированием пароля, проверка пароля и refresh-слот.
type CredentialStore struct {
	storage   storage.UserStorage
	cost      int
	dummyHash []byte
	now       func() time.Time
}

// NewCredentialStore создаёт CredentialStore с заданной стоимостью bcrypt.
func NewCredentialStore(st storage.UserStorage, cost int) (*CredentialStore, error) {
	const op = "service.credentials.NewCredentialStore"

	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%s: bcrypt cost %d out of range [%d, %d]", op, cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &CredentialStore{
		storage:   st,
		cost:      cost,
		dummyHash: dummy,
		now:       time.Now,
	}, nil
}

// FindByEmail ищет пользователя по точному совпадению e-mail.
// Отсутствие пользователя не ошибка: возвращается (nil, nil).
func (c *CredentialStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "service.credentials.FindByEmail"

	user, err := c.storage.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// FindByID ищет пользователя по ID; отсутствие — (nil, nil).
func (c *CredentialStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "service.credentials.FindByID"

	user, err := c.storage.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// Create хэширует пароль и сохраняет пользователя с ролью User и пустым refresh-слотом.
// Уникальность e-mail обеспечивает хранилище: конфликт — ErrDuplicateEmail.
func (c *CredentialStore) Create(ctx context.Context, email, password string) (*models.User, error) {
	const op = "service.credentials.Create"

	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrWeakPassword, err)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := c.now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := c.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrDuplicateEmail)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// VerifyPassword сравнивает пароль с bcrypt-хэшем пользователя.
// Для nil-пользователя сравнение выполняется с фиктивным хэшем и всегда даёт false.
func (c *CredentialStore) VerifyPassword(user *models.User, password string) bool {
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(c.dummyHash, []byte(password))
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// UpdateRefreshToken атомарно перезаписывает refresh-слот в хранилище
// и затем в переданной записи.
func (c *CredentialStore) UpdateRefreshToken(ctx context.Context, user *models.User, token string, expiresAt time.Time) error {
	const op = "service.credentials.UpdateRefreshToken"

	if err := c.storage.UpdateRefreshToken(ctx, user.ID, token, expiresAt.UTC()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	user.SetRefreshToken(token, expiresAt)
	user.UpdatedAt = c.now().UTC()

	return nil
}

// ClearRefreshToken очищает refresh-слот пользователя.
func (c *CredentialStore) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	const op = "service.credentials.ClearRefreshToken"

	if err := c.storage.ClearRefreshToken(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ClearExpiredRefreshTokens очищает все refresh-слоты, срок которых истёк.
func (c *CredentialStore) ClearExpiredRefreshTokens(ctx context.Context) (int64, error) {
	const op = "service.credentials.ClearExpiredRefreshTokens"

	n, err := c.storage.ClearExpiredRefreshTokens(ctx, c.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}
