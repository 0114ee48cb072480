package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/auth-system/internal/models"
	"github.com/pribylovaa/auth-system/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Поля hash'а пользователя.
const (
	fieldID           = "id"
	fieldEmail        = "email"
	fieldPasswordHash = "password_hash"
	fieldRole         = "role"
	fieldRefresh      = "refresh_token"
	fieldRefreshExp   = "refresh_exp"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
)

// saveUserScript занимает e-mail через SETNX и только затем пишет запись.
// KEYS: email, user. ARGV: id, затем пары поле/значение. Возвращает 1 или 0 при конфликте.
var saveUserScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 0
end
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[2], unpack(ARGV, 2))
return 1
`)

// updateRefreshScript перезаписывает слот существующего пользователя.
// KEYS: user, expiry zset. ARGV: token, exp ms, updated ms, id.
var updateRefreshScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'refresh_token', ARGV[1], 'refresh_exp', ARGV[2], 'updated_at', ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[4])
return 1
`)

// clearRefreshScript очищает слот существующего пользователя.
// KEYS: user, expiry zset. ARGV: updated ms, id.
var clearRefreshScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HDEL', KEYS[1], 'refresh_token', 'refresh_exp')
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[2])
return 1
`)

// clearIfExpiredScript очищает слот одного пользователя, если его срок
// всё ещё <= now (слот мог быть перевыпущен после выборки из zset).
// KEYS: user, expiry zset. ARGV: now ms, id.
var clearIfExpiredScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[2], ARGV[2])
if not score or tonumber(score) > tonumber(ARGV[1]) then
  return 0
end
redis.call('ZREM', KEYS[2], ARGV[2])
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HDEL', KEYS[1], 'refresh_token', 'refresh_exp')
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
return 1
`)

// SaveUser создаёт пользователя; занятый e-mail или ID — ErrAlreadyExists.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.redis.SaveUser"

	id := user.ID.String()
	args := []any{
		id,
		fieldID, id,
		fieldEmail, user.Email,
		fieldPasswordHash, user.PasswordHash,
		fieldRole, string(user.Role),
		fieldCreatedAt, toMillis(user.CreatedAt),
		fieldUpdatedAt, toMillis(user.UpdatedAt),
	}

	ok, err := saveUserScript.Run(ctx, s.rdb, []string{s.emailKey(user.Email), s.userKey(id)}, args...).Int()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if ok == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	if user.HasRefreshToken() {
		if err := s.UpdateRefreshToken(ctx, user.ID, *user.RefreshToken, *user.RefreshTokenExpiresAt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

// UserByEmail находит пользователя по email через индекс.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.redis.UserByEmail"

	id, err := s.rdb.Get(ctx, s.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.redis.UserByID"

	user, err := s.load(ctx, id.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateRefreshToken перезаписывает refresh-слот.
func (s *Storage) UpdateRefreshToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	const op = "storage.redis.UpdateRefreshToken"

	key := id.String()
	ok, err := updateRefreshScript.Run(ctx, s.rdb,
		[]string{s.userKey(key), s.expiryKey()},
		token, toMillis(expiresAt), toMillis(time.Now()), key,
	).Int()

	return scriptResult(op, ok, err)
}

// ClearRefreshToken очищает refresh-слот.
func (s *Storage) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	const op = "storage.redis.ClearRefreshToken"

	key := id.String()
	ok, err := clearRefreshScript.Run(ctx, s.rdb,
		[]string{s.userKey(key), s.expiryKey()},
		toMillis(time.Now()), key,
	).Int()

	return scriptResult(op, ok, err)
}

// ClearExpiredRefreshTokens очищает слоты, срок которых наступил к now.
// Кандидаты выбираются из zset, каждый слот очищается отдельным скриптом
// с явно объявленными ключами.
// В Redis Cluster префикс должен быть hash tag'ом (например "{auth}"),
// чтобы hash пользователя и zset попадали в один слот.
func (s *Storage) ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.redis.ClearExpiredRefreshTokens"

	nowMs := toMillis(now)

	ids, err := s.rdb.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(nowMs, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var cleared int64
	for _, id := range ids {
		ok, err := clearIfExpiredScript.Run(ctx, s.rdb,
			[]string{s.userKey(id), s.expiryKey()},
			nowMs, id,
		).Int()
		if err != nil {
			return cleared, fmt.Errorf("%s: %w", op, err)
		}

		cleared += int64(ok)
	}

	return cleared, nil
}

func scriptResult(op string, ok int, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if ok == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// load читает hash пользователя и собирает models.User.
func (s *Storage) load(ctx context.Context, id string) (*models.User, error) {
	m, err := s.rdb.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return nil, err
	}

	if len(m) == 0 {
		return nil, storage.ErrNotFound
	}

	return decodeUser(m)
}

func decodeUser(m map[string]string) (*models.User, error) {
	id, err := uuid.Parse(m[fieldID])
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}

	createdAt, err := strconv.ParseInt(m[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	updatedAt, err := strconv.ParseInt(m[fieldUpdatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	role, err := models.ParseRole(m[fieldRole])
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           id,
		Email:        m[fieldEmail],
		PasswordHash: m[fieldPasswordHash],
		Role:         role,
		CreatedAt:    fromMillis(createdAt),
		UpdatedAt:    fromMillis(updatedAt),
	}

	token, hasToken := m[fieldRefresh]
	rawExp, hasExp := m[fieldRefreshExp]

	if hasToken && hasExp {
		exp, err := strconv.ParseInt(rawExp, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse refresh_exp: %w", err)
		}

		user.SetRefreshToken(token, fromMillis(exp))
	}

	return user, nil
}
