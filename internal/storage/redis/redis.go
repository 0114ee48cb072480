// redis — хранилище учётных записей в Redis.
//
// Раскладка ключей (prefix по умолчанию "auth"):
//
//	<prefix>:user:<id>           hash с полями записи
//	<prefix>:user:email:<email>  id пользователя (индекс уникальности)
//	<prefix>:refresh_exp         zset id -> срок refresh-токена (unix ms)
//
// Все изменения выполняются Lua-скриптами и потому атомарны.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/pribylovaa/auth-system/internal/storage"
	"github.com/redis/go-redis/v9"
)

type Storage struct {
	rdb    *redis.Client
	prefix string
}

// New создаёт клиент из URL (например, redis://:pass@host:6379/0) и проверяет соединение.
func New(ctx context.Context, redisURL, prefix string) (*Storage, error) {
	const op = "storage.redis.New"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewWithClient(rdb, prefix), nil
}

// NewWithClient оборачивает готовый клиент. Пустой prefix заменяется на "auth".
func NewWithClient(rdb *redis.Client, prefix string) *Storage {
	if prefix == "" {
		prefix = "auth"
	}

	return &Storage{rdb: rdb, prefix: prefix}
}

// Close закрывает клиент Redis.
func (s *Storage) Close() {
	_ = s.rdb.Close()
}

// Ping проверяет доступность Redis.
func (s *Storage) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Storage) userKeyPrefix() string { return s.prefix + ":user:" }

func (s *Storage) userKey(id string) string { return s.userKeyPrefix() + id }

func (s *Storage) emailKey(email string) string { return s.prefix + ":user:email:" + email }

func (s *Storage) expiryKey() string { return s.prefix + ":refresh_exp" }

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
