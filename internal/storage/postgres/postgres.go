package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pribylovaa/auth-system/internal/storage"
	"github.com/pribylovaa/auth-system/migrations"
)

type Storage struct {
	db *pgxpool.Pool
}

// New создает пул подключений к PostgreSQL и, если migrate, применяет миграции.
func New(ctx context.Context, dbURL string, migrate bool) (*Storage, error) {
	const op = "storage.postgres.New"

	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if migrate {
		// goose работает через database/sql; соединения берутся из того же пула.
		sqlDB := stdlib.OpenDBFromPool(db)
		err := migrations.UpPostgres(ctx, sqlDB)
		_ = sqlDB.Close()

		if err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return &Storage{db: db}, nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() {
	s.db.Close()
}

// Ping проверяет доступность базы.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
