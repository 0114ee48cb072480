// sqlite — встраиваемое хранилище учётных записей поверх modernc.org/sqlite
// (без cgo). Подходит для локального запуска и тестов.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pribylovaa/auth-system/internal/storage"
	"github.com/pribylovaa/auth-system/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Storage хранит пользователей в одном файле SQLite.
// Запись сериализуется единственным соединением.
type Storage struct {
	db *sql.DB
}

// New открывает (или создаёт) файл базы и, если migrate, применяет миграции.
func New(ctx context.Context, path string, migrate bool) (*Storage, error) {
	const op = "storage.sqlite.New"

	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%s: storage path is required", op)
	}

	dsn := filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if migrate {
		if err := migrations.UpSQLite(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return &Storage{db: db}, nil
}

// Close закрывает базу.
func (s *Storage) Close() {
	_ = s.db.Close()
}

// Ping проверяет доступность базы.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// toMillis переводит время в миллисекунды UTC для хранения.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// fromMillis восстанавливает время из миллисекунд (UTC).
func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// isUniqueViolation распознаёт нарушение UNIQUE/PRIMARY KEY.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}

	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
