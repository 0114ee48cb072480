// migrations содержит встроенные SQL-миграции схемы users
// для PostgreSQL и SQLite и применяет их через goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Up применяет все непримененные миграции для диалекта.
// dir — подкаталог миграций ("postgres" или "sqlite").
func Up(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string) error {
	const op = "migrations.Up"

	fsys, err := fs.Sub(files, dir)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UpPostgres применяет миграции PostgreSQL.
func UpPostgres(ctx context.Context, db *sql.DB) error {
	return Up(ctx, db, goose.DialectPostgres, "postgres")
}

// UpSQLite применяет миграции SQLite.
func UpSQLite(ctx context.Context, db *sql.DB) error {
	return Up(ctx, db, goose.DialectSQLite3, "sqlite")
}
