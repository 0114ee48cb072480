package main

import (
	"context"
	"fmt"

	"github.com/pribylovaa/auth-system/internal/config"
	"github.com/pribylovaa/auth-system/internal/storage"
	"github.com/pribylovaa/auth-system/internal/storage/mongo"
	"github.com/pribylovaa/auth-system/internal/storage/postgres"
	"github.com/pribylovaa/auth-system/internal/storage/redis"
	"github.com/pribylovaa/auth-system/internal/storage/sqlite"
)

// pingStorage — хранилище, которое умеет проверять соединение для /healthz.
type pingStorage interface {
	storage.Storage
	Ping(ctx context.Context) error
}

// openStorage подключает хранилище, выбранное storage.driver.
func openStorage(ctx context.Context, cfg config.StorageConfig) (pingStorage, error) {
	const op = "main.openStorage"

	var (
		st  pingStorage
		err error
	)

	switch cfg.Driver {
	case config.DriverPostgres:
		st, err = postgres.New(ctx, cfg.Postgres.URL, cfg.Migrate)
	case config.DriverSQLite:
		st, err = sqlite.New(ctx, cfg.SQLite.Path, cfg.Migrate)
	case config.DriverRedis:
		st, err = redis.New(ctx, cfg.Redis.URL, cfg.Redis.Prefix)
	case config.DriverMongo:
		st, err = mongo.New(ctx, cfg.Mongo.URL, cfg.Mongo.Database)
	default:
		return nil, fmt.Errorf("%s: unknown driver %q", op, cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, cfg.Driver, err)
	}

	return st, nil
}
