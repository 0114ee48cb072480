// mongo — хранилище учётных записей в MongoDB: коллекция users,
// _id — строковый UUID, уникальный индекс по email.
package mongo

import (
	"context"
	"fmt"

	"github.com/pribylovaa/auth-system/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection = "users"
	defaultDBName   = "auth"
)

// Storage — адаптер поверх коллекции users.
type Storage struct {
	client *mongodriver.Client
	users  *mongodriver.Collection
}

// New подключается к MongoDB, проверяет соединение и создаёт индексы.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongo.New"

	if uri == "" {
		return nil, fmt.Errorf("%s: empty uri", op)
	}

	if database == "" {
		database = defaultDBName
	}

	cli, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	s := &Storage{
		client: cli,
		users:  cli.Database(database).Collection(usersCollection),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

// Close отключается от MongoDB.
func (s *Storage) Close() {
	_ = s.client.Disconnect(context.Background())
}

// Ping проверяет доступность primary.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// ensureIndexes создаёт индексы:
//   - уникальный по email (точное совпадение, без collation);
//   - разреженный по refresh_token_expires_at для очистки истёкших слотов.
func (s *Storage) ensureIndexes(ctx context.Context) error {
	models := []mongodriver.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "refresh_token_expires_at", Value: 1}},
			Options: options.Index().SetName("refresh_expires_sparse").SetSparse(true),
		},
	}

	if _, err := s.users.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	return nil
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
