package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/auth-system/internal/models"
	"github.com/pribylovaa/auth-system/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

// userDoc — документ коллекции users.
type userDoc struct {
	ID                    string     `bson:"_id"`
	Email                 string     `bson:"email"`
	PasswordHash          string     `bson:"password_hash"`
	Role                  string     `bson:"role"`
	RefreshToken          *string    `bson:"refresh_token,omitempty"`
	RefreshTokenExpiresAt *time.Time `bson:"refresh_token_expires_at,omitempty"`
	CreatedAt             time.Time  `bson:"created_at"`
	UpdatedAt             time.Time  `bson:"updated_at"`
}

func toDoc(u *models.User) userDoc {
	return userDoc{
		ID:                    u.ID.String(),
		Email:                 u.Email,
		PasswordHash:          u.PasswordHash,
		Role:                  string(u.Role),
		RefreshToken:          u.RefreshToken,
		RefreshTokenExpiresAt: u.RefreshTokenExpiresAt,
		CreatedAt:             u.CreatedAt.UTC(),
		UpdatedAt:             u.UpdatedAt.UTC(),
	}
}

func (d userDoc) toModel() (*models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("parse user id %q: %w", d.ID, err)
	}

	role, err := models.ParseRole(d.Role)
	if err != nil {
		return nil, err
	}

	u := &models.User{
		ID:           id,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         role,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}

	if d.RefreshToken != nil && d.RefreshTokenExpiresAt != nil {
		u.SetRefreshToken(*d.RefreshToken, *d.RefreshTokenExpiresAt)
	}

	return u, nil
}

// SaveUser создаёт пользователя; дубликат _id или email — ErrAlreadyExists.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.mongo.SaveUser"

	if _, err := s.users.InsertOne(ctx, toDoc(user)); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UserByEmail находит пользователя по email (точное совпадение).
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.mongo.UserByEmail"

	user, err := s.findOne(ctx, bson.M{"email": email})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.mongo.UserByID"

	user, err := s.findOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateRefreshToken перезаписывает refresh-слот одним UpdateOne.
func (s *Storage) UpdateRefreshToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	const op = "storage.mongo.UpdateRefreshToken"

	update := bson.M{"$set": bson.M{
		"refresh_token":            token,
		"refresh_token_expires_at": expiresAt.UTC(),
		"updated_at":               time.Now().UTC(),
	}}

	res, err := s.users.UpdateOne(ctx, bson.M{"_id": id.String()}, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// ClearRefreshToken очищает refresh-слот.
func (s *Storage) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	const op = "storage.mongo.ClearRefreshToken"

	res, err := s.users.UpdateOne(ctx, bson.M{"_id": id.String()}, clearSlot(time.Now()))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// ClearExpiredRefreshTokens очищает слоты, срок которых наступил к now.
func (s *Storage) ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.mongo.ClearExpiredRefreshTokens"

	filter := bson.M{"refresh_token_expires_at": bson.M{"$lte": now.UTC()}}

	res, err := s.users.UpdateMany(ctx, filter, clearSlot(now))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return res.ModifiedCount, nil
}

func clearSlot(now time.Time) bson.M {
	return bson.M{
		"$unset": bson.M{"refresh_token": "", "refresh_token_expires_at": ""},
		"$set":   bson.M{"updated_at": now.UTC()},
	}
}

func (s *Storage) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc

	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	return doc.toModel()
}
