package service

import (
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/pribylovaa/auth-system/internal/config"
	"github.com/pribylovaa/auth-system/internal/models"
	"github.com/pribylovaa/auth-system/internal/storage"
	"github.com/pribylovaa/auth-system/internal/token"
	"github.com/pribylovaa/auth-system/mocks"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "Secret123!"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:          testSecret,
		Issuer:             "auth-system",
		AccessTokenMinutes: 30,
		RefreshTokenDays:   7,
	}
}

func testPolicy() config.PasswordConfig {
	return config.PasswordConfig{
		BcryptCost:    bcrypt.MinCost,
		MinLength:     8,
		RequireDigit:  true,
		RequireLower:  true,
		RequireUpper:  true,
		RequireSymbol: true,
	}
}

func newTokens(t *testing.T, opts ...token.Option) *token.Authority {
	t.Helper()

	a, err := token.New(testAuthConfig(), opts...)
	require.NoError(t, err)

	return a
}

// newServiceWith собирает Service поверх произвольного хранилища.
func newServiceWith(t *testing.T, st storage.UserStorage, opts ...token.Option) *Service {
	t.Helper()

	creds, err := NewCredentialStore(st, bcrypt.MinCost)
	require.NoError(t, err)

	return New(creds, newTokens(t, opts...), testPolicy())
}

func newMockService(t *testing.T, opts ...token.Option) (*Service, *mocks.MockStorage) {
	t.Helper()

	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)

	return newServiceWith(t, st, opts...), st
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()

	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)

	return string(h)
}

// storedUser — пользователь с паролем testPassword и, при refresh != "", заполненным слотом.
func storedUser(t *testing.T, email, refresh string, refreshExp time.Time) *models.User {
	t.Helper()

	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: mustHash(t, testPassword),
		Role:         models.RoleUser,
	}

	if refresh != "" {
		u.SetRefreshToken(refresh, refreshExp)
	}

	return u
}
