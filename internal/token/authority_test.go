package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pribylovaa/auth-system/internal/config"
	"github.com/pribylovaa/auth-system/internal/models"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:          testSecret,
		Issuer:             "auth-system",
		AccessTokenMinutes: 30,
		RefreshTokenDays:   7,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newAuthority(t *testing.T, opts ...Option) *Authority {
	t.Helper()

	a, err := New(testConfig(), opts...)
	require.NoError(t, err)

	return a
}

func testUser() *models.User {
	return &models.User{
		ID:    uuid.New(),
		Email: "a@x.com",
		Role:  models.RoleUser,
	}
}

// sign подписывает произвольные claims заданным методом и ключом.
func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()

	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)

	return s
}

func TestNew_RejectsIncompleteConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.JWTSecret = ""

	a, err := New(cfg)
	require.Error(t, err)
	require.Nil(t, a)
}

func TestIssueAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := newAuthority(t, WithClock(fixedClock(now)))
	user := testUser()

	tok, exp, err := a.IssueAccessToken(user)
	require.NoError(t, err)
	require.Equal(t, now.Add(30*time.Minute), exp)
	require.Len(t, strings.Split(tok, "."), 3)

	claims, err := a.Validate(tok)
	require.NoError(t, err)

	id, err := claims.UserID()
	require.NoError(t, err)
	require.Equal(t, user.ID, id)
	require.Equal(t, user.Email, claims.Email)
	require.Equal(t, models.RoleUser, claims.Role)
	require.Equal(t, "auth-system", claims.Issuer)
	require.NotEmpty(t, claims.ID)
	require.Equal(t, now, claims.IssuedAt.Time.UTC())
	require.Equal(t, exp, claims.ExpiresAt.Time.UTC())
	require.False(t, claims.Expired(now))
}

func TestValidate_DoesNotRejectExpired(t *testing.T) {
	t.Parallel()

	issuedAt := time.Now().Add(-2 * time.Hour)
	a := newAuthority(t, WithClock(fixedClock(issuedAt)))

	tok, exp, err := a.IssueAccessToken(testUser())
	require.NoError(t, err)
	require.True(t, exp.Before(time.Now()))

	claims, err := a.Validate(tok)
	require.NoError(t, err)
	require.True(t, claims.Expired(time.Now()))
}

func TestValidate_Rejections(t *testing.T) {
	t.Parallel()

	a := newAuthority(t)
	user := testUser()
	now := time.Now()

	good := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    "auth-system",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}

	foreignIssuer := good
	foreignIssuer.Issuer = "someone-else"

	valid := sign(t, jwt.SigningMethodHS256, []byte(testSecret), good)
	parts := strings.Split(valid, ".")

	forged := good
	forged.Role = models.RoleAdmin
	forgedParts := strings.Split(sign(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-00"), forged), ".")

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{
			name:    "foreign_secret",
			token:   sign(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-00"), good),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "foreign_issuer",
			token:   sign(t, jwt.SigningMethodHS256, []byte(testSecret), foreignIssuer),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "hs512",
			token:   sign(t, jwt.SigningMethodHS512, []byte(testSecret), good),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "alg_none",
			token:   sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, good),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "tampered_payload",
			token:   parts[0] + "." + forgedParts[1] + "." + parts[2],
			wantErr: ErrInvalidToken,
		},
		{name: "empty", token: "", wantErr: ErrMalformedToken},
		{name: "garbage", token: "not-a-jwt", wantErr: ErrMalformedToken},
		{name: "two_segments", token: parts[0] + "." + parts[1], wantErr: ErrMalformedToken},
		{name: "bad_json", token: "e30.!!!." + parts[2], wantErr: ErrMalformedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims, err := a.Validate(tt.token)
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, claims)
		})
	}
}

func TestValidate_ForeignSecretIsNotMalformed(t *testing.T) {
	t.Parallel()

	other, err := New(config.AuthConfig{
		JWTSecret:          "ffffffffffffffffffffffffffffffff",
		Issuer:             "auth-system",
		AccessTokenMinutes: 30,
		RefreshTokenDays:   7,
	})
	require.NoError(t, err)

	tok, _, err := other.IssueAccessToken(testUser())
	require.NoError(t, err)

	_, err = newAuthority(t).Validate(tok)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.NotErrorIs(t, err, ErrMalformedToken)
}

func TestIssueRefreshToken_Distinct(t *testing.T) {
	t.Parallel()

	a := newAuthority(t)

	const n = 10000
	seen := make(map[string]struct{}, n)

	for i := 0; i < n; i++ {
		tok, err := a.IssueRefreshToken()
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(tok)
		require.NoError(t, err)
		require.Len(t, raw, refreshTokenBytes)

		_, dup := seen[tok]
		require.False(t, dup, "duplicate refresh token at %d", i)
		seen[tok] = struct{}{}
	}
}

func TestIssueTokenPair(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	a := newAuthority(t, WithClock(fixedClock(now)))

	pair, err := a.IssueTokenPair(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, now.Add(30*time.Minute), pair.AccessExpiresAt)
	require.Equal(t, now.Add(7*24*time.Hour), pair.RefreshExpiresAt)

	_, _, err = a.IssueAccessToken(nil)
	require.Error(t, err)
}

func TestClaims_UserIDAndExpired(t *testing.T) {
	t.Parallel()

	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "not-a-uuid"}}
	_, err := c.UserID()
	require.ErrorIs(t, err, ErrInvalidToken)

	now := time.Now()
	require.True(t, c.Expired(now), "без exp токен считается истёкшим")

	c.ExpiresAt = jwt.NewNumericDate(now.Add(time.Minute))
	require.False(t, c.Expired(now))
	require.True(t, c.Expired(c.ExpiresAt.Time))
}
