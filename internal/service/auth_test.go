package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/pribylovaa/auth-system/internal/metrics"
	"github.com/pribylovaa/auth-system/internal/models"
	"github.com/pribylovaa/auth-system/internal/storage"
	"github.com/pribylovaa/auth-system/internal/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/crypto/bcrypt"
)

func TestRegisterUser_OK(t *testing.T) {
	t.Parallel()

	svc, st := newMockService(t)
	ctx := context.Background()

	var saved *models.User

	st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) error {
		saved = u
		return nil
	})
	st.EXPECT().UpdateRefreshToken(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id uuid.UUID, tok string, exp time.Time) error {
			require.Equal(t, saved.ID, id)
			require.NotEmpty(t, tok)
			require.WithinDuration(t, time.Now().Add(7*24*time.Hour), exp, 5*time.Second)
			return nil
		})

	pair, uid, err := svc.RegisterUser(ctx, "a@x.com", testPassword)
	require.NoError(t, err)
	require.NotNil(t, saved)
	require.Equal(t, saved.ID, uid)

	require.Equal(t, "a@x.com", saved.Email)
	require.Equal(t, models.RoleUser, saved.Role)
	require.NotEqual(t, testPassword, saved.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(saved.PasswordHash), []byte(testPassword)))

	require.NotEmpty(t, pair.AccessToken)
	require.Equal(t, pair.RefreshToken, *saved.RefreshToken)
	require.WithinDuration(t, time.Now().Add(30*time.Minute), pair.AccessExpiresAt, 5*time.Second)
}

func TestRegisterUser_InvalidInput(t *testing.T) {
	t.Parallel()

	svc, _ := newMockService(t)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "empty_email", email: "", password: testPassword, wantErr: ErrInvalidEmail},
		{name: "no_at", email: "not-an-email", password: testPassword, wantErr: ErrInvalidEmail},
		{name: "display_name", email: "A <a@x.com>", password: testPassword, wantErr: ErrInvalidEmail},
		{name: "surrounding_spaces", email: " a@x.com ", password: testPassword, wantErr: ErrInvalidEmail},
		{name: "empty_password", email: "a@x.com", password: "", wantErr: ErrEmptyPassword},
		{name: "short_password", email: "a@x.com", password: "Ab1!", wantErr: ErrWeakPassword},
		{name: "no_digit", email: "a@x.com", password: "Abcdefgh!", wantErr: ErrWeakPassword},
		{name: "no_upper", email: "a@x.com", password: "abcdefg1!", wantErr: ErrWeakPassword},
		{name: "no_lower", email: "a@x.com", password: "ABCDEFG1!", wantErr: ErrWeakPassword},
		{name: "no_symbol", email: "a@x.com", password: "Abcdefg12", wantErr: ErrWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pair, uid, err := svc.RegisterUser(context.Background(), tt.email, tt.password)
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, pair)
			require.Equal(t, uuid.Nil, uid)
		})
	}
}

func TestRegisterUser_DuplicateOnLookup(t *testing.T) {
	t.Parallel()

	svc, st := newMockService(t)

	st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").
		Return(storedUser(t, "a@x.com", "", time.Time{}), nil)

	_, _, err := svc.RegisterUser(context.Background(), "a@x.com", testPassword)
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegisterUser_DuplicateOnSave(t *testing.T) {
	t.Parallel()

	svc, st := newMockService(t)

	// Конкурентная регистрация: проверка прошла, уникальный индекс сработал при вставке.
	st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(storage.ErrAlreadyExists)

	_, _, err := svc.RegisterUser(context.Background(), "a@x.com", testPassword)
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegisterUser_EmailIsCaseSensitive(t *testing.T) {
	t.Parallel()

	svc, st := newMockService(t)

	st.EXPECT().UserByEmail(gomock.Any(), "A@X.com").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) error {
		require.Equal(t, "A@X.com", u.Email)
		return nil
	})
	st.EXPECT().UpdateRefreshToken(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, _, err := svc.RegisterUser(context.Background(), "A@X.com", testPassword)
	require.NoError(t, err)
}

func TestRegisterUser_StorageErrors(t *testing.T) {
	t.Parallel()

	dbErr := errors.New("db down")

	t.Run("lookup", func(t *testing.T) {
		t.Parallel()

		svc, st := newMockService(t)
		st.EXPECT().UserByEmail(gomock.Any(), gomock.Any()).Return(nil, dbErr)

		_, _, err := svc.RegisterUser(context.Background(), "a@x.com", testPassword)
		require.ErrorIs(t, err, dbErr)
		require.NotErrorIs(t, err, ErrDuplicateEmail)
	})

	t.Run("save", func(t *testing.T) {
		t.Parallel()

		svc, st := newMockService(t)
		st.EXPECT().UserByEmail(gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound)
		st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(dbErr)

		_, _, err := svc.RegisterUser(context.Background(), "a@x.com", testPassword)
		require.ErrorIs(t, err, dbErr)
	})

	t.Run("persist_refresh", func(t *testing.T) {
		t.Parallel()

		svc, st := newMockService(t)
		st.EXPECT().UserByEmail(gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound)
		st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(nil)
		st.EXPECT().UpdateRefreshToken(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(dbErr)

		pair, _, err := svc.RegisterUser(context.Background(), "a@x.com", testPassword)
		require.ErrorIs(t, err, dbErr)
		require.Nil(t, pair)
	})
}

func TestLoginUser_OK(t *testing.T) {
	t.Parallel()

	svc, st := newMockService(t)
	user := storedUser(t, "a@x.com", "old-refresh", time.Now().Add(time.Hour))

	st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").Return(user, nil)
	st.EXPECT().UpdateRefreshToken(gomock.Any(), user.ID, gomock.Any(), gomock.Any()).Return(nil)

	pair, uid, err := svc.LoginUser(context.Background(), "a@x.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, user.ID, uid)
	require.NotEqual(t, "old-refresh", pair.RefreshToken)
	require.Equal(t, pair.RefreshToken, *user.RefreshToken)

	claims, err := svc.tokens.Validate(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID.String(), claims.Subject)
	require.Equal(t, "a@x.com", claims.Email)
}

func TestLoginUser_InvalidCredentials(t *testing.T) {
	t.Parallel()

	t.Run("unknown_email", func(t *testing.T) {
		t.Parallel()

		svc, st := newMockService(t)
		st.EXPECT().UserByEmail(gomock.Any(), "nobody@x.com").Return(nil, storage.ErrNotFound)

		pair, uid, err := svc.LoginUser(context.Background(), "nobody@x.com", testPassword)
		require.ErrorIs(t, err, ErrInvalidCredentials)
		require.Nil(t, pair)
		require.Equal(t, uuid.Nil, uid)
	})

	t.Run("wrong_password", func(t *testing.T) {
		t.Parallel()

		svc, st := newMockService(t)
		st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").
			Return(storedUser(t, "a@x.com", "", time.Time{}), nil)

		_, _, err := svc.LoginUser(context.Background(), "a@x.com", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("case_mismatch", func(t *testing.T) {
		t.Parallel()

		svc, st := newMockService(t)
		st.EXPECT().UserByEmail(gomock.Any(), "A@x.com").Return(nil, storage.ErrNotFound)

		_, _, err := svc.LoginUser(context.Background(), "A@x.com", testPassword)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLoginUser_StorageError(t *testing.T) {
	t.Parallel()

	svc, st := newMockService(t)
	dbErr := errors.New("db down")
	st.EXPECT().UserByEmail(gomock.Any(), gomock.Any()).Return(nil, dbErr)

	_, _, err := svc.LoginUser(context.Background(), "a@x.com", testPassword)
	require.ErrorIs(t, err, dbErr)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshToken_OK(t *testing.T) {
	t.Parallel()

	svc, st := newMockService(t)
	user := storedUser(t, "a@x.com", "current-refresh", time.Now().Add(time.Hour))

	access, _, err := svc.tokens.IssueAccessToken(user)
	require.NoError(t, err)

	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	st.EXPECT().UpdateRefreshToken(gomock.Any(), user.ID, gomock.Any(), gomock.Any()).Return(nil)

	pair, uid, err := svc.RefreshToken(context.Background(), access, "current-refresh")
	require.NoError(t, err)
	require.Equal(t, user.ID, uid)
	require.NotEqual(t, "current-refresh", pair.RefreshToken)
	require.Equal(t, pair.RefreshToken, *user.RefreshToken)
}

func TestRefreshToken_AcceptsExpiredAccessToken(t *testing.T) {
	t.Parallel()

	svc, st := newMockService(t)
	user := storedUser(t, "a@x.com", "current-refresh", time.Now().Add(time.Hour))

	past := newTokens(t, token.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
	access, exp, err := past.IssueAccessToken(user)
	require.NoError(t, err)
	require.True(t, exp.Before(time.Now()))

	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	st.EXPECT().UpdateRefreshToken(gomock.Any(), user.ID, gomock.Any(), gomock.Any()).Return(nil)

	_, _, err = svc.RefreshToken(context.Background(), access, "current-refresh")
	require.NoError(t, err)
}

func TestRefreshToken_InvalidAccessToken(t *testing.T) {
	t.Parallel()

	svc, _ := newMockService(t)
	user := storedUser(t, "a@x.com", "", time.Time{})

	cfg := testAuthConfig()
	cfg.JWTSecret = "ffffffffffffffffffffffffffffffff"

	foreign, err := token.New(cfg)
	require.NoError(t, err)
	foreignTok, _, err := foreign.IssueAccessToken(user)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			Issuer:    "auth-system",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		extra error
	}{
		{name: "malformed", token: "garbage", extra: token.ErrMalformedToken},
		{name: "foreign_secret", token: foreignTok, extra: token.ErrInvalidToken},
		{name: "non_uuid_subject", token: badSubject, extra: token.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pair, uid, err := svc.RefreshToken(context.Background(), tt.token, "whatever")
			require.ErrorIs(t, err, ErrInvalidToken)
			require.ErrorIs(t, err, tt.extra)
			require.Nil(t, pair)
			require.Equal(t, uuid.Nil, uid)
		})
	}
}

func TestRefreshToken_InvalidRefreshToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		stored    string
		storedExp time.Duration
		presented string
		missing   bool
	}{
		{name: "mismatch", stored: "current", storedExp: time.Hour, presented: "other"},
		{name: "expired", stored: "current", storedExp: -time.Minute, presented: "current"},
		{name: "empty_slot", stored: "", presented: "current"},
		{name: "empty_presented", stored: "current", storedExp: time.Hour, presented: ""},
		{name: "user_missing", presented: "current", missing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, st := newMockService(t)
			user := storedUser(t, "a@x.com", tt.stored, time.Now().Add(tt.storedExp))

			access, _, err := svc.tokens.IssueAccessToken(user)
			require.NoError(t, err)

			if tt.missing {
				st.EXPECT().UserByID(gomock.Any(), user.ID).Return(nil, storage.ErrNotFound)
			} else {
				st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
			}

			pair, _, err := svc.RefreshToken(context.Background(), access, tt.presented)
			require.ErrorIs(t, err, ErrInvalidRefreshToken)
			require.Nil(t, pair)
		})
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()

	id := uuid.New()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		svc, st := newMockService(t)
		st.EXPECT().ClearRefreshToken(gomock.Any(), id).Return(nil)

		require.NoError(t, svc.Logout(context.Background(), id))
	})

	t.Run("unknown_user", func(t *testing.T) {
		t.Parallel()

		svc, st := newMockService(t)
		st.EXPECT().ClearRefreshToken(gomock.Any(), id).Return(storage.ErrNotFound)

		require.ErrorIs(t, svc.Logout(context.Background(), id), ErrInvalidToken)
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	svc, _ := newMockService(t)
	user := storedUser(t, "a@x.com", "", time.Time{})
	user.Role = models.RoleAdmin

	access, _, err := svc.tokens.IssueAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.Authenticate(access)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, claims.Role)

	past := newTokens(t, token.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }))
	expired, _, err := past.IssueAccessToken(user)
	require.NoError(t, err)

	_, err = svc.Authenticate(expired)
	require.ErrorIs(t, err, ErrTokenExpired)

	_, err = svc.Authenticate("garbage")
	require.ErrorIs(t, err, token.ErrMalformedToken)
}

func TestFlows_RecordSpansAndMetrics(t *testing.T) {
	t.Parallel()

	svc, st := newMockService(t)

	sr := tracetest.NewSpanRecorder()
	svc.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))

	reg := prometheus.NewRegistry()
	svc.SetMetrics(metrics.New(reg))

	st.EXPECT().UserByEmail(gomock.Any(), "nobody@x.com").Return(nil, storage.ErrNotFound)

	_, _, err := svc.LoginUser(context.Background(), "nobody@x.com", testPassword)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "service.login", spans[0].Name())
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Equal(t, "invalid_credentials", spans[0].Status().Description)

	n, err := testutil.GatherAndCount(reg, "auth_flow_outcomes_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestOutcomeOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "success", outcomeOf(nil))
	require.Equal(t, "invalid_credentials", outcomeOf(ErrInvalidCredentials))
	require.Equal(t, "duplicate_email", outcomeOf(ErrDuplicateEmail))
	require.Equal(t, "invalid_token", outcomeOf(ErrTokenExpired))
	require.Equal(t, "invalid_refresh_token", outcomeOf(ErrInvalidRefreshToken))
	require.Equal(t, "invalid_input", outcomeOf(ErrWeakPassword))
	require.Equal(t, "error", outcomeOf(errors.New("boom")))
}
