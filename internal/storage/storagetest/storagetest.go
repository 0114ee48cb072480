// storagetest — общий набор проверок контракта storage.Storage,
// который прогоняют тесты каждого адаптера.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/auth-system/internal/models"
	"github.com/pribylovaa/auth-system/internal/storage"
	"github.com/stretchr/testify/require"
)

// Factory возвращает пустое хранилище для одного подтеста.
type Factory func(t *testing.T) storage.Storage

// NewUser собирает пользователя с уникальным ID и пустым refresh-слотом.
func NewUser(email string) *models.User {
	now := time.Now().UTC().Truncate(time.Millisecond)

	return &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "$2a$04$hash",
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Run прогоняет контракт хранилища.
func Run(t *testing.T, newStorage Factory) {
	t.Helper()

	t.Run("save_and_lookup", func(t *testing.T) { testSaveAndLookup(t, newStorage(t)) })
	t.Run("duplicate_email", func(t *testing.T) { testDuplicateEmail(t, newStorage(t)) })
	t.Run("email_exact_match", func(t *testing.T) { testEmailExactMatch(t, newStorage(t)) })
	t.Run("not_found", func(t *testing.T) { testNotFound(t, newStorage(t)) })
	t.Run("refresh_slot", func(t *testing.T) { testRefreshSlot(t, newStorage(t)) })
	t.Run("clear_expired", func(t *testing.T) { testClearExpired(t, newStorage(t)) })
	t.Run("concurrent_duplicate_save", func(t *testing.T) { testConcurrentDuplicateSave(t, newStorage(t)) })
}

func testSaveAndLookup(t *testing.T, st storage.Storage) {
	ctx := context.Background()
	u := NewUser("a@x.com")

	require.NoError(t, st.SaveUser(ctx, u))

	byEmail, err := st.UserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	requireSameUser(t, u, byEmail)

	byID, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	requireSameUser(t, u, byID)
	require.False(t, byID.HasRefreshToken())
}

func testDuplicateEmail(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	require.NoError(t, st.SaveUser(ctx, NewUser("a@x.com")))

	err := st.SaveUser(ctx, NewUser("a@x.com"))
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func testEmailExactMatch(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	require.NoError(t, st.SaveUser(ctx, NewUser("A@x.com")))

	_, err := st.UserByEmail(ctx, "a@x.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Другой регистр — другой e-mail.
	require.NoError(t, st.SaveUser(ctx, NewUser("a@x.com")))
}

func testNotFound(t *testing.T, st storage.Storage) {
	ctx := context.Background()
	id := uuid.New()

	_, err := st.UserByEmail(ctx, "nobody@x.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.UserByID(ctx, id)
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = st.UpdateRefreshToken(ctx, id, "r", time.Now().Add(time.Hour))
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = st.ClearRefreshToken(ctx, id)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testRefreshSlot(t *testing.T, st storage.Storage) {
	ctx := context.Background()
	u := NewUser("a@x.com")
	require.NoError(t, st.SaveUser(ctx, u))

	exp1 := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	require.NoError(t, st.UpdateRefreshToken(ctx, u.ID, "r1", exp1))

	got, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.HasRefreshToken())
	require.Equal(t, "r1", *got.RefreshToken)
	require.True(t, exp1.Equal(*got.RefreshTokenExpiresAt), "want %s, got %s", exp1, *got.RefreshTokenExpiresAt)

	// Ротация заменяет слот целиком.
	exp2 := exp1.Add(time.Hour)
	require.NoError(t, st.UpdateRefreshToken(ctx, u.ID, "r2", exp2))

	got, err = st.UserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, "r2", *got.RefreshToken)
	require.True(t, exp2.Equal(*got.RefreshTokenExpiresAt))

	require.NoError(t, st.ClearRefreshToken(ctx, u.ID))

	got, err = st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, got.HasRefreshToken())
	require.Nil(t, got.RefreshToken)
	require.Nil(t, got.RefreshTokenExpiresAt)
}

func testClearExpired(t *testing.T, st storage.Storage) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	expired, active, empty := NewUser("old@x.com"), NewUser("new@x.com"), NewUser("none@x.com")
	for _, u := range []*models.User{expired, active, empty} {
		require.NoError(t, st.SaveUser(ctx, u))
	}

	require.NoError(t, st.UpdateRefreshToken(ctx, expired.ID, "old", now.Add(-time.Minute)))
	require.NoError(t, st.UpdateRefreshToken(ctx, active.ID, "new", now.Add(time.Hour)))

	n, err := st.ClearExpiredRefreshTokens(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := st.UserByID(ctx, expired.ID)
	require.NoError(t, err)
	require.False(t, got.HasRefreshToken())

	got, err = st.UserByID(ctx, active.ID)
	require.NoError(t, err)
	require.Equal(t, "new", *got.RefreshToken)

	n, err = st.ClearExpiredRefreshTokens(ctx, now)
	require.NoError(t, err)
	require.Zero(t, n)
}

func testConcurrentDuplicateSave(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	const workers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)

	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			err := st.SaveUser(ctx, NewUser("race@x.com"))

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				successes++
			case errors.Is(err, storage.ErrAlreadyExists):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}

	close(start)
	wg.Wait()

	require.Empty(t, others)
	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, conflicts)
}

func requireSameUser(t *testing.T, want, got *models.User) {
	t.Helper()

	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Email, got.Email)
	require.Equal(t, want.PasswordHash, got.PasswordHash)
	require.Equal(t, want.Role, got.Role)
	require.WithinDuration(t, want.CreatedAt, got.CreatedAt, time.Millisecond)
	require.WithinDuration(t, want.UpdatedAt, got.UpdatedAt, time.Millisecond)
}
