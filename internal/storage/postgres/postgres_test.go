package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/pribylovaa/auth-system/internal/storage"
	"github.com/pribylovaa/auth-system/internal/storage/storagetest"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Интеграционные тесты поднимают PostgreSQL через testcontainers-go
// и применяют встроенные миграции goose.
//
// Запуск локально:
//   GO_TEST_INTEGRATION=1 go test ./internal/storage/postgres -v -race -count=1

// startPostgres поднимает временный PostgreSQL и возвращает DSN.
// Без GO_TEST_INTEGRATION тест пропускается.
func startPostgres(t *testing.T) string {
	t.Helper()

	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "auth"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://user:pass@%s:%s/auth?sslmode=disable", host, port.Port())
}

func TestIntegration_Contract(t *testing.T) {
	dsn := startPostgres(t)

	st, err := New(context.Background(), dsn, true)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	storagetest.Run(t, func(t *testing.T) storage.Storage {
		_, err := st.db.Exec(context.Background(), `TRUNCATE users`)
		require.NoError(t, err)

		return st
	})
}

func TestIntegration_MigrationsAreIdempotent(t *testing.T) {
	dsn := startPostgres(t)

	first, err := New(context.Background(), dsn, true)
	require.NoError(t, err)
	first.Close()

	second, err := New(context.Background(), dsn, true)
	require.NoError(t, err)
	t.Cleanup(second.Close)

	require.NoError(t, second.Ping(context.Background()))
}

func TestIntegration_RefreshSlotCheckConstraint(t *testing.T) {
	dsn := startPostgres(t)

	st, err := New(context.Background(), dsn, true)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	u := storagetest.NewUser("a@x.com")
	require.NoError(t, st.SaveUser(context.Background(), u))

	// Токен без срока нарушает CHECK: слот меняется только целиком.
	_, err = st.db.Exec(context.Background(),
		`UPDATE users SET refresh_token = 'r', refresh_token_expires_at = NULL WHERE id = $1`, u.ID)
	require.Error(t, err)
}

func TestNew_BadURL(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "://not-a-dsn", false)
	require.Error(t, err)
}

func TestStorage_ContextCanceled(t *testing.T) {
	dsn := startPostgres(t)

	st, err := New(context.Background(), dsn, true)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = st.UserByEmail(ctx, "a@x.com")
	require.ErrorIs(t, err, context.Canceled)
}
