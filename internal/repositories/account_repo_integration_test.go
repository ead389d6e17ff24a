//go:build integration

package repositories

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/BradenHooton/keygate/internal/database"
	"github.com/BradenHooton/keygate/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDatabase starts a PostgreSQL container and applies the embedded migrations
func setupTestDatabase(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("keygate"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	db := database.Wrap(pool, logger)
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Ping(ctx))

	return db
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestAccountRepository_Integration(t *testing.T) {
	db := setupTestDatabase(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	alice := &models.Account{
		UserID:     "alice",
		AuthMethod: models.AuthMethodToken,
		Token: &models.TokenConfig{
			ClientID:           strPtr("1234"),
			ClientSecret:       strPtr("c2VjcmV0LWtleQ=="),
			UseSecureTransport: boolPtr(true),
			KeyIDs:             models.NewKeyIDSet("vvvvvvcucrlc", "cccccccccccc"),
		},
	}
	bob := &models.Account{UserID: "bob", AuthMethod: models.AuthMethodPassword}

	require.NoError(t, repo.Save(ctx, alice))
	require.NoError(t, repo.Save(ctx, bob))

	t.Run("list identifiers", func(t *testing.T) {
		ids, err := repo.ListIdentifiers(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, ids)
	})

	t.Run("load token account", func(t *testing.T) {
		got, err := repo.Load(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, got.UsesToken())
		require.NotNil(t, got.Token)
		assert.Equal(t, alice.Token.KeyIDs, got.Token.KeyIDs)
		assert.True(t, got.Token.Complete())
	})

	t.Run("load account without token config", func(t *testing.T) {
		got, err := repo.Load(ctx, "bob")
		require.NoError(t, err)
		assert.False(t, got.UsesToken())
		assert.Nil(t, got.Token)
	})

	t.Run("load missing account", func(t *testing.T) {
		_, err := repo.Load(ctx, "carol")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "bob"))
		assert.ErrorIs(t, repo.Delete(ctx, "bob"), models.ErrNotFound)
	})
}
