package database_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vibecheck/vibecheck/pkg/database"
)

// newTestClient spins up (or reuses, via CI_DATABASE_URL) a PostgreSQL
// instance and returns a migrated *database.Client. Skips the test if
// Docker isn't reachable, mirroring the teacher's test/database harness.
func newTestClient(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("CI_DATABASE_URL")
	if dsn == "" {
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("vibecheck_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			t.Skipf("skipping: docker unavailable for testcontainers postgres: %v", err)
		}
		t.Cleanup(func() {
			_ = testcontainers.TerminateContainer(pgContainer)
		})

		dsn, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	client, err := database.NewClient(ctx, database.DefaultPoolSettings(dsn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}
