package testing

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	tc "github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type nopContainerLogger struct{}

func (*nopContainerLogger) Printf(_ string, _ ...any) {}

var _ tclog.Logger = (*nopContainerLogger)(nil)

const (
	postgresImage = "postgres:16-alpine"
	postgresDB    = "sourcecoord"
	postgresUser  = "coord"
	postgresPass  = "coord"
)

// StartPostgres starts a throwaway Postgres container and returns a pool
// connected to it.
//
// The test is skipped in -short mode or when no container runtime is
// available. The container and pool are released through t.Cleanup.
//
// Parameters:
//   - t: Testing context
//
// Returns:
//   - *pgxpool.Pool: Pool connected to an empty database
func StartPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Postgres container test in short mode")
	}
	tc.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := postgres.Run(
		ctx,
		postgresImage,
		postgres.WithDatabase(postgresDB),
		postgres.WithUsername(postgresUser),
		postgres.WithPassword(postgresPass),
		postgres.BasicWaitStrategies(),
		tc.WithLogger(&nopContainerLogger{}),
	)
	tc.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get Postgres connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to create Postgres pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping Postgres: %v", err)
	}

	return pool
}
