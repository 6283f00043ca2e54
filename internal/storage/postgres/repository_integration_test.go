//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/rshade/ecohabit/internal/habits"
	"github.com/rshade/ecohabit/internal/storage/storagetest"
)

func TestRepository(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("ecohabit"),
		postgrescontainer.WithUsername("ecohabit"),
		postgrescontainer.WithPassword("ecohabit"),
		postgrescontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	admin, err := Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })

	n := 0
	storagetest.Run(t, func(t *testing.T) habits.Repository {
		// Each subtest gets its own schema so the contract sees an empty store.
		n++
		schema := fmt.Sprintf("contract_%d", n)
		_, err := admin.pool.Exec(ctx, "CREATE SCHEMA "+schema)
		require.NoError(t, err)

		repo, err := Open(ctx, connStr+"&search_path="+schema)
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	})
}
