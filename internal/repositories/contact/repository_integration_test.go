//go:build integration

package contact

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Ramsey-B/iris/pkg/database"
)

// newPostgres starts a postgres container and applies the migrations in db/pg.
func newPostgres(t *testing.T) database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("iris"),
		postgres.WithUsername("iris"),
		postgres.WithPassword("iris"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db, err := database.Connect(ctx, database.ConnectionConfig{DSN: dsn}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: "../../../db/pg",
	})
	require.NoError(t, migrations.Migrate("iris", db))

	return db
}

func TestRepository(t *testing.T) {
	db := newPostgres(t)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	runStoreContract(t, func(t *testing.T) storeUnderTest {
		_, err := db.ExecContext(context.Background(), "TRUNCATE contacts RESTART IDENTITY CASCADE")
		require.NoError(t, err)
		return NewRepository(db, logger)
	})
}

func TestRepository_LinkedIDConstraint(t *testing.T) {
	db := newPostgres(t)

	_, err := db.ExecContext(context.Background(),
		"INSERT INTO contacts (email, link_precedence) VALUES ('x@y.z', 'secondary')")
	require.Error(t, err, "a secondary without linked_id must be rejected")
}
