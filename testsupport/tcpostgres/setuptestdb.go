//nolint:errcheck // testsetup
package tcpostgres

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rehud/rehud-delta/pkg/db/migrate"
	database "github.com/rehud/rehud-delta/pkg/db/postgres"
)

// create a pg connection pool for the rdelta testdatabase
func SetupTestDb() *pgxpool.Pool {
	ctx := context.Background()
	container, err := SetupPostgres(ctx, WithName("rdelta-test"))
	if err != nil {
		log.Fatal(err)
	}
	dbURL, err := container.ConnectionString(ctx)
	if err != nil {
		log.Fatal(err)
	}
	return setupPool(dbURL)
}

// uses an existing database, e.g. a CI service container
func SetupExternalTestDb(dbURL string) *pgxpool.Pool {
	return setupPool(dbURL)
}

func setupPool(dbURL string) *pgxpool.Pool {
	if err := migrate.MigrateDb(dbURL); err != nil {
		log.Fatal(err)
	}
	return database.InitWithURL(dbURL)
}

func ClearLapTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from lap")
}

func ClearAllTables(pool *pgxpool.Pool) {
	ClearLapTable(pool)
}
