package testdb

import (
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	tcpg "github.com/rehud/rehud-delta/testsupport/tcpostgres"
)

// URLEnv points to an existing database. If unset a container is started.
const URLEnv = "TESTDB_URL"

var (
	pool     *pgxpool.Pool
	poolOnce sync.Once
)

// InitTestDb returns the pool shared by all tests of the package with all
// tables emptied.
func InitTestDb() *pgxpool.Pool {
	poolOnce.Do(func() {
		if url := os.Getenv(URLEnv); url != "" {
			pool = tcpg.SetupExternalTestDb(url)
		} else {
			pool = tcpg.SetupTestDb()
		}
	})
	tcpg.ClearAllTables(pool)
	return pool
}
