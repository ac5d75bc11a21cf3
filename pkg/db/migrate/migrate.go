package migrate

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/rehud/rehud-delta/log"
)

//go:embed migrations
var migrations embed.FS

const (
	SchemePostgres = "postgresql://"
	SchemeSQLite   = "sqlite://"
)

// MigrateDb applies all pending migrations to the database referenced by dbURI.
func MigrateDb(dbURI string) error {
	m, err := newMigrate(dbURI)
	if err != nil {
		return err
	}
	defer m.Close()
	return up(m)
}

// MigrateSQLite applies the migrations to an already opened SQLite database.
func MigrateSQLite(db *sql.DB) error {
	source, err := iofs.New(migrations, "migrations/sqlite")
	if err != nil {
		return err
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = newMigrateLogger()
	// m.Close would close db as well
	return up(m)
}

// Version returns the current schema version. Returns 0 if no migration was applied yet.
func Version(dbURI string) (version uint, dirty bool, err error) {
	m, err := newMigrate(dbURI)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrate(dbURI string) (*migrate.Migrate, error) {
	var dir, target string
	switch {
	case strings.HasPrefix(dbURI, SchemePostgres):
		dir = "migrations/postgres"
		target = strings.Replace(dbURI, SchemePostgres, "pgx://", 1)
	case strings.HasPrefix(dbURI, SchemeSQLite):
		dir = "migrations/sqlite"
		target = dbURI
	default:
		return nil, fmt.Errorf("unsupported database url: %s", dbURI)
	}
	source, err := iofs.New(migrations, dir)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, target)
	if err != nil {
		return nil, err
	}
	m.Log = newMigrateLogger()
	return m, nil
}

func up(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger
type migrateLogger struct {
	log *log.Logger
}

func newMigrateLogger() *migrateLogger {
	return &migrateLogger{log: log.Default().Named("migrate")}
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
