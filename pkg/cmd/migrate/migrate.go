package migrate

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rehud/rehud-delta/log"
	cmdutil "github.com/rehud/rehud-delta/pkg/cmd/util"
	"github.com/rehud/rehud-delta/pkg/config"
	"github.com/rehud/rehud-delta/pkg/db/migrate"
	"github.com/rehud/rehud-delta/pkg/utils"
)

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "performs database migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startMigration()
		},
	}
	return cmd
}

func startMigration() error {
	cmdutil.SetupLogger()
	if postgresAddr := utils.ExtractFromDBURL(config.DB); postgresAddr != "" {
		timeout := config.ParseDuration(config.WaitForServices, 60*time.Second)
		if err := utils.WaitForTCP(postgresAddr, timeout); err != nil {
			log.Fatal("database not ready", log.ErrorField(err))
		}
	}

	dbURL := prepareURLForDB(config.DB)
	if err := migrate.MigrateDb(dbURL); err != nil {
		return err
	}
	version, dirty, err := migrate.Version(dbURL)
	if err != nil {
		return err
	}
	log.Info("Database migrated", log.Uint64("version", uint64(version)), log.Bool("dirty", dirty))
	return nil
}

func prepareURLForDB(url string) string {
	if !strings.HasPrefix(url, migrate.SchemePostgres) {
		return url
	}
	options := "sslmode=disable"
	if strings.Contains(url, "sslmode=") {
		return url
	}
	if strings.Contains(url, "?") {
		return fmt.Sprintf("%s&%s", url, options)
	} else {
		return fmt.Sprintf("%s?%s", url, options)
	}
}
