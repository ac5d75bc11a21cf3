package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	lapsCmd "github.com/rehud/rehud-delta/pkg/cmd/laps"
	migrateCmd "github.com/rehud/rehud-delta/pkg/cmd/migrate"
	recordingCmd "github.com/rehud/rehud-delta/pkg/cmd/recording"
	runCmd "github.com/rehud/rehud-delta/pkg/cmd/run"
	"github.com/rehud/rehud-delta/pkg/config"
	"github.com/rehud/rehud-delta/version"
)

const envPrefix = "RDELTA"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rdelta",
	Short: "Computes live lap time deltas from racing telemetry",
	Long: `rdelta replays telemetry frames, keeps the lap state of every car and
publishes the time gaps to the cars around the reference driver.
Completed laps and best lap telemetry are stored per track layout and car.`,
	Version: version.FullVersion,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.rdelta.yml)")

	rootCmd.PersistentFlags().StringVar(&config.DB, "db",
		"",
		"database url (postgresql://... or sqlite://<path>), empty disables lap storage")
	rootCmd.PersistentFlags().StringVar(&config.NatsURL, "nats-url",
		"",
		"url of the NATS server, empty disables publishing")
	rootCmd.PersistentFlags().StringVar(&config.WaitForServices,
		"wait-for-services",
		"15s",
		"Duration to wait for other services to be ready")

	rootCmd.AddCommand(
		runCmd.NewRunCmd(),
		migrateCmd.NewMigrateCmd(),
		lapsCmd.NewLapsCmd(),
		recordingCmd.NewRecordingCmd(),
	)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".rdelta" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".rdelta")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	bindCommandTree(rootCmd, viper.GetViper())
}

// bindCommandTree binds the flags of cmd and all of its subcommands.
func bindCommandTree(cmd *cobra.Command, v *viper.Viper) {
	bindFlags(cmd, v)
	for _, sub := range cmd.Commands() {
		bindCommandTree(sub, v)
	}
}

// Bind each cobra flag to its associated viper configuration
// (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --nats-url to RDELTA_NATS_URL
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		// Apply the viper config value to the flag when the flag is not set and viper
		// has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could set flag value for %s: %v", f.Name, err)
			}
		}
	})
}
