// Package cli provides the command-line interface for secwebscan. It
// implements the Cobra-based command structure for scanning, collection,
// reporting, and daemon operation.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/capability/dig"
	"github.com/secwebscan/secwebscan/internal/capability/nikto"
	"github.com/secwebscan/secwebscan/internal/capability/nmap"
	"github.com/secwebscan/secwebscan/internal/capability/nuclei"
	"github.com/secwebscan/secwebscan/internal/capability/snmp"
	"github.com/secwebscan/secwebscan/internal/capability/tlscert"
	"github.com/secwebscan/secwebscan/internal/config"
	"github.com/secwebscan/secwebscan/internal/logging"
)

const defaultDatabasePort = 5432

var (
	cfgFile string
	verbose bool
)

// Build information - set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "secwebscan",
	Short: "Web and network reconnaissance orchestrator",
	Long: `Secwebscan orchestrates security reconnaissance tools against a single
target, reconciles their findings across target variants, and persists the
classified results for reporting and querying.`,
	Version: getVersion(),
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig reads in the config file and matching environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SECWEBSCAN")

	setConfigDefaults()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}

	initLogging()
}

// setConfigDefaults sets defaults for configuration keys read through viper.
func setConfigDefaults() {
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", defaultDatabasePort)
	viper.SetDefault("database.database", "secwebscan")
	viper.SetDefault("database.username", "secwebscan")
	viper.SetDefault("database.ssl_mode", "disable")

	viper.SetDefault("runner.pool_size", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stdout")
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the build information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// initLogging initializes structured logging from configuration, falling
// back to defaults when no usable config file is present.
func initLogging() {
	cfg, err := config.Load(viper.ConfigFileUsed())
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		return
	}

	logCfg := cfg.Logging
	if verbose {
		logCfg.Level = logging.LevelDebug
		logCfg.AddSource = true
	}

	logger, err := logging.New(logCfg)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)
}

// loadConfig loads and validates the effective configuration for a command.
func loadConfig() (*config.Config, error) {
	return loadConfigWith(nil)
}

// loadConfigWith loads the configuration, applies command-specific overrides
// before validation, and validates the result.
func loadConfigWith(apply func(*config.Config)) (*config.Config, error) {
	path := viper.ConfigFileUsed()
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if apply != nil {
		apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildRegistry assembles the capability set in display order.
func buildRegistry() *capability.Registry {
	return capability.NewRegistry(
		nmap.New(),
		dig.New(),
		tlscert.New(),
		snmp.New(),
		nikto.New(),
		nuclei.New(),
	)
}
