// Package cmd implements the CLI commands for recast.
package cmd

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/internal/observability"
	"github.com/jmylchreest/recast/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "recast",
	Short:   "Roku receiver to DVR bridge",
	Version: version.Short(),
	Long: `recast turns Roku devices paired with HDMI encoders into network
tuners for DVR software like Channels DVR and Tvheadend.

It serves M3U lineups pointing at its own streaming endpoints; when a DVR
client opens a stream, recast allocates a free receiver, tunes the Roku to
the requested channel over its control protocol, and relays the encoder's
MPEG-TS output to the client. Sessions support pre-tuning a receiver ahead
of time and capturing a channel to disk.`,
	// PersistentPreRunE is assigned in init; a literal here would form an
	// initialization cycle through rootCmd.PersistentFlags.
}

// Execute runs the CLI. Cobra has already printed any error by the time
// this returns, so main only needs the exit status.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// The logging flags are deliberately not bound into viper: a bound
	// flag reports its default value, which would shadow the environment
	// and the config file. initLogging reads them through Changed instead.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/recast, $HOME/.recast)")
	rootCmd.PersistentFlags().String("log-level", "info", "minimum log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log output format (text|json)")
}

// initConfig primes the global viper instance so logging can be configured
// before a subcommand loads the full typed configuration.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("recast")
		viper.SetConfigType("yaml")
		for _, dir := range []string{".", "./configs", "/etc/recast", "$HOME/.recast"} {
			viper.AddConfigPath(dir)
		}
	}

	viper.SetEnvPrefix("RECAST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

// initLogging installs the process-wide logger before any subcommand
// runs. Explicit CLI flags win over the environment, which wins over the
// config file, which wins over the built-in info/json defaults.
func initLogging() error {
	level := viper.GetString("logging.level")
	format := viper.GetString("logging.format")

	flags := rootCmd.PersistentFlags()
	if flags.Changed("log-level") {
		level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		format, _ = flags.GetString("log-format")
	}

	logCfg := config.LoggingConfig{
		Level:      normalizeLevel(level),
		Format:     cmp.Or(strings.ToLower(format), "json"),
		AddSource:  viper.GetBool("logging.add_source"),
		TimeFormat: viper.GetString("logging.time_format"),
	}
	slog.SetDefault(observability.NewLoggerWithWriter(logCfg, os.Stderr))
	return nil
}

// normalizeLevel lowercases a level name and folds the common "warning"
// spelling onto "warn". Empty falls back to info.
func normalizeLevel(level string) string {
	switch level = strings.ToLower(level); level {
	case "":
		return "info"
	case "warning":
		return "warn"
	}
	return level
}
