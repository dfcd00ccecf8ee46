package main

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var v *viper.Viper

var rootCmd = &cobra.Command{
	Use:   "mfsched",
	Short: "multi-fidelity hyperparameter search on synthetic benchmarks",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := readConfigFile(); err != nil {
			return err
		}
		return initLogging(v.GetString("log_level"))
	},
	SilenceUsage: true,
}

//nolint:gochecknoinit
func init() {
	v = viper.New()
	v.SetEnvPrefix("MFSCHED")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	registerString(flags, "log-level", "info",
		"logging level, one of [trace, debug, info, warn, error, fatal]")
	registerString(flags, "config-file", "",
		"optional YAML configuration file; flags and environment override it")

	rootCmd.AddCommand(newRunCmd(), newBenchmarksCmd())
}

// readConfigFile merges the optional configuration file into viper. Values
// set by flag or environment take precedence over the file.
func readConfigFile() error {
	path := v.GetString("config_file")
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "reading configuration file %s", path)
	}
	return nil
}

func initLogging(level string) error {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	log.SetLevel(parsed)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return nil
}

func accessPath(flagName string) string {
	return strings.ReplaceAll(flagName, "-", "_")
}

func registerString(flags *pflag.FlagSet, name, value, usage string) {
	flags.String(name, value, usage)
	_ = v.BindPFlag(accessPath(name), flags.Lookup(name))
	v.SetDefault(accessPath(name), value)
}

func registerInt(flags *pflag.FlagSet, name string, value int, usage string) {
	flags.Int(name, value, usage)
	_ = v.BindPFlag(accessPath(name), flags.Lookup(name))
	v.SetDefault(accessPath(name), value)
}

func registerFloat(flags *pflag.FlagSet, name string, value float64, usage string) {
	flags.Float64(name, value, usage)
	_ = v.BindPFlag(accessPath(name), flags.Lookup(name))
	v.SetDefault(accessPath(name), value)
}

func registerUint64(flags *pflag.FlagSet, name string, value uint64, usage string) {
	flags.Uint64(name, value, usage)
	_ = v.BindPFlag(accessPath(name), flags.Lookup(name))
	v.SetDefault(accessPath(name), value)
}
