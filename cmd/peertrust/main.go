// Command peertrust runs the peer trust and opinion aggregation engine.
package main

import (
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"peertrust/internal/config"
)

var log = logging.Logger("peertrust")

var rootCmd = &cobra.Command{
	Use:   "peertrust",
	Short: "Peer trust store and network opinion aggregation",
	Long: `peertrust keeps per-peer trust records, selects recommenders by
organisation and recommendation trust, and aggregates peer reports about a
target into a cached, trust-weighted network opinion.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

var (
	configPath string
	debug      bool
	cfg        *config.Config
	cfgPath    string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config named by --config, or searches the default
// locations
func loadConfig() (*config.Config, string, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

func setupLogging() error {
	var err error
	cfg, cfgPath, err = loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return err
	}
	logging.SetAllLoggers(lvl)

	if cfgPath != "" {
		log.Debugf("Loaded config from %s", cfgPath)
	} else {
		log.Debug("No config file found, using defaults")
	}
	return nil
}
