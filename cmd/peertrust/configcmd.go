package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"peertrust/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgPath != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Config: %s\n", cfgPath)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Config: defaults (no file found)")
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.Summary())
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigPath()
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
