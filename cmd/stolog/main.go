package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set by ldflags)
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stolog",
	Short: "Star Trek Online combat log parser",
	Long: `stolog reads Star Trek Online combat logs, splits them into combats,
works out which map each combat was fought on and reports per-player
damage, pets and inactivity.

Settings come from defaults, an optional stolog.yaml, STOLOG_* environment
variables and finally command-line flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Config file (default: $STOLOG_CONFIG, then stolog.yaml next to the binary or in the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format: console, json")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mapsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "stolog %s (commit: %s, built: %s)\n", version, commit, date)
	},
}
