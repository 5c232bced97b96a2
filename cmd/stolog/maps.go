package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZehenForever/sto-log-parser/internal/mapdetect"
)

var mapsFormat string

var mapsCmd = &cobra.Command{
	Use:   "maps",
	Short: "Inspect map detection rules",
}

var mapsValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Check a map rules file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mapdetect.Load(args[0])
		if err != nil {
			return err
		}
		enabled := 0
		for _, m := range s.Maps {
			if m.Enabled {
				enabled++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: version %d, %d maps (%d enabled), %d global exclusions\n",
			args[0], s.Version, len(s.Maps), enabled, len(s.EntityExclusions))
		return nil
	},
}

var mapsDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the built-in map rules",
	Long: `Print the built-in map rules. Redirect the output to a file and point
map_settings_path (or --maps) at it to customise detection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := mapdetect.Format(mapsFormat)
		if format != mapdetect.FormatJSON && format != mapdetect.FormatYAML {
			return fmt.Errorf("invalid format %q: must be one of: json, yaml", mapsFormat)
		}
		return mapdetect.DefaultSettings().Encode(cmd.OutOrStdout(), format)
	},
}

func init() {
	mapsDefaultsCmd.Flags().StringVarP(&mapsFormat, "format", "f", "yaml",
		"Output format: json, yaml")

	mapsCmd.AddCommand(mapsValidateCmd)
	mapsCmd.AddCommand(mapsDefaultsCmd)
}
