package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ZehenForever/sto-log-parser/internal/engine"
	"github.com/ZehenForever/sto-log-parser/internal/pipeline"
)

var errHalted = errors.New("parse halted")

var (
	parseRun      runFlags
	parseFormat   string
	parseEntities bool
	parseLimit    int
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse combat logs and print the combats",
	Long: `Parse every combat log matching the pattern in the log directory,
split the events into combats and print one row per combat.

Examples:
  # Parse the configured directory
  stolog parse

  # Only logs touched in the last 3 hours, with per-player rows
  stolog parse --dir "C:\STO\Live\logs\GameClient" --hours 3 --entities

  # Machine-readable output
  stolog parse --format json | jq '.combats[0].players'`,
	RunE: runParse,
}

func init() {
	addRunFlags(parseCmd, &parseRun)
	parseCmd.Flags().StringVarP(&parseFormat, "format", "f", "table",
		"Output format: table, json")
	parseCmd.Flags().BoolVarP(&parseEntities, "entities", "e", false,
		"Print the player rows under each combat (table format)")
	parseCmd.Flags().IntVarP(&parseLimit, "limit", "n", 0,
		"Only print the N most recent combats (0 prints all)")
}

// parseOutput is the json document written by parse --format json.
type parseOutput struct {
	Result  *pipeline.Result    `json:"result"`
	Combats []engine.CombatView `json:"combats"`
}

func runParse(cmd *cobra.Command, args []string) error {
	if parseFormat != "table" && parseFormat != "json" {
		return fmt.Errorf("invalid format %q: must be one of: table, json", parseFormat)
	}

	cfg, logger, err := loadConfig(cmd, &parseRun)
	if err != nil {
		return err
	}
	opts, err := pipelineOptions(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := pipeline.Run(ctx, opts)

	view := opts.ViewOptions()
	view.LimitCombats = parseLimit
	view.SummaryOnly = parseFormat == "table" && !parseEntities
	snap := engine.BuildSnapshot(time.Now(), 0, res.Combats, view)

	out := cmd.OutOrStdout()
	if parseFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(parseOutput{Result: res, Combats: snap.Combats}); err != nil {
			return err
		}
	} else {
		fmt.Fprint(cmd.ErrOrStderr(), res.Text(pipeline.LevelInfo))
		printCombats(out, snap.Combats, parseEntities)
	}

	if res.Halted() {
		return errHalted
	}
	return nil
}

func printCombats(out io.Writer, combats []engine.CombatView, entities bool) {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "Start\tDuration\tMap\tPlayers\tEvents\tDamage\tDPS")
	for _, c := range combats {
		name := c.Map
		if name == "" {
			name = "(undetermined)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.0f\t%.1f\n",
			c.Start.Format("2006-01-02 15:04:05"),
			time.Duration(c.DurationSec*float64(time.Second)).Round(time.Second),
			name, c.PlayerCount, c.EventCount, c.TotalDamage, c.DPSCombat)
		if !entities {
			continue
		}
		for _, p := range c.Players {
			fmt.Fprintf(w, "  %s\t%.0fs active\t%.1f%%\t%d kills\t%d hits\t%.0f\t%.1f\n",
				p.Name, p.ActiveSec, p.PctTotal, p.Kills, p.Attacks, p.Total, p.DPS)
		}
	}
	_ = w.Flush()
}
