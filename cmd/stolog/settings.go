package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZehenForever/sto-log-parser/internal/config"
	"github.com/ZehenForever/sto-log-parser/internal/logging"
	"github.com/ZehenForever/sto-log-parser/internal/mapdetect"
	"github.com/ZehenForever/sto-log-parser/internal/pipeline"
)

// runFlags are the parse settings shared by parse and serve. Only flags the
// user actually set override the loaded config.
type runFlags struct {
	dir         string
	pattern     string
	hours       float64
	gap         float64
	minInactive float64
	combinePets bool
	mapsPath    string
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().StringVarP(&f.dir, "dir", "d", "",
		"Combat log directory")
	cmd.Flags().StringVarP(&f.pattern, "pattern", "p", "",
		"Log file glob relative to --dir (default combatlog*.log)")
	cmd.Flags().Float64Var(&f.hours, "hours", 0,
		"Skip files last modified more than N hours ago (0 disables)")
	cmd.Flags().Float64Var(&f.gap, "gap", 0,
		"Seconds of inactivity before a new combat starts")
	cmd.Flags().Float64Var(&f.minInactive, "min-inactive", 0,
		"Seconds without events that count as a dead zone (min 1)")
	cmd.Flags().BoolVar(&f.combinePets, "combine-pets", true,
		"Merge pets of the same name instead of splitting them by source")
	cmd.Flags().StringVar(&f.mapsPath, "maps", "",
		"Map detection rules (.json or .yaml); built-in rules when empty")
}

func loadConfig(cmd *cobra.Command, f *runFlags) (config.Config, *logging.Logger, error) {
	cfg, used, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}

	flags := cmd.Flags()
	if f != nil {
		if flags.Changed("dir") {
			cfg.LogDir = f.dir
		}
		if flags.Changed("pattern") {
			cfg.Pattern = f.pattern
		}
		if flags.Changed("hours") {
			cfg.HowFarBackHours = f.hours
		}
		if flags.Changed("gap") {
			cfg.NewCombatGapSeconds = f.gap
		}
		if flags.Changed("min-inactive") {
			cfg.MinInactiveSeconds = f.minInactive
		}
		if flags.Changed("combine-pets") {
			cfg.CombinePets = f.combinePets
		}
		if flags.Changed("maps") {
			cfg.MapSettingsPath = f.mapsPath
		}
	}
	if logLevel != "" {
		cfg.Log.Level = strings.ToLower(logLevel)
	}
	if logFormat != "" {
		cfg.Log.Format = strings.ToLower(logFormat)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid settings: %w", err)
	}

	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Out: cmd.ErrOrStderr()})
	if used != "" {
		logger.Debugf("config loaded from %s", used)
	}
	return cfg, logger, nil
}

func loadMapSettings(path string) (*mapdetect.Settings, error) {
	if path == "" {
		return mapdetect.DefaultSettings(), nil
	}
	s, err := mapdetect.Load(path)
	if err != nil {
		return nil, fmt.Errorf("map rules: %w", err)
	}
	return s, nil
}

func pipelineOptions(cfg config.Config, logger *logging.Logger) (pipeline.Options, error) {
	maps, err := loadMapSettings(cfg.MapSettingsPath)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Dir:             cfg.LogDir,
		Pattern:         cfg.Pattern,
		HowFarBackHours: cfg.HowFarBackHours,
		NewCombatGap:    cfg.NewCombatGap(),
		MinInactive:     cfg.MinInactive(),
		CombinePets:     cfg.CombinePets,
		MapSettings:     maps,
		Location:        time.Local,
		Logger:          logger,
	}, nil
}
