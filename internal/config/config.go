// Package config loads the parser settings from defaults, an optional YAML
// file and STOLOG_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/ZehenForever/sto-log-parser/internal/validation"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "STOLOG_CONFIG"

const envPrefix = "STOLOG_"

type Config struct {
	LogDir              string  `koanf:"log_dir"`
	Pattern             string  `koanf:"pattern" validate:"required"`
	HowFarBackHours     float64 `koanf:"how_far_back_hours" validate:"gte=0"`
	NewCombatGapSeconds float64 `koanf:"new_combat_gap_seconds" validate:"gt=0"`
	MinInactiveSeconds  float64 `koanf:"min_inactive_seconds" validate:"gte=0"`
	CombinePets         bool    `koanf:"combine_pets"`
	MapSettingsPath     string  `koanf:"map_settings_path"`

	Log LogConfig `koanf:"log"`
	Hub HubConfig `koanf:"hub"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

type HubConfig struct {
	Listen       string `koanf:"listen" validate:"required"`
	LimitCombats int    `koanf:"limit_combats" validate:"gte=0"`
}

func Default() Config {
	return Config{
		LogDir:              "",
		Pattern:             "combatlog*.log",
		HowFarBackHours:     0,
		NewCombatGapSeconds: 20,
		MinInactiveSeconds:  4,
		CombinePets:         true,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Hub: HubConfig{
			Listen:       "127.0.0.1:8787",
			LimitCombats: 50,
		},
	}
}

// Load layers defaults, the config file and the environment. path may be
// empty, in which case STOLOG_CONFIG and the candidate paths are tried. The
// returned string is the file that was used, if any.
func Load(path string) (Config, string, error) {
	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return Config{}, "", fmt.Errorf("load defaults: %w", err)
	}

	used, err := findConfigFile(path)
	if err != nil {
		return Config{}, used, err
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return Config{}, used, fmt.Errorf("load config file %s: %w", used, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return Config{}, used, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, used, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, used, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, used, nil
}

// envTransform maps STOLOG_LOG_DIR to log_dir and STOLOG_LOG__LEVEL to
// log.level. Double underscores separate sections.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if key == "config" {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

func findConfigFile(explicit string) (string, error) {
	if p := strings.TrimSpace(explicit); p != "" {
		if _, err := os.Stat(p); err != nil {
			return p, fmt.Errorf("config file: %w", err)
		}
		return p, nil
	}
	if p := strings.TrimSpace(os.Getenv(PathEnvVar)); p != "" {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", nil
			}
			return p, err
		}
		return p, nil
	}
	for _, p := range candidateConfigPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

func candidateConfigPaths() []string {
	var out []string

	if exe, err := os.Executable(); err == nil {
		out = append(out, filepath.Join(filepath.Dir(exe), "stolog.yaml"))
	}

	if base, err := os.UserConfigDir(); err == nil {
		folder := "stolog"
		if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
			folder = "STOLog"
		}
		out = append(out, filepath.Join(base, folder, "stolog.yaml"))
	}

	return out
}

func (c *Config) normalize() {
	c.LogDir = strings.TrimSpace(c.LogDir)
	c.Pattern = strings.TrimSpace(c.Pattern)
	c.MapSettingsPath = strings.TrimSpace(c.MapSettingsPath)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

func (c Config) Validate() error {
	return validation.Struct(c)
}

func (c Config) NewCombatGap() time.Duration {
	return seconds(c.NewCombatGapSeconds)
}

// MinInactive is clamped to one second.
func (c Config) MinInactive() time.Duration {
	d := seconds(c.MinInactiveSeconds)
	if d < time.Second {
		return time.Second
	}
	return d
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
