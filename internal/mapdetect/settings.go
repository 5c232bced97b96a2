// Package mapdetect classifies a combat to a named map by matching the
// identifiers of its participants against a ruleset.
package mapdetect

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/ZehenForever/sto-log-parser/internal/validation"
)

//go:embed defaults.json
var defaultsJSON []byte

var ErrUnknownFormat = errors.New("unknown ruleset format")

// MapEntity is one substring pattern.
type MapEntity struct {
	Pattern     string `json:"pattern" yaml:"pattern" validate:"required"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	UniqueToMap bool   `json:"uniqueToMap,omitempty" yaml:"uniqueToMap,omitempty"`
}

// Map is one rule. Zero player bounds mean unbounded.
type Map struct {
	Name       string      `json:"name" yaml:"name" validate:"required"`
	Enabled    bool        `json:"enabled" yaml:"enabled"`
	MinPlayers int         `json:"minPlayers,omitempty" yaml:"minPlayers,omitempty" validate:"gte=0"`
	MaxPlayers int         `json:"maxPlayers,omitempty" yaml:"maxPlayers,omitempty" validate:"omitempty,gtefield=MinPlayers"`
	Entities   []MapEntity `json:"entities" yaml:"entities" validate:"dive"`
	Exclusions []MapEntity `json:"exclusions,omitempty" yaml:"exclusions,omitempty" validate:"dive"`
}

type Settings struct {
	Version          int         `json:"version" yaml:"version" validate:"gte=1"`
	Maps             []Map       `json:"maps" yaml:"maps" validate:"dive"`
	GenericGround    Map         `json:"genericGround" yaml:"genericGround"`
	GenericSpace     Map         `json:"genericSpace" yaml:"genericSpace"`
	EntityExclusions []MapEntity `json:"entityExclusions,omitempty" yaml:"entityExclusions,omitempty" validate:"dive"`
}

// DefaultSettings returns a fresh copy of the built-in ruleset.
func DefaultSettings() *Settings {
	s, err := Decode(bytes.NewReader(defaultsJSON), FormatJSON)
	if err != nil {
		panic(fmt.Sprintf("mapdetect: embedded defaults: %v", err))
	}
	return s
}

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format by file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

func Decode(r io.Reader, format Format) (*Settings, error) {
	var s Settings
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&s); err != nil {
			return nil, fmt.Errorf("decode json ruleset: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&s); err != nil {
			return nil, fmt.Errorf("decode yaml ruleset: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return &s, nil
}

func (s *Settings) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		b = append(b, '\n')
		_, err = w.Write(b)
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Load reads and validates a ruleset file.
func Load(path string) (*Settings, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) Save(path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := s.Encode(&buf, format); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Validate checks field rules and that map names are unique.
func (s *Settings) Validate() error {
	if err := validation.Struct(s); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(s.Maps))
	for _, m := range s.Maps {
		key := strings.ToLower(m.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate map name %q", m.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}
