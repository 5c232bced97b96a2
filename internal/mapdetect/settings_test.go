package mapdetect

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultSettings_Valid(t *testing.T) {
	s := DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if s.Version != 1 || len(s.Maps) == 0 {
		t.Fatalf("version=%d maps=%d", s.Version, len(s.Maps))
	}
	if s.GenericGround.Name == "" || s.GenericSpace.Name == "" {
		t.Fatalf("generic rules missing names")
	}

	// callers get their own copy
	s.Maps[0].Name = "changed"
	if DefaultSettings().Maps[0].Name == "changed" {
		t.Fatalf("DefaultSettings shares state")
	}
}

func TestSettings_RoundTripPreservesDetection(t *testing.T) {
	sessions := []fakeCombat{
		{players: 1, ids: []string{sibrianBoss}},
		{players: 2, ids: []string{"C[1 Space_Borg_Cube_Hive]", "C[2 Space_Borg_Dreadnought_Hive]"}},
		{players: 1, ids: []string{"C[3 Ground_Klingon_Warrior]"}},
		{players: 1, ids: []string{"C[4 Space_Borg_Battleship_Raidisode_Sibrian_Elite_Initial]"}},
		{players: 9, ids: []string{"C[5 Ground_Borg_Queen_Disconnected]", "C[6 Space_Probe]"}},
	}

	orig := DefaultSettings()
	orig.Maps[1].Entities[1].Enabled = false

	for _, format := range []Format{FormatJSON, FormatYAML} {
		var buf bytes.Buffer
		if err := orig.Encode(&buf, format); err != nil {
			t.Fatalf("%s encode: %v", format, err)
		}
		back, err := Decode(&buf, format)
		if err != nil {
			t.Fatalf("%s decode: %v", format, err)
		}

		if len(back.Maps) != len(orig.Maps) {
			t.Fatalf("%s maps=%d want=%d", format, len(back.Maps), len(orig.Maps))
		}
		for i := range orig.Maps {
			if back.Maps[i].Name != orig.Maps[i].Name || back.Maps[i].Enabled != orig.Maps[i].Enabled {
				t.Fatalf("%s map %d=%+v", format, i, back.Maps[i])
			}
			for j, e := range orig.Maps[i].Entities {
				if back.Maps[i].Entities[j] != e {
					t.Fatalf("%s map %d entity %d=%+v want=%+v", format, i, j, back.Maps[i].Entities[j], e)
				}
			}
			if len(back.Maps[i].Exclusions) != len(orig.Maps[i].Exclusions) {
				t.Fatalf("%s map %d exclusions=%d", format, i, len(back.Maps[i].Exclusions))
			}
		}

		a, b := NewDetector(orig), NewDetector(back)
		for i, sess := range sessions {
			ma, oka := a.DetectCombat(sess)
			mb, okb := b.DetectCombat(sess)
			if ma != mb || oka != okb {
				t.Fatalf("%s session %d: before=%+v/%v after=%+v/%v", format, i, ma, oka, mb, okb)
			}
		}
	}
}

func TestSettings_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	s := DefaultSettings()
	for _, name := range []string{"maps.json", "maps.yaml", "maps.yml"} {
		p := filepath.Join(dir, name)
		if err := s.Save(p); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		got, err := Load(p)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if len(got.Maps) != len(s.Maps) || got.Maps[0].Name != s.Maps[0].Name {
			t.Fatalf("%s maps=%d first=%q", name, len(got.Maps), got.Maps[0].Name)
		}
	}

	if err := s.Save(filepath.Join(dir, "maps.txt")); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("save err=%v want=%v", err, ErrUnknownFormat)
	}
	if _, err := Load(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("load err=%v want not-exist", err)
	}
}

func TestSettings_LoadRejectsInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.yaml")
	body := "version: 1\nmaps:\n  - name: \"\"\n    enabled: true\n    entities: []\ngenericGround:\n  name: g\ngenericSpace:\n  name: s\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(p)
	if err == nil || !strings.Contains(err.Error(), "Name is required") {
		t.Fatalf("err=%v", err)
	}
}

func TestSettings_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"version", func(s *Settings) { s.Version = 0 }, "Version"},
		{"empty pattern", func(s *Settings) { s.Maps[0].Entities[0].Pattern = "" }, "Pattern is required"},
		{"player bounds", func(s *Settings) { s.Maps[0].MinPlayers = 5; s.Maps[0].MaxPlayers = 2 }, "MaxPlayers"},
		{"negative min", func(s *Settings) { s.Maps[0].MinPlayers = -1 }, "MinPlayers"},
		{"duplicate", func(s *Settings) { s.Maps[1].Name = strings.ToUpper(s.Maps[0].Name) }, "duplicate map name"},
		{"generic name", func(s *Settings) { s.GenericSpace.Name = "" }, "GenericSpace.Name"},
	}
	for _, tc := range cases {
		s := testSettings()
		tc.mutate(s)
		err := s.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err=%v want containing %q", tc.name, err, tc.want)
		}
	}
	if err := testSettings().Validate(); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]Format{"a.json": FormatJSON, "b.YAML": FormatYAML, "c.yml": FormatYAML} {
		got, err := FormatFromPath(path)
		if err != nil || got != want {
			t.Fatalf("%s: got=%q err=%v", path, got, err)
		}
	}
	if _, err := FormatFromPath("d.toml"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err=%v", err)
	}
}
