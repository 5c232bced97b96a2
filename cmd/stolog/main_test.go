package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/ZehenForever/sto-log-parser/internal/engine"
	"github.com/ZehenForever/sto-log-parser/internal/logging"
	"github.com/ZehenForever/sto-log-parser/internal/mapdetect"
	"github.com/ZehenForever/sto-log-parser/internal/pipeline"
)

const sampleLog = `24:01:15:20:00:00.0::Alice,P[100@200 Alice@alice],,*,Borg Probe,C[20 Space_Borg_Probe],Phaser Array,Pn.Phaser_Array,Phaser,Critical,100,100
24:01:15:20:00:05.0::Alice,P[100@200 Alice@alice],,*,Borg Probe,C[20 Space_Borg_Probe],Phaser Array,Pn.Phaser_Array,Phaser,Kill,200,200
24:01:15:20:03:00.0::Alice,P[100@200 Alice@alice],,*,Borg Dreadnought,C[901 Space_Borg_Dreadnought_Raidisode_Sibrian_Final_Boss],Phaser Array,Pn.Phaser_Array,Phaser,,50,50
`

// execute runs the root command with a clean config environment.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("STOLOG_CONFIG", "")

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil || !strings.HasPrefix(out, "stolog dev") {
		t.Fatalf("out=%q err=%v", out, err)
	}
}

func TestMapsDefaultsAndValidate(t *testing.T) {
	out, err := execute(t, "maps", "defaults", "--format", "json")
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	p := filepath.Join(t.TempDir(), "maps.json")
	if err := os.WriteFile(p, []byte(out), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err = execute(t, "maps", "validate", p)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := fmt.Sprintf("version 1, %d maps", len(mapdetect.DefaultSettings().Maps))
	if !strings.Contains(out, want) {
		t.Fatalf("out=%q want containing %q", out, want)
	}

	if _, err := execute(t, "maps", "defaults", "--format", "toml"); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestParseCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "combatlog_1.log"), []byte(sampleLog), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := execute(t, "parse", "--dir", dir, "--format", "json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var doc struct {
		Result struct {
			Success bool   `json:"success"`
			Level   string `json:"level"`
		} `json:"result"`
		Combats []engine.CombatView `json:"combats"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode: %v out=%s", err, out)
	}
	if !doc.Result.Success || doc.Result.Level != "info" || len(doc.Combats) != 2 {
		t.Fatalf("result=%+v combats=%d", doc.Result, len(doc.Combats))
	}
	if doc.Combats[0].Map != "Event: Infected Space" {
		t.Fatalf("most recent map=%q", doc.Combats[0].Map)
	}
}

func TestParseCommand_HaltReturnsError(t *testing.T) {
	_, err := execute(t, "parse", "--dir", t.TempDir(), "--format", "table")
	if !errors.Is(err, errHalted) {
		t.Fatalf("err=%v want=%v", err, errHalted)
	}
}

func TestPrintCombats(t *testing.T) {
	start := time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC)
	combats := []engine.CombatView{
		{Start: start, DurationSec: 65.4, Map: "Hive Space", PlayerCount: 1, EventCount: 10, TotalDamage: 12345, DPSCombat: 188.8,
			Players: []engine.EntityView{{Name: "Alice", Total: 12000, DPS: 183.5, ActiveSec: 60, PctTotal: 97.2, Kills: 3, Attacks: 9}}},
		{Start: start.Add(time.Hour), DurationSec: 1},
	}
	var buf bytes.Buffer
	printCombats(&buf, combats, true)
	out := buf.String()
	for _, want := range []string{"Start", "Hive Space", "1m5s", "12345", "Alice", "3 kills", "(undetermined)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestReparseKeepsStoreOnHalt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "combatlog_1.log"), []byte(sampleLog), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := engine.NewStore()
	opts := pipeline.Options{
		Dir:          dir,
		Pattern:      pipeline.DefaultPattern,
		NewCombatGap: 20 * time.Second,
		Location:     time.UTC,
		Store:        store,
		Logger:       logging.Nop(),
	}
	if res := reparse(context.Background(), opts, logging.Nop()); !res.Success || store.Len() != 2 {
		t.Fatalf("first run success=%v len=%d", res.Success, store.Len())
	}

	opts.Pattern = "missing*.log"
	if res := reparse(context.Background(), opts, logging.Nop()); !res.Halted() || store.Len() != 2 {
		t.Fatalf("halted run level=%v len=%d", res.Level, store.Len())
	}
}
