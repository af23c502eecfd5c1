package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/versecast/internal/config"
	"github.com/dgnsrekt/versecast/internal/engine"
	"github.com/dgnsrekt/versecast/internal/events"
	"github.com/dgnsrekt/versecast/internal/publish"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	old := configFile
	defer func() { configFile = old }()
	configFile = filepath.Join(t.TempDir(), "versecast.yml")
	if err := ensureConfigFile(); err != nil {
		t.Fatalf("ensureConfigFile failed: %v", err)
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("default config does not parse: %v", err)
	}
	cfg, err := config.LoadFromViper(v)
	if err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Quota.Daily != 100000 || cfg.PositionTTL != 30*24*time.Hour {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestEnsureConfigFile_RejectsExtension(t *testing.T) {
	old := configFile
	defer func() { configFile = old }()
	configFile = filepath.Join(t.TempDir(), "versecast.toml")
	if err := ensureConfigFile(); err == nil {
		t.Error("expected an error for a .toml config")
	}
}

func TestFollowPlain(t *testing.T) {
	snapshots := make(chan engine.Snapshot, 8)
	notices := make(chan events.Event, 1)

	snap := func(state engine.State, index int) engine.Snapshot {
		return engine.Snapshot{
			State:       state,
			StateName:   state.String(),
			Reference:   "John 11",
			PreviewText: []string{"Now a certain man was sick,", "Jesus wept."}[index],
			UnitIndex:   index,
			TotalUnits:  2,
		}
	}
	snapshots <- snap(engine.StateLoading, 0)
	snapshots <- snap(engine.StatePlaying, 0)
	snapshots <- snap(engine.StatePlaying, 0)
	snapshots <- snap(engine.StatePaused, 0)
	snapshots <- snap(engine.StatePlaying, 1)
	snapshots <- engine.Snapshot{State: engine.StateIdle, StateName: "idle"}
	notices <- events.Event{Kind: events.Notice, Message: "Using the local voice."}

	var buf bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	followPlain(ctx, &buf, snapshots, notices)

	out := buf.String()
	if strings.Count(out, "John 11:1") != 1 {
		t.Errorf("verse 1 printed more than once:\n%s", out)
	}
	for _, want := range []string{"John 11:2", "Jesus wept.", "⏸"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if ctx.Err() != nil {
		t.Error("followPlain did not return at session end")
	}
}

func TestPrintWidget(t *testing.T) {
	wd := publish.Widget{
		Snapshot: engine.Snapshot{
			StateName:  "playing",
			Reference:  "Psalms 23",
			UnitIndex:  0,
			TotalUnits: 6,
			VoiceName:  "local",
		},
		UpdatedAt: time.Now().Add(-time.Minute),
	}
	var buf bytes.Buffer
	printWidget(&buf, wd)
	if !strings.Contains(buf.String(), "▶ Psalms 23 · 1/6") || !strings.Contains(buf.String(), "local voice") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestLoadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.yml")
	doc := "translation: web\nbooks:\n  - id: PSA\n    name: Psalms\n    chapters:\n      - number: 23\n        verses: [\"The Lord is my shepherd.\"]\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	d, err := loadDocument(path)
	if err != nil {
		t.Fatalf("loadDocument failed: %v", err)
	}
	if got := documentLanguage(config.Config{Language: "en-GB"}, d); got != "en-GB" {
		t.Errorf("language override ignored: %q", got)
	}
	if _, err := loadDocument(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("expected error for a missing document")
	}
}
