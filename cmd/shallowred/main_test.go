package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/shallowred/shallowred/pkg/cache"
	"github.com/shallowred/shallowred/pkg/config"
	"github.com/shallowred/shallowred/pkg/transcript"
)

func TestServeBuiltinSession(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Engine.MaxDepth = 2
	cfg.Cache.Entries = 4096
	cfg.Cache.Snapshot = filepath.Join(dir, "shallowred.cache")
	cfg.Transcript = filepath.Join(dir, "session.ndjson")

	in := strings.NewReader(strings.Join([]string{
		"uci",
		"isready",
		"position startpos moves e2e4",
		"go wtime 1000 btime 1000",
		"quit",
	}, "\n"))
	var out bytes.Buffer

	if err := serve(context.Background(), cfg, in, &out); err != nil {
		t.Fatalf("serve failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) < 4 {
		t.Fatalf("expected at least 4 lines, got %q", lines)
	}
	if lines[0] != "id name shallow-red "+Version || lines[1] != "uciok" || lines[2] != "readyok" {
		t.Fatalf("unexpected handshake: %q", lines[:3])
	}
	if last := lines[len(lines)-1]; !strings.HasPrefix(last, "bestmove ") {
		t.Fatalf("expected bestmove last, got %q", last)
	}

	if _, err := cache.ReadSnapshotInfo(cfg.Cache.Snapshot); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	records, err := transcript.Read(cfg.Transcript)
	if err != nil {
		t.Fatalf("read transcript failed: %v", err)
	}
	s := transcript.Summarize(records)
	if s.Received != 5 || s.Searches != 1 {
		t.Fatalf("unexpected transcript summary: %+v", s)
	}
}

func TestServeFailsPreflight(t *testing.T) {
	cfg := config.Default()
	cfg.Transcript = filepath.Join(t.TempDir(), "missing", "session.ndjson")

	err := serve(context.Background(), cfg, strings.NewReader("quit\n"), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "transcript") {
		t.Fatalf("expected transcript preflight failure, got %v", err)
	}
}

func TestCheckLogFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		wantErr bool
	}{
		{"stderr", "", false},
		{"writable directory", filepath.Join(dir, "shallowred.log"), false},
		{"missing directory", filepath.Join(dir, "missing", "shallowred.log"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Log.File = tt.file
			err := checkLogFile(context.Background(), cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkLogFile(%q) error = %v, wantErr %v", tt.file, err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "log-file") {
				t.Errorf("expected the log-file check to be named, got %v", err)
			}
		})
	}
}

func TestNewEngineRejectsUnknownKind(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.Kind = "cloud"
	_, closeFn, err := newEngine(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if closeFn == nil {
		t.Fatal("close function must never be nil")
	}
}

func TestNewEngineContainerNeedsRuntime(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.Kind = config.EngineContainer
	cfg.Engine.Image = "example/stockfish"
	if _, _, err := newEngine(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error without a docker runtime")
	}
}

func TestBudgetCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"budget", "--moves", "30", "--remaining", "30s"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("budget failed: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "2s" {
		t.Fatalf("budget = %q, want 2s", got)
	}
}

func TestOverrideOnlyWhenChanged(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var level string
	var depth int
	flags.StringVar(&level, "log-level", "info", "")
	flags.IntVar(&depth, "max-depth", 0, "")
	if err := flags.Parse([]string{"--max-depth", "6"}); err != nil {
		t.Fatalf("parse flags failed: %v", err)
	}

	cfg := config.Default()
	cfg.Log.Level = "debug"
	override(flags, "log-level", &cfg.Log.Level, level)
	override(flags, "max-depth", &cfg.Engine.MaxDepth, depth)

	if cfg.Log.Level != "debug" {
		t.Errorf("unset flag replaced configured level with %q", cfg.Log.Level)
	}
	if cfg.Engine.MaxDepth != 6 {
		t.Errorf("expected max depth 6, got %d", cfg.Engine.MaxDepth)
	}
}
