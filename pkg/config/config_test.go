package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shallowred/shallowred/pkg/cache"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shallowred.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Engine.Kind != EngineBuiltin || cfg.Cache.Entries != cache.DefaultCapacity {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
engine:
  kind: container
  image: example/stockfish:16
  cmd: [stockfish]
  mounts:
    /srv/nets: /nets
cache:
  entries: 4096
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Engine.Image != "example/stockfish:16" || cfg.Cache.Entries != 4096 {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	if cfg.Name != "shallow-red" || cfg.Cache.Queue != cache.DefaultQueueSize {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Engine.Mounts["/srv/nets"] != "/nets" {
		t.Fatalf("mounts not applied: %v", cfg.Engine.Mounts)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "engine:\n  kind: builtin\n  turbo: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "shallow-red" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "cache:\n  entries: 4096\n")
	t.Setenv("SHALLOWRED_CACHE_ENTRIES", "8192")
	t.Setenv("SHALLOWRED_ENGINE_KIND", "process")
	t.Setenv("SHALLOWRED_ENGINE_PATH", "/usr/games/stockfish")
	t.Setenv("SHALLOWRED_ENGINE_ARGS", "--threads 2")
	t.Setenv("SHALLOWRED_LOG_FILE", "/tmp/shallowred.log")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cache.Entries != 8192 {
		t.Errorf("expected env to override entries, got %d", cfg.Cache.Entries)
	}
	if cfg.Engine.Kind != EngineProcess || cfg.Engine.Path != "/usr/games/stockfish" {
		t.Errorf("engine env not applied: %+v", cfg.Engine)
	}
	if len(cfg.Engine.Args) != 2 || cfg.Engine.Args[1] != "2" {
		t.Errorf("unexpected args: %q", cfg.Engine.Args)
	}
	if cfg.Log.File != "/tmp/shallowred.log" {
		t.Errorf("log file env not applied: %q", cfg.Log.File)
	}
}

func TestParseEnvError(t *testing.T) {
	cfg := Default()
	t.Setenv("SHALLOWRED_CACHE_QUEUE", "lots")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"empty name", func(c *Config) { c.Name = " " }, "name"},
		{"bad level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"unknown engine", func(c *Config) { c.Engine.Kind = "cloud" }, "engine.kind"},
		{"process without path", func(c *Config) { c.Engine.Kind = EngineProcess }, "engine.path"},
		{"container without image", func(c *Config) { c.Engine.Kind = EngineContainer }, "engine.image"},
		{"negative depth", func(c *Config) { c.Engine.MaxDepth = -1 }, "max_depth"},
		{"zero entries", func(c *Config) { c.Cache.Entries = 0 }, "cache.entries"},
		{"zero queue", func(c *Config) { c.Cache.Queue = 0 }, "cache.queue"},
		{"shared output file", func(c *Config) {
			c.Log.File = "run/shallowred.out"
			c.Transcript = "./run/shallowred.out"
		}, "transcript"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errSub) {
				t.Fatalf("expected error mentioning %q, got %v", tt.errSub, err)
			}
		})
	}
}
