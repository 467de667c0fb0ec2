// Package config loads session configuration. Values are layered in order:
// built-in defaults, an optional YAML file, SHALLOWRED_* environment
// variables, and finally command-line flags applied by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/shallowred/shallowred/pkg/cache"
	srlog "github.com/shallowred/shallowred/pkg/log"
)

// EnvPrefix prefixes every environment variable the session reads.
const EnvPrefix = "SHALLOWRED_"

// Engine kinds.
const (
	EngineBuiltin   = "builtin"
	EngineProcess   = "process"
	EngineContainer = "container"
)

type Config struct {
	Name       string       `yaml:"name" env:"NAME"`
	Log        LogConfig    `yaml:"log" envPrefix:"LOG_"`
	Transcript string       `yaml:"transcript" env:"TRANSCRIPT"`
	Engine     EngineConfig `yaml:"engine" envPrefix:"ENGINE_"`
	Cache      CacheConfig  `yaml:"cache" envPrefix:"CACHE_"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	File   string `yaml:"file" env:"FILE"`
	Format string `yaml:"format" env:"FORMAT"`
}

// EngineConfig selects the decision engine behind the session.
type EngineConfig struct {
	Kind     string `yaml:"kind" env:"KIND"`
	MaxDepth int    `yaml:"max_depth" env:"MAX_DEPTH"`

	// process
	Path string   `yaml:"path" env:"PATH"`
	Args []string `yaml:"args" env:"ARGS" envSeparator:" "`

	// container
	Image  string            `yaml:"image" env:"IMAGE"`
	Cmd    []string          `yaml:"cmd" env:"CMD" envSeparator:" "`
	Env    map[string]string `yaml:"env" env:"ENV"`
	Mounts map[string]string `yaml:"mounts" env:"MOUNTS"`
	Pull   bool              `yaml:"pull" env:"PULL"`
}

type CacheConfig struct {
	Entries  int    `yaml:"entries" env:"ENTRIES"`
	Queue    int    `yaml:"queue" env:"QUEUE"`
	Snapshot string `yaml:"snapshot" env:"SNAPSHOT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Name: "shallow-red",
		Log: LogConfig{
			Level:  string(srlog.LevelInfo),
			Format: srlog.FormatAuto,
		},
		Engine: EngineConfig{
			Kind: EngineBuiltin,
		},
		Cache: CacheConfig{
			Entries: cache.DefaultCapacity,
			Queue:   cache.DefaultQueueSize,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped when
// path is empty) and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ParseEnv overlays SHALLOWRED_* variables onto target. Unset variables leave
// the existing values alone.
func ParseEnv(target *Config) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if _, err := srlog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	switch c.Log.Format {
	case "", srlog.FormatAuto, srlog.FormatConsole, srlog.FormatJSON:
	default:
		return fmt.Errorf("invalid log.format %q", c.Log.Format)
	}

	switch c.Engine.Kind {
	case EngineBuiltin:
	case EngineProcess:
		if c.Engine.Path == "" {
			return fmt.Errorf("engine.path is required for the %s engine", EngineProcess)
		}
	case EngineContainer:
		if c.Engine.Image == "" {
			return fmt.Errorf("engine.image is required for the %s engine", EngineContainer)
		}
	default:
		return fmt.Errorf("invalid engine.kind %q (want %s, %s or %s)", c.Engine.Kind, EngineBuiltin, EngineProcess, EngineContainer)
	}
	if c.Engine.MaxDepth < 0 {
		return fmt.Errorf("engine.max_depth must not be negative")
	}

	if c.Cache.Entries <= 0 {
		return fmt.Errorf("cache.entries must be positive")
	}
	if c.Cache.Queue <= 0 {
		return fmt.Errorf("cache.queue must be positive")
	}
	return c.validateOutputFiles()
}

// validateOutputFiles rejects two outputs configured onto the same file.
func (c Config) validateOutputFiles() error {
	outputs := []struct{ field, path string }{
		{"log.file", c.Log.File},
		{"transcript", c.Transcript},
		{"cache.snapshot", c.Cache.Snapshot},
	}
	seen := make(map[string]string, len(outputs))
	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		abs, err := filepath.Abs(o.path)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", o.field, err)
		}
		if other, ok := seen[abs]; ok {
			return fmt.Errorf("%s and %s both point to %s", other, o.field, abs)
		}
		seen[abs] = o.field
	}
	return nil
}
