package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/shallowred/shallowred/pkg/cache"
	"github.com/shallowred/shallowred/pkg/config"
	"github.com/shallowred/shallowred/pkg/engine/container"
	srlog "github.com/shallowred/shallowred/pkg/log"
	"github.com/shallowred/shallowred/pkg/preflight"
	"github.com/shallowred/shallowred/pkg/search"
	"github.com/shallowred/shallowred/pkg/transcript"
	"github.com/shallowred/shallowred/pkg/uci"
)

var (
	configPath     string
	logLevel       string
	logFile        string
	logFormat      string
	transcriptPath string
	engineKind     string
	enginePath     string
	engineArgs     []string
	engineImage    string
	maxDepth       int
	cacheEntries   int
	cacheSnapshot  string
	skipPreflight  bool
)

var rootCmd = &cobra.Command{
	Use:   "shallowred",
	Short: "shallow-red is a UCI chess engine.",
	Long: `shallow-red speaks the Universal Chess Interface on standard input and
output. Point a chess GUI at the binary, or type commands by hand:

  uci
  position startpos moves e2e4
  go wtime 60000 btime 60000
  quit

Diagnostics go to stderr or --log-file; standard output carries only protocol
lines.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		if err := checkLogFile(cmd.Context(), cfg); err != nil {
			return err
		}
		if err := srlog.Init(srlog.Config{
			Level:  srlog.LogLevel(cfg.Log.Level),
			File:   cfg.Log.File,
			Format: cfg.Log.Format,
		}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer srlog.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// resolveConfig layers explicitly set flags over the file and environment.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	override(flags, "log-level", &cfg.Log.Level, logLevel)
	override(flags, "log-file", &cfg.Log.File, logFile)
	override(flags, "log-format", &cfg.Log.Format, logFormat)
	override(flags, "transcript", &cfg.Transcript, transcriptPath)
	override(flags, "engine", &cfg.Engine.Kind, engineKind)
	override(flags, "engine-path", &cfg.Engine.Path, enginePath)
	override(flags, "engine-arg", &cfg.Engine.Args, engineArgs)
	override(flags, "image", &cfg.Engine.Image, engineImage)
	override(flags, "max-depth", &cfg.Engine.MaxDepth, maxDepth)
	override(flags, "hash-entries", &cfg.Cache.Entries, cacheEntries)
	override(flags, "cache-snapshot", &cfg.Cache.Snapshot, cacheSnapshot)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// override copies value into dst when the flag was set on the command line.
func override[T any](flags *pflag.FlagSet, name string, dst *T, value T) {
	if flags.Changed(name) {
		*dst = value
	}
}

// checkLogFile verifies the log file can be created. It runs before the
// logger opens that file, so only failures are reported; serve reports the
// skip.
func checkLogFile(ctx context.Context, cfg config.Config) error {
	if skipPreflight || cfg.Log.File == "" {
		return nil
	}
	return preflight.NewChecker(preflight.Config{
		Quiet:   true,
		LogFile: cfg.Log.File,
	}).Run(ctx)
}

func serve(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) error {
	var docker *container.Runtime
	if cfg.Engine.Kind == config.EngineContainer {
		rt, err := container.NewRuntime()
		if err != nil {
			return fmt.Errorf("failed to create docker client: %w", err)
		}
		defer rt.Close()
		docker = rt
	}

	pcfg := preflight.Config{
		Skip:           skipPreflight,
		SnapshotPath:   cfg.Cache.Snapshot,
		TranscriptPath: cfg.Transcript,
	}
	if cfg.Engine.Kind == config.EngineProcess {
		pcfg.EnginePath = cfg.Engine.Path
	}
	if docker != nil {
		pcfg.Docker = docker
	}
	if err := preflight.NewChecker(pcfg).Run(ctx); err != nil {
		return err
	}

	var tr *transcript.Writer
	if cfg.Transcript != "" {
		w, err := transcript.Open(cfg.Transcript)
		if err != nil {
			return err
		}
		defer w.Close()
		tr = w
	}

	table := cache.NewTable(cfg.Cache.Entries)
	if cfg.Cache.Snapshot != "" {
		loadSnapshot(table, cfg.Cache.Snapshot)
	}
	maint := cache.NewMaintainer(table, cfg.Cache.Queue)
	handle := maint.Handle()

	eng, closeEngine, err := newEngine(ctx, cfg, docker)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEngine(); err != nil {
			srlog.Warn("failed to close engine", "error", err)
		}
	}()

	output := uci.NewOutput(out, tr)
	controller := search.NewController(eng, output, handle, tr)
	session := uci.NewSession(controller, output, uci.Options{
		Name:       cfg.Name,
		Version:    Version,
		Cache:      handle,
		Transcript: tr,
	})
	srlog.Info("session started", "engine", cfg.Engine.Kind, "hash_entries", cfg.Cache.Entries)

	// The maintainer outlives the session so that stores queued by the last
	// search are applied before the snapshot is written.
	maintCtx, stopMaint := context.WithCancel(context.Background())
	g := new(errgroup.Group)
	g.Go(func() error {
		return maint.Run(maintCtx)
	})
	g.Go(func() error {
		defer stopMaint()
		err := session.Run(ctx, in)
		handle.Flush()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if cfg.Cache.Snapshot != "" {
		if err := table.SaveSnapshot(cfg.Cache.Snapshot); err != nil {
			srlog.Warn("failed to save cache snapshot", "path", cfg.Cache.Snapshot, "error", err)
		} else {
			srlog.Info("cache snapshot saved", "path", cfg.Cache.Snapshot, "entries", table.Len())
		}
	}
	st := maint.Stats()
	srlog.Info("session finished",
		"moves_played", session.MovesPlayed(),
		"cache_entries", st.Entries,
		"cache_stores", st.Applied,
		"cache_dropped", st.Dropped,
	)
	return nil
}

func loadSnapshot(table *cache.Table, path string) {
	n, err := table.LoadSnapshot(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		srlog.Info("no cache snapshot yet", "path", path)
	case err != nil:
		srlog.Warn("ignoring unreadable cache snapshot", "path", path, "error", err)
	default:
		srlog.Info("cache snapshot loaded", "path", path, "entries", n)
	}
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	flags.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flags.StringVar(&logFile, "log-file", "", "Write diagnostics to this file instead of stderr")
	flags.StringVar(&logFormat, "log-format", "auto", "Log format: auto, console, json")
	flags.StringVar(&transcriptPath, "transcript", "", "Append an NDJSON transcript of the session to this file")
	flags.StringVarP(&engineKind, "engine", "e", config.EngineBuiltin, "Engine backend: builtin, process, container")
	flags.StringVar(&enginePath, "engine-path", "", "External UCI engine binary (process backend)")
	flags.StringSliceVar(&engineArgs, "engine-arg", nil, "Argument for the external engine (repeatable)")
	flags.StringVarP(&engineImage, "image", "i", "", "Docker image running a UCI engine (container backend)")
	flags.IntVar(&maxDepth, "max-depth", 0, "Depth limit for the builtin engine (0 = default)")
	flags.IntVar(&cacheEntries, "hash-entries", cache.DefaultCapacity, "Transposition cache capacity in entries")
	flags.StringVar(&cacheSnapshot, "cache-snapshot", "", "Load the cache from and save it to this file")
	flags.BoolVar(&skipPreflight, "skip-preflight", false, "Skip startup checks")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
