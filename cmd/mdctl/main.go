package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/san-kum/mdctl/internal/config"
	"github.com/san-kum/mdctl/internal/engine"
	"github.com/san-kum/mdctl/internal/history"
	"github.com/san-kum/mdctl/internal/logging"
	"github.com/san-kum/mdctl/internal/storage"
)

var (
	configFile string
	dataDir    string
	logLevel   string
	backend    string
	wasmPath   string
	threads    int

	preset string
	steps  int
	track  []string
	every  int64

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mdctl",
		Short:         "drive a molecular dynamics engine from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&dataDir, "data", "", "data directory")
	pf.StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.StringVar(&backend, "backend", "", "engine backend: native or wasm")
	pf.StringVar(&wasmPath, "wasm", "", "engine module for the wasm backend")
	pf.IntVar(&threads, "threads", 0, "worker threads for the native engine")

	rootCmd.AddCommand(
		newRunCmd(),
		newExecCmd(),
		newStepCmd(),
		newModifiersCmd(),
		newViewCmd(),
		newSnapshotCmd(),
		newListCmd(),
		newPlotCmd(),
		newAnalyzeCmd(),
		newSessionCmd(),
		newPresetsCmd(),
		newWatchCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(cmd *cobra.Command) error {
	cfg = config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.DataDir = dataDir
		cfg.History.Path = filepath.Join(dataDir, "history.db")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("backend") {
		cfg.Engine.Backend = backend
	}
	if flags.Changed("wasm") {
		cfg.Engine.WasmBinary = wasmPath
	}
	if flags.Changed("threads") {
		cfg.Engine.Threads = threads
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger = logging.New(cfg.LogLevel, os.Stderr)
	return nil
}

// addSystemFlags registers the flags that pick the system to load.
func addSystemFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&preset, "preset", "", "load a preset system first")
}

func addSampleFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&track, "track", nil, "modifiers to sample, as kind/name")
	cmd.Flags().Int64Var(&every, "every", 0, "sampling interval in timesteps")
}

func openEngine(ctx context.Context) (*engine.Engine, error) {
	opts := engine.Options{
		Backend:  cfg.Engine.Backend,
		FS:       os.DirFS(cfg.Engine.ScriptDir),
		Threads:  cfg.Engine.Threads,
		Print:    os.Stdout,
		PrintErr: os.Stderr,
		Logger:   logger,
	}
	if cfg.Engine.Backend == engine.Wasm {
		bin, err := os.ReadFile(cfg.Engine.WasmBinary)
		if err != nil {
			return nil, fmt.Errorf("read engine module: %w", err)
		}
		opts.WasmBinary = bin
	}
	return engine.Open(ctx, opts)
}

// withEngine opens the engine, loads --preset if given and calls fn.
func withEngine(ctx context.Context, fn func(*engine.Engine) error) error {
	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	if preset != "" {
		p := config.GetPreset(preset)
		if p == nil {
			return fmt.Errorf("unknown preset %q (see mdctl presets)", preset)
		}
		if err := runChecked(ctx, eng, p.Script); err != nil {
			return fmt.Errorf("preset %s: %w", preset, err)
		}
	}
	return fn(eng)
}

func runChecked(ctx context.Context, eng *engine.Engine, text string) error {
	if err := eng.RunCommand(ctx, text); err != nil {
		return err
	}
	return eng.CommandError()
}

func snapshotStore() (*storage.Store, error) {
	st := storage.New(filepath.Join(cfg.DataDir, "snapshots"))
	return st, st.Init()
}

func historyStore(ctx context.Context) (*history.Store, error) {
	return history.Open(ctx, cfg.History.Path)
}

func trackList() []string {
	if len(track) > 0 {
		return track
	}
	return cfg.History.Track
}

func sampleEvery() int64 {
	if every > 0 {
		return every
	}
	return int64(cfg.History.Every)
}
