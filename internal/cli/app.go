package cli

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/subsku/internal/config"
	"github.com/roach88/subsku/internal/dispatch"
	"github.com/roach88/subsku/internal/engine"
	"github.com/roach88/subsku/internal/platform"
	"github.com/roach88/subsku/internal/store"
)

// StoreFlags are the flags shared by every command that opens the store.
type StoreFlags struct {
	Database      string
	PlatformState string
}

func (f *StoreFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&f.PlatformState, "platform-state", "", "YAML file seeding the in-memory platform")
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig(root *RootOptions, flags *StoreFlags) (config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if flags != nil && flags.Database != "" {
		cfg.DBPath = flags.Database
	}
	if root.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// setupLogging installs the process logger on stderr: text by default,
// JSON when --format json.
func setupLogging(root *RootOptions, cfg config.Config) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, hopts)
	if root.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, hopts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// loadPlatformState reads a platform seed file. An empty path yields an
// empty platform.
func loadPlatformState(path string) (platform.State, error) {
	if path == "" {
		return platform.State{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return platform.State{}, fmt.Errorf("failed to read platform state: %w", err)
	}
	var st platform.State
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&st); err != nil {
		return platform.State{}, fmt.Errorf("failed to parse platform state: %w", err)
	}
	return st, nil
}

// app is the wired runtime every command shares.
type app struct {
	store      *store.Store
	memory     *platform.Memory
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
}

// openApp opens the store and builds the engine over the in-memory platform,
// rate limited per cfg.
func openApp(cfg config.Config, platformState string, logger *slog.Logger) (*app, error) {
	st, err := loadPlatformState(platformState)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load platform state", err)
	}
	mem, err := platform.NewMemory(st)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build platform", err)
	}

	logger.Debug("opening database", "path", cfg.DBPath)
	s, err := store.Open(cfg.DBPath, store.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	client := platform.NewLimited(mem, platform.NewLimiter(cfg.RatePerSecond, cfg.RateBurst))
	eng := engine.New(s, client,
		engine.WithSink(s),
		engine.WithLogger(logger),
	)
	return &app{
		store:      s,
		memory:     mem,
		engine:     eng,
		dispatcher: dispatch.New(eng, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func newFormatter(root *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    root.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   root.Verbose,
	}
}
