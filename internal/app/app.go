package app

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/tungetti/carve/internal/config"
	"github.com/tungetti/carve/internal/errors"
	"github.com/tungetti/carve/internal/exec"
	"github.com/tungetti/carve/internal/logging"
	"github.com/tungetti/carve/internal/privilege"
)

// App represents the main application with its dependencies and lifecycle.
type App struct {
	container *Container
	lifecycle *Lifecycle
	version   string
	buildTime string
	gitCommit string
}

// Options configures the application.
type Options struct {
	Version         string
	BuildTime       string
	GitCommit       string
	ConfigPath      string
	ShutdownTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Version:         "unknown",
		BuildTime:       "unknown",
		GitCommit:       "unknown",
		ShutdownTimeout: 30 * time.Second,
	}
}

// New creates a new application with the given options.
func New(opts Options) *App {
	return &App{
		container: NewContainer(),
		lifecycle: NewLifecycle(opts.ShutdownTimeout),
		version:   opts.Version,
		buildTime: opts.BuildTime,
		gitCommit: opts.GitCommit,
	}
}

// Initialize sets up all application components in the correct order.
// The initialization order is:
// 1. Configuration
// 2. Logger
// 3. Privilege manager
// 4. Command executor
func (a *App) Initialize(ctx context.Context, configPath string) error {
	cfg, err := a.loadConfig(configPath)
	if err != nil {
		return errors.Wrap(errors.Configuration, "failed to load config", err)
	}
	return a.InitializeWithConfig(ctx, cfg)
}

// InitializeWithConfig sets up all components from an already-loaded
// configuration. Callers that merge CLI flags into the config before
// startup use this instead of Initialize.
func (a *App) InitializeWithConfig(ctx context.Context, cfg *config.Config) error {
	a.container.SetConfig(cfg)

	logger, err := a.initLogger(cfg)
	if err != nil {
		return errors.Wrap(errors.Configuration, "failed to initialize logger", err)
	}
	a.container.SetLogger(logger)

	logger.Info("starting application",
		"version", a.version,
		"build_time", a.buildTime,
		"git_commit", a.gitCommit,
	)

	priv := privilege.NewManager()
	a.container.SetPrivilege(priv)

	if priv.IsRoot() {
		logger.Debug("running as root")
	} else if priv.CurrentUser() != nil {
		logger.Debug("running as user", "user", priv.CurrentUser().Username)
	}

	execOpts := exec.DefaultOptions()
	if cfg.CommandTimeout > 0 {
		execOpts.Timeout = cfg.CommandTimeout
	}
	executor := exec.NewExecutor(execOpts, priv)
	a.container.SetExecutor(executor)

	if err := a.container.Validate(); err != nil {
		return err
	}

	logger.Info("application initialized successfully")
	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	return a.lifecycle.Shutdown()
}

// Container returns the dependency container.
func (a *App) Container() *Container {
	return a.container
}

// Lifecycle returns the lifecycle manager.
func (a *App) Lifecycle() *Lifecycle {
	return a.lifecycle
}

// Version returns the application version.
func (a *App) Version() string {
	return a.version
}

// BuildTime returns the application build time.
func (a *App) BuildTime() string {
	return a.buildTime
}

// GitCommit returns the application git commit.
func (a *App) GitCommit() string {
	return a.gitCommit
}

func (a *App) loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader(path)
	return loader.Load()
}

func (a *App) initLogger(cfg *config.Config) (logging.Logger, error) {
	level := logging.ParseLevel(cfg.LogLevel)
	if cfg.Verbose {
		level = logging.LevelDebug
	} else if cfg.Quiet {
		level = logging.LevelWarn
	}

	if cfg.LogFile != "" {
		return logging.NewFileLogger(cfg.LogFile, level)
	}

	opts := logging.DefaultOptions()
	opts.Level = level
	opts.NoColor = cfg.NoColor
	return logging.New(opts), nil
}

// handlePanic handles a recovered panic and returns an error.
// It logs the panic with a stack trace if a logger is available.
func (a *App) handlePanic(r interface{}) error {
	stack := debug.Stack()
	logger := a.container.GetLogger()

	if logger != nil {
		logger.Error("panic recovered",
			"panic", fmt.Sprintf("%v", r),
			"stack", string(stack),
		)
	} else {
		fmt.Fprintf(os.Stderr, "PANIC: %v\n%s\n", r, stack)
	}

	return errors.Newf(errors.Unknown, "panic: %v", r)
}

// RecoverPanic is a helper function that can be deferred to recover from panics.
// It logs the panic with a stack trace.
func (a *App) RecoverPanic() {
	if r := recover(); r != nil {
		_ = a.handlePanic(r)
	}
}

// CancelOnSignal cancels the given function when SIGINT or SIGTERM
// arrives, or returns silently once Shutdown is called. Run it in a
// goroutine alongside a long operation.
func (a *App) CancelOnSignal(cancel func()) {
	sig := a.lifecycle.WaitForSignal()
	if sig == nil {
		return
	}
	logger := a.container.GetLogger()
	if logger != nil {
		logger.Warn("received signal, cancelling", "signal", sig.String())
	}
	cancel()
}
