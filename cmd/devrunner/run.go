package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/devrunner/internal/api"
	"github.com/mattjoyce/devrunner/internal/config"
	"github.com/mattjoyce/devrunner/internal/dispatch"
	"github.com/mattjoyce/devrunner/internal/events"
	"github.com/mattjoyce/devrunner/internal/lock"
	"github.com/mattjoyce/devrunner/internal/log"
	"github.com/mattjoyce/devrunner/internal/output"
	"github.com/mattjoyce/devrunner/internal/pipeline"
	"github.com/mattjoyce/devrunner/internal/storage"
	"github.com/mattjoyce/devrunner/internal/supervisor"
)

const eventBufferSize = 256

// loadRunConfig loads the config file and applies command-line overrides.
func loadRunConfig(cmd *cobra.Command, opts *runOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, opts, cmd.Flags().Changed("delay")); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, opts *runOptions, delaySet bool) error {
	if delaySet {
		if opts.delayMs < 0 {
			return &config.Error{Path: cfg.SourcePath, Field: "--delay", Err: errors.New("must be >= 0")}
		}
		cfg.DelayMs = opts.delayMs
	}
	if opts.name != "" {
		cfg.Name = opts.name
	}
	if opts.logLevel != "" {
		if !log.ValidLevel(opts.logLevel) {
			return &config.Error{Path: cfg.SourcePath, Field: "--log-level", Err: fmt.Errorf("unknown level %q", opts.logLevel)}
		}
		cfg.Log.Level = opts.logLevel
	}
	return nil
}

func runSupervisor(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadRunConfig(cmd, opts)
	if err != nil {
		return err
	}
	extraEnv, err := config.ParseEnvPairs(opts.env)
	if err != nil {
		return err
	}

	log.Setup(cfg.Log.Level, cfg.Log.Format)
	logger := log.WithComponent("main")
	name := config.DisplayName(cfg)
	logger.Info("devrunner starting", "version", version, "config", cfg.SourcePath, "name", name)

	lockPath := cfg.LockPath
	if lockPath == "" {
		lockPath = lock.DefaultPath(name)
	}
	pidLock, err := lock.AcquirePIDLock(lockPath)
	if err != nil {
		return &config.Error{Path: cfg.SourcePath, Field: "lock_path", Err: err}
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	hub := events.NewHub(eventBufferSize)
	console := output.New(name, opts.color, cmd.OutOrStdout(), cmd.ErrOrStderr())

	p, err := pipeline.New(cfg.Pipeline, pipeline.Options{DisplayErrorDetails: opts.errorDetails}, log.WithComponent("pipeline"))
	if err != nil {
		return withSource(err, cfg.SourcePath)
	}

	manager := dispatch.New(dispatch.Config{
		Args:      cfg.Worker.Args,
		Env:       cfg.WorkerEnv(opts.dev, extraEnv),
		StopGrace: cfg.Worker.StopGrace,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}, console, hub, log.WithComponent("dispatch"))

	sup := supervisor.New(supervisor.Config{
		Name:       name,
		Kind:       cfg.Pipeline.Kind,
		ConfigHash: cfg.Hash,
		Delay:      cfg.Delay(),
		StopGrace:  cfg.Worker.StopGrace,
	}, p, manager, console, hub, log.Get())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var history *storage.History
	if cfg.History.Path != "" {
		db, err := storage.OpenSQLite(ctx, cfg.History.Path)
		if err != nil {
			return &config.Error{Path: cfg.SourcePath, Field: "history.path", Err: err}
		}
		defer db.Close()
		history = storage.NewHistory(db)
		logger.Info("build history enabled", "path", cfg.History.Path, "keep", cfg.History.Keep)
	}

	g, gctx := errgroup.WithContext(ctx)
	if history != nil {
		recorder := storage.NewRecorder(history, hub, name, cfg.History.Keep, log.Get())
		g.Go(func() error {
			return recorder.Run(gctx)
		})
	}
	g.Go(func() error {
		defer stop()
		return sup.Run(gctx)
	})
	if cfg.API.Enabled {
		srv := api.New(api.Config{Listen: cfg.API.Listen, Token: cfg.API.Token}, sup, hub, log.WithComponent("api"))
		if history != nil {
			srv.SetHistory(history, name)
		}
		g.Go(func() error {
			if err := srv.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var spawnErr *dispatch.SpawnError
		if errors.As(err, &spawnErr) {
			console.Error("Failed to start process", spawnErr.Err.Error())
		}
		return err
	}
	logger.Info("devrunner stopped")
	return nil
}

// withSource attaches the config file path to a *config.Error that lacks one.
func withSource(err error, path string) error {
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) && cfgErr.Path == "" {
		cfgErr.Path = path
	}
	return err
}
