package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/warscan/warscan/pkg/archive"
	"github.com/warscan/warscan/pkg/browser"
	"github.com/warscan/warscan/pkg/checkpoint"
	"github.com/warscan/warscan/pkg/config"
	"github.com/warscan/warscan/pkg/duration"
	"github.com/warscan/warscan/pkg/health"
	"github.com/warscan/warscan/pkg/output/dispatcher"
	"github.com/warscan/warscan/pkg/output/exitcode"
	"github.com/warscan/warscan/pkg/output/hooks"
	"github.com/warscan/warscan/pkg/output/writers"
	"github.com/warscan/warscan/pkg/runner"
	"github.com/warscan/warscan/pkg/scanner"
	"github.com/warscan/warscan/pkg/store"
	"github.com/warscan/warscan/pkg/ui"
	"github.com/warscan/warscan/pkg/worklist"
)

func runScan(args []string, stderr io.Writer) exitcode.Code {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg, err := config.Parse(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitcode.Success
		}
		fmt.Fprintln(stderr, err)
		return exitcode.Usage
	}

	logger, err := newLogger(stderr, cfg.Log)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitcode.Usage
	}
	slog.SetDefault(logger)
	if f, ok := stderr.(*os.File); !ok || !ui.IsTerminal(f) {
		ui.SetNoColor(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = scan(ctx, cfg, logger, stderr)
	code := exitcode.FromError(err)
	switch code {
	case exitcode.Success:
	case exitcode.Interrupted:
		logger.Warn("scan interrupted")
	default:
		logger.Error("scan failed", "error", err, "exit_code", int(code))
	}
	return code
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// scan wires the collaborators for one run and executes it.
func scan(ctx context.Context, cfg *config.Config, logger *slog.Logger, stderr io.Writer) error {
	targets, err := worklist.LoadFile(cfg.Input.File, worklist.Options{
		StartLine: cfg.Input.StartLine,
		Limit:     cfg.Input.Limit,
		Scheme:    cfg.Input.Scheme,
	})
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("%s: %w", cfg.Input.File, runner.ErrEmptyWorklist)
	}

	ckpt := checkpoint.NewManager(cfg.Input.CheckpointFile)
	startIndex := 0
	if cfg.Input.Resume {
		startIndex, err = ckpt.Resume(cfg.Input.File, cfg.Input.StartLine, cfg.Input.Limit, len(targets))
		if err != nil {
			return &exitcode.UsageError{Err: err}
		}
		state := ckpt.State()
		logger.Info("resuming", "index", startIndex, "checkpoint", ckpt.FilePath,
			"completed", state.CompletedTargets, "progress", fmt.Sprintf("%.1f%%", ckpt.Progress()))
	} else {
		ckpt.Init(cfg.Input.File, cfg.Input.StartLine, cfg.Input.Limit, len(targets))
	}

	host := cfg.HostName()

	db, err := store.Open(ctx, cfg.Output.Database, store.DefaultOptions())
	if err != nil {
		return err
	}

	checker, err := health.New(ctx, health.Config{
		APIURL: cfg.Health.URL,
		APIKey: cfg.Health.APIKey,
		Name:   cfg.Health.Name,
		Logger: logger,
	})
	if err != nil {
		logger.Warn("health check disabled", "error", err)
		checker = health.Disabled()
	}

	out, err := newDispatcher(cfg, logger)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Warn("closing outputs failed", "error", err)
		}
	}()

	rcfg := runner.Config{
		Launcher: &runner.ChromeLauncher{
			Supervisor: browser.NewSupervisor(browser.Config{
				Executable:        cfg.Browser.Executable,
				Port:              cfg.Browser.Port,
				LogFile:           cfg.Browser.LogFile,
				ExtraFlags:        cfg.Browser.ExtraFlags,
				ConnectAttempts:   cfg.Browser.ConnectAttempts,
				HandshakeAttempts: cfg.Browser.HandshakeAttempts,
				Logger:            logger,
			}),
			Logger: logger,
		},
		Scanner: scanner.New(scanner.Config{
			NavigationTimeout: cfg.Scan.NavigationTimeout,
			PostLoadWait:      cfg.Scan.PostLoadWait,
			Deadline:          cfg.Scan.Deadline,
			AcceptLanguage:    cfg.Scan.AcceptLanguage,
			Scroll: scanner.ScrollConfig{
				Disabled:        cfg.Scroll.Disabled,
				StepMin:         cfg.Scroll.StepMin,
				StepMax:         cfg.Scroll.StepMax,
				PauseMin:        cfg.Scroll.PauseMin,
				PauseMax:        cfg.Scroll.PauseMax,
				MaxSteps:        cfg.Scroll.MaxSteps,
				ContinueOnStall: cfg.Scroll.ContinueOnStall,
				DepthMin:        cfg.Scroll.DepthMin,
				DepthMax:        cfg.Scroll.DepthMax,
			},
			Logger: logger,
		}),
		Store:             db,
		Health:            checker,
		Checkpoint:        ckpt,
		Output:            out,
		RestartEvery:      cfg.Scan.RestartEvery,
		HeartbeatEvery:    cfg.Scan.HeartbeatEvery,
		ErrorThreshold:    cfg.Scan.ErrorThreshold,
		StartAttempts:     cfg.Scan.StartAttempts,
		StartIndex:        startIndex,
		Host:              host,
		Input:             cfg.Input.File,
		NavigationTimeout: cfg.Scan.NavigationTimeout,
		PageDeadline:      cfg.Scan.Deadline,
		Logger:            logger,
	}

	if cfg.Archive.Enabled {
		arch := archive.New(archive.Config{
			PerMinute: cfg.Archive.PerMinute,
			Threshold: cfg.Archive.Threshold,
			Logger:    logger,
		})
		defer func() {
			// Pending saves get a bounded drain, even after an interrupt.
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), duration.Shutdown)
			defer cancel()
			if err := arch.Close(closeCtx); err != nil {
				logger.Warn("archive queue not drained", "error", err, "stats", arch.Stats())
			}
		}()
		rcfg.Archiver = arch
	}

	r, err := runner.New(rcfg)
	if err != nil {
		_ = db.Close()
		return err
	}

	ui.PrintBanner(stderr)
	ui.PrintConfig(stderr, map[string]string{
		"Input":    cfg.Input.File,
		"Targets":  strconv.Itoa(len(targets)),
		"Start":    strconv.Itoa(startIndex),
		"Database": cfg.Output.Database,
		"Browser":  cfg.Browser.Executable,
		"Scan ID":  r.ScanID(),
	})

	stats, runErr := r.Run(ctx, targets)

	if err := ckpt.Save(); err != nil {
		logger.Warn("saving checkpoint failed", "error", err)
	}
	if !cfg.Output.NoSummary {
		ui.PrintSummary(stderr, ui.Summary{
			Input:  cfg.Input.File,
			ScanID: r.ScanID(),
			Stats:  stats,
			Err:    runErr,
		})
	}
	return runErr
}

// newDispatcher builds the event fan-out: the log hook always, metrics,
// tracing and files when configured.
func newDispatcher(cfg *config.Config, logger *slog.Logger) (*dispatcher.Dispatcher, error) {
	d := dispatcher.New(dispatcher.Config{Logger: logger})
	d.RegisterHook(hooks.NewLogHook(logger))

	if cfg.Output.MetricsAddr != "" {
		ph, err := hooks.NewPrometheusHook(hooks.PrometheusOptions{
			Addr:   cfg.Output.MetricsAddr,
			Logger: logger,
		})
		if err != nil {
			logger.Warn("metrics disabled", "error", err)
		} else {
			logger.Info("serving metrics", "addr", ph.MetricsAddr())
			d.RegisterHook(ph)
		}
	}

	if cfg.Output.OTLPEndpoint != "" {
		oh, err := hooks.NewOTelHook(hooks.OTelOptions{
			Endpoint: cfg.Output.OTLPEndpoint,
			Insecure: true,
		})
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			d.RegisterHook(oh)
		}
	}

	if cfg.Output.EventsFile != "" {
		f, err := os.OpenFile(cfg.Output.EventsFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("open events file: %w", err)
		}
		d.RegisterWriter(writers.NewJSONLWriter(f, writers.JSONLOptions{}))
	}

	if cfg.Output.ResultsDir != "" {
		rw, err := writers.NewResultFileWriter(cfg.Output.ResultsDir)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.RegisterWriter(rw)
	}
	return d, nil
}
