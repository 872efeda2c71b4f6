package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	kickrunner "github.com/Swind/go-kick-runner"
	"github.com/Swind/go-kick-runner/core"
	"github.com/Swind/go-kick-runner/internal/config"
	"github.com/Swind/go-kick-runner/internal/frameloop"
	"github.com/Swind/go-kick-runner/internal/server"
	kickprom "github.com/Swind/go-kick-runner/observability/prometheus"
)

const shutdownTimeout = 5 * time.Second

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Kick the worker once per frame until the frame count is reached or interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		level := zap.NewAtomicLevel()
		var current atomic.Pointer[zap.Logger]

		cfg, err := config.Load(config.Options{
			File: configFile,
			OnChange: func(next *config.Config) {
				// Only the log level is applied live; other keys need a restart.
				if err := level.UnmarshalText([]byte(next.Log.Level)); err != nil {
					return
				}
				if logger := current.Load(); logger != nil {
					logger.Info("config reloaded", zap.String("log_level", next.Log.Level))
				}
			},
			OnError: func(err error) {
				if logger := current.Load(); logger != nil {
					logger.Warn("config change rejected", zap.Error(err))
				}
			},
		})
		if err != nil {
			return err
		}

		if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		logger, err := core.NewLoggerAt(level, cfg.Log.Development)
		if err != nil {
			return err
		}
		current.Store(logger)
		defer func() { _ = logger.Sync() }()

		res, err := run(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "frames=%d accepted=%d dropped=%d overruns=%d elapsed_ms=%d\n",
			res.Frames, res.Accepted, res.Dropped, res.Overruns, res.ElapsedMS())
		return nil
	},
}

// run wires the worker, metrics, control API and frame loop together.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (frameloop.Result, error) {
	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	exporter, err := kickprom.NewMetricsExporter(cfg.Metrics.Namespace, reg, kickprom.ExporterOptions{})
	if err != nil {
		return frameloop.Result{}, fmt.Errorf("metrics exporter: %w", err)
	}
	poller, err := kickprom.NewSnapshotPoller(cfg.Metrics.Namespace, reg, cfg.Metrics.PollInterval())
	if err != nil {
		return frameloop.Result{}, fmt.Errorf("snapshot poller: %w", err)
	}

	workerCfg := &core.WorkerConfig{
		Logger:          logger,
		Metrics:         exporter,
		HistoryCapacity: cfg.Worker.HistoryCapacity,
	}
	if cfg.Worker.RecoverPanics {
		workerCfg.PanicHandler = &core.LoggingPanicHandler{Logger: logger}
	}

	group := kickrunner.NewGroup(workerCfg)
	defer group.Destroy()

	work := cfg.Frames.Work()
	worker, err := group.Add(cfg.Worker.Name, func(ctx context.Context) {
		time.Sleep(work)
	})
	if err != nil {
		return frameloop.Result{}, err
	}
	poller.AddWorker(worker.Name(), worker)

	g, gctx := errgroup.WithContext(ctx)

	poller.Start(gctx)
	defer poller.Stop()

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           server.New(server.Deps{Workers: group, Gatherer: reg, Logger: logger}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("control API listening", zap.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	var res frameloop.Result
	g.Go(func() error {
		// Stop the HTTP server once the loop ends so the group can finish.
		defer func() {
			if srv == nil {
				return
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		var err error
		res, err = frameloop.Run(gctx, worker, frameloop.Options{
			Interval: cfg.Frames.Interval(),
			Frames:   cfg.Frames.Count,
			WaitEach: cfg.Frames.WaitEach,
			Logger:   logger,
		})
		return err
	})

	if err := g.Wait(); err != nil {
		return res, err
	}

	stats := worker.Stats()
	logger.Info("frame loop finished",
		zap.Int("frames", res.Frames),
		zap.Int("accepted", res.Accepted),
		zap.Int("dropped", res.Dropped),
		zap.Int64("runs", stats.Runs),
	)
	return res, nil
}
