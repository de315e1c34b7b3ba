package cmd

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"spindle/core/config"
	"spindle/core/errors"
	"spindle/core/events"
	"spindle/core/jobs"
	"spindle/core/logger"
	"spindle/core/registry"
	"spindle/core/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// HeartbeatJob is the job type the run command submits on every tick.
const HeartbeatJob = "heartbeat"

// Heartbeat is the payload of a HeartbeatJob.
type Heartbeat struct {
	Worker string
	Beat   uint64
	SentAt time.Time
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Duration("tick", time.Second, "Interval between heartbeat jobs")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured workers until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		tick, _ := cmd.Flags().GetDuration("tick")

		cfg, err := config.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return serve(cmd.Context(), cfg, tick, heartbeatHandler())
	},
}

// heartbeatHandler logs each heartbeat along with how long it waited in the queue.
func heartbeatHandler() jobs.Handler {
	return jobs.HandlerFunc(func(ctx context.Context, job jobs.Job) error {
		hb, ok := job.Payload().(Heartbeat)
		if !ok {
			return fmt.Errorf("heartbeat payload %T: %w", job.Payload(), errors.ErrInvalidInput)
		}
		logger.Debug(logger.WithComponentName(ctx, "heartbeat"), "Heartbeat",
			zap.String("worker", hb.Worker),
			zap.Uint64("beat", hb.Beat),
			zap.Duration("queued", time.Since(hb.SentAt)),
		)
		return nil
	})
}

// serve spawns the workers named in cfg, feeds them heartbeats every tick
// and stops them all once ctx is done.
func serve(ctx context.Context, cfg *config.Config, tick time.Duration, heartbeat jobs.Handler) error {
	ctx = logger.WithComponentName(ctx, "run")
	if tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s: %w", tick, errors.ErrInvalidInput)
	}

	names := cfg.WorkerNames()
	if len(names) == 0 {
		return fmt.Errorf("no workers configured: %w", errors.ErrInvalidInput)
	}
	sort.Strings(names)

	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return err
	}
	cfg.AddConfigChangeHook(func(next *config.Config) {
		if err := logger.SetLevel(next.Log.Level); err != nil {
			logger.Warn(ctx, "Ignoring log level change", zap.Error(err))
			return
		}
		logger.Info(ctx, "Log level changed", zap.String("level", next.Log.Level))
	})
	cfg.WatchConfig()

	bus := events.New()
	defer bus.Close()
	if err := watchWorkerEvents(ctx, bus); err != nil {
		return err
	}

	reg := registry.NewDefaultRegistry(worker.WithEventBus(bus))
	handlers := jobs.NewHandlerRegistry()
	if err := handlers.RegisterHandler(HeartbeatJob, heartbeat); err != nil {
		return err
	}

	enqueuers := make(map[string]jobs.Enqueuer, len(names))
	for _, name := range names {
		settings, err := cfg.WorkerSettings(name)
		if err != nil {
			return stopAfterFailure(cfg, reg, err)
		}
		opts, err := settings.Options()
		if err != nil {
			return stopAfterFailure(cfg, reg, err)
		}
		w, err := reg.Spawn(name, opts...)
		if err != nil {
			return stopAfterFailure(cfg, reg, err)
		}
		enqueuers[name] = jobs.NewWorkerEnqueuer(w, handlers, jobErrorHandler(ctx, name))
	}
	logger.Info(ctx, "Workers started", zap.Strings("workers", names), zap.Duration("tick", tick))

	var srv *http.Server
	if cfg.Metrics.Enabled {
		srv = metricsServer(ctx, cfg.Metrics.Address)
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var beat uint64
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case now := <-ticker.C:
			beat++
			for _, name := range names {
				job := jobs.NewJob(ctx, HeartbeatJob, Heartbeat{Worker: name, Beat: beat, SentAt: now})
				if err := enqueuers[name].Enqueue(ctx, job); err != nil && ctx.Err() == nil {
					logger.Warn(ctx, "Failed to enqueue heartbeat", zap.String("worker", name), zap.Error(err))
				}
			}
		}
	}

	logger.Info(ctx, "Shutting down", zap.Duration("timeout", cfg.StopTimeout()))
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout())
	defer cancel()

	err := reg.StopAll(stopCtx)
	if n := bus.Dropped(); n > 0 {
		logger.Warn(ctx, "Worker events dropped by slow subscribers", zap.Uint64("dropped", n))
	}
	if srv != nil {
		if serr := srv.Shutdown(stopCtx); serr != nil {
			err = errors.Join(err, fmt.Errorf("metrics server shutdown: %w", serr))
		}
	}
	if err != nil {
		logger.Error(ctx, "Error during shutdown", zap.Error(err))
		return err
	}
	logger.Info(ctx, "Spindle stopped gracefully")
	return nil
}

func stopAfterFailure(cfg *config.Config, reg registry.Registry, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout())
	defer cancel()
	return errors.Join(cause, reg.StopAll(ctx))
}

// jobErrorHandler logs failed jobs. Jobs skipped because the run context was
// cancelled during shutdown are expected and logged at debug level.
func jobErrorHandler(ctx context.Context, name string) func(jobs.Job, error) {
	return func(job jobs.Job, err error) {
		fields := []zap.Field{
			zap.String("worker", name),
			zap.String("job_id", job.ID()),
			zap.String("job_type", job.Type()),
			zap.Error(err),
		}
		if errors.Is(err, context.Canceled) {
			logger.Debug(ctx, "Job skipped", fields...)
			return
		}
		logger.Error(ctx, "Job failed", fields...)
	}
}

func metricsServer(ctx context.Context, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info(ctx, "Serving metrics", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

// watchWorkerEvents logs faults and terminations published by the workers
// until the bus is closed.
func watchWorkerEvents(ctx context.Context, bus events.Bus) error {
	faulted, _, err := bus.Subscribe(events.TaskFaultedTopic)
	if err != nil {
		return err
	}
	terminated, _, err := bus.Subscribe(events.WorkerTerminatedTopic)
	if err != nil {
		return err
	}
	go func() {
		for faulted != nil || terminated != nil {
			select {
			case ev, ok := <-faulted:
				if !ok {
					faulted = nil
					continue
				}
				if e, ok := ev.(events.TaskFaultedEvent); ok {
					logger.Warn(ctx, "Task faulted", zap.String("worker", e.WorkerName), zap.Uint64("seq", e.Seq), zap.Error(e.Err))
				}
			case ev, ok := <-terminated:
				if !ok {
					terminated = nil
					continue
				}
				if e, ok := ev.(events.WorkerTerminatedEvent); ok {
					logger.Info(ctx, "Worker finished",
						zap.String("worker", e.WorkerName),
						zap.Uint64("executed", e.Executed),
						zap.Uint64("discarded", e.Discarded),
						zap.Error(e.Err),
					)
				}
			}
		}
	}()
	return nil
}
