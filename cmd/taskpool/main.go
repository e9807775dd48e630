package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/azargarov/taskpool"
	"github.com/azargarov/taskpool/internal/api"
	"github.com/azargarov/taskpool/internal/config"
	"github.com/azargarov/taskpool/internal/handlers"
	promexp "github.com/azargarov/taskpool/metrics/prometheus"
)

func main() {
	app := &cli.App{
		Name:  "taskpool",
		Usage: "bounded concurrent task execution over HTTP",
		Commands: []*cli.Command{
			runCommand(),
			handlersCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "start the pool and its HTTP API",
		Flags:  config.Flags(),
		Action: runAction,
	}
}

func handlersCommand() *cli.Command {
	return &cli.Command{
		Name:  "handlers",
		Usage: "list the task types the pool understands",
		Action: func(c *cli.Context) error {
			for _, t := range handlers.Default().Types() {
				fmt.Fprintln(c.App.Writer, t)
			}
			return nil
		},
	}
}

func runAction(c *cli.Context) error {
	cfg := config.FromContext(c)
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err.Error(), 2)
	}
	mux := handlers.Default()
	if cfg.Tick > 0 && !slices.Contains(mux.Types(), cfg.TickType) {
		return cli.Exit(fmt.Sprintf("unknown tick type %q", cfg.TickType), 2)
	}

	logger := lg.NewDefault("taskpool")
	defer logger.Sync()
	ctx := lg.Attach(c.Context, logger)

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	exporter, err := promexp.NewExporter("taskpool", reg, promexp.ExporterOptions{Pool: "default"})
	if err != nil {
		return cli.Exit(fmt.Sprintf("metrics: %v", err), 1)
	}
	stats := &taskpool.AtomicMetrics{}

	opts := cfg.PoolOptions()
	opts.Metrics = taskpool.MultiMetrics{exporter, stats}
	pool, err := taskpool.New(mux.Handle, opts)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if err := pool.Start(ctx); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedDone := make(chan struct{})
	if cfg.Tick > 0 {
		sched, err := taskpool.NewScheduler(pool, cfg.Tick,
			func(uint64) handlers.Request {
				return handlers.Request{Type: cfg.TickType, Payload: cfg.TickPayload}
			},
			taskpool.SchedulerOptions[string]{Overlap: cfg.Overlap()},
		)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		go func() {
			defer close(schedDone)
			if err := sched.Run(sigCtx); err != nil {
				logger.Warn("scheduler stopped", lg.Any("error", err))
			}
		}()
		logger.Info("scheduler started",
			lg.String("interval", cfg.Tick.String()),
			lg.String("type", cfg.TickType),
			lg.String("overlap", cfg.Overlap().String()),
		)
	} else {
		close(schedDone)
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.NewRouter(api.NewHandler(pool, stats, cfg.MaxTracked), reg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", lg.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		runErr = fmt.Errorf("server: %w", err)
		logger.Error("server error", lg.Any("error", err))
	}
	stop()

	httpCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(httpCtx); err != nil {
		logger.Warn("server shutdown error", lg.Any("error", err))
	}
	<-schedDone

	if err := pool.Shutdown(taskpool.Drain, cfg.ShutdownTimeout); err != nil {
		logger.Warn("pool drain did not finish in time; remaining tasks cancelled",
			lg.String("timeout", cfg.ShutdownTimeout.String()),
			lg.Any("error", err),
		)
	}
	s := stats.Snapshot()
	logger.Info("pool stopped",
		lg.Any("succeeded", s.Succeeded),
		lg.Any("failed", s.Failed),
		lg.Any("cancelled", s.Cancelled),
		lg.Any("ticks_dropped", s.TicksDropped),
	)
	return runErr
}
