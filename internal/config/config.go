// Package config maps command-line flags and TASKPOOL_* environment
// variables onto pool options.
package config

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/azargarov/taskpool"
)

const envPrefix = "TASKPOOL_"

type Config struct {
	Workers        int
	QueueSize      int
	BlockingSubmit bool
	PinWorkers     bool

	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration

	Addr            string
	MaxTracked      int
	ShutdownTimeout time.Duration

	Tick        time.Duration
	TickType    string
	TickPayload string
	TickSkip    bool
}

// Flags returns the flags FromContext reads.
func Flags() []cli.Flag {
	def := taskpool.DefaultRetryPolicy()
	return []cli.Flag{
		&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Value: 4, Usage: "number of concurrent workers", EnvVars: env("WORKERS")},
		&cli.IntFlag{Name: "queue-size", Value: taskpool.DefaultQueueSize, Usage: "bounded queue capacity", EnvVars: env("QUEUE_SIZE")},
		&cli.BoolFlag{Name: "blocking-submit", Usage: "wait for queue space instead of rejecting", EnvVars: env("BLOCKING_SUBMIT")},
		&cli.BoolFlag{Name: "pin-workers", Usage: "pin worker threads to CPUs (linux)", EnvVars: env("PIN_WORKERS")},

		&cli.IntFlag{Name: "max-attempts", Value: def.MaxAttempts, Usage: "attempts per task, first one included", EnvVars: env("MAX_ATTEMPTS")},
		&cli.DurationFlag{Name: "base-delay", Value: def.BaseDelay, Usage: "delay before the first retry", EnvVars: env("BASE_DELAY")},
		&cli.Float64Flag{Name: "multiplier", Value: def.Multiplier, Usage: "retry delay growth factor", EnvVars: env("MULTIPLIER")},
		&cli.DurationFlag{Name: "max-delay", Usage: "retry delay cap, 0 for none", EnvVars: env("MAX_DELAY")},

		&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "HTTP listen address", EnvVars: env("ADDR")},
		&cli.IntFlag{Name: "max-tracked", Value: 10_000, Usage: "task outcomes kept for polling", EnvVars: env("MAX_TRACKED")},
		&cli.DurationFlag{Name: "shutdown-timeout", Value: 30 * time.Second, Usage: "drain deadline before cancelling", EnvVars: env("SHUTDOWN_TIMEOUT")},

		&cli.DurationFlag{Name: "tick", Usage: "submit a periodic task at this interval, 0 disables", EnvVars: env("TICK")},
		&cli.StringFlag{Name: "tick-type", Value: "print", Usage: "task type submitted on every tick", EnvVars: env("TICK_TYPE")},
		&cli.StringFlag{Name: "tick-payload", Value: "tick", Usage: "payload submitted on every tick", EnvVars: env("TICK_PAYLOAD")},
		&cli.BoolFlag{Name: "tick-skip", Usage: "skip a tick while the previous one is unfinished", EnvVars: env("TICK_SKIP")},
	}
}

func FromContext(c *cli.Context) Config {
	return Config{
		Workers:         c.Int("workers"),
		QueueSize:       c.Int("queue-size"),
		BlockingSubmit:  c.Bool("blocking-submit"),
		PinWorkers:      c.Bool("pin-workers"),
		MaxAttempts:     c.Int("max-attempts"),
		BaseDelay:       c.Duration("base-delay"),
		Multiplier:      c.Float64("multiplier"),
		MaxDelay:        c.Duration("max-delay"),
		Addr:            c.String("addr"),
		MaxTracked:      c.Int("max-tracked"),
		ShutdownTimeout: c.Duration("shutdown-timeout"),
		Tick:            c.Duration("tick"),
		TickType:        c.String("tick-type"),
		TickPayload:     c.String("tick-payload"),
		TickSkip:        c.Bool("tick-skip"),
	}
}

func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("config: queue-size must be at least 1, got %d", c.QueueSize)
	}
	if c.Tick < 0 {
		return fmt.Errorf("config: tick must not be negative, got %s", c.Tick)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("config: shutdown-timeout must not be negative, got %s", c.ShutdownTimeout)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c Config) RetryPolicy() taskpool.RetryPolicy {
	return taskpool.RetryPolicy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		Multiplier:  c.Multiplier,
		MaxDelay:    c.MaxDelay,
	}
}

// PoolOptions builds pool options; metrics and hooks are left to the caller.
func (c Config) PoolOptions() taskpool.Options[string] {
	return taskpool.Options[string]{
		Workers:        c.Workers,
		QueueSize:      c.QueueSize,
		Retry:          c.RetryPolicy(),
		BlockingSubmit: c.BlockingSubmit,
		PinWorkers:     c.PinWorkers,
	}
}

func (c Config) Overlap() taskpool.OverlapPolicy {
	if c.TickSkip {
		return taskpool.OverlapSkip
	}
	return taskpool.OverlapAllow
}

func env(name string) []string { return []string{envPrefix + name} }
