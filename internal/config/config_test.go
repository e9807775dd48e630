package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/azargarov/taskpool"
)

func parse(t *testing.T, args ...string) Config {
	t.Helper()
	var cfg Config
	app := &cli.App{
		Name:  "test",
		Flags: Flags(),
		Action: func(c *cli.Context) error {
			cfg = FromContext(c)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"test"}, args...)))
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := parse(t)

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, taskpool.DefaultQueueSize, cfg.QueueSize)
	assert.Equal(t, taskpool.DefaultRetryPolicy().MaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Zero(t, cfg.Tick)
	assert.Equal(t, taskpool.OverlapAllow, cfg.Overlap())
	require.NoError(t, cfg.Validate())
}

func TestFlags(t *testing.T) {
	cfg := parse(t,
		"--workers", "8",
		"--queue-size", "16",
		"--blocking-submit",
		"--max-attempts", "5",
		"--base-delay", "50ms",
		"--multiplier", "3",
		"--max-delay", "1s",
		"--tick", "2s",
		"--tick-type", "echo",
		"--tick-skip",
	)

	opts := cfg.PoolOptions()
	assert.Equal(t, 8, opts.Workers)
	assert.Equal(t, 16, opts.QueueSize)
	assert.True(t, opts.BlockingSubmit)
	assert.Equal(t, taskpool.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   50 * time.Millisecond,
		Multiplier:  3,
		MaxDelay:    time.Second,
	}, opts.Retry)
	assert.Equal(t, 2*time.Second, cfg.Tick)
	assert.Equal(t, "echo", cfg.TickType)
	assert.Equal(t, taskpool.OverlapSkip, cfg.Overlap())
}

func TestEnvVars(t *testing.T) {
	t.Setenv("TASKPOOL_WORKERS", "2")
	t.Setenv("TASKPOOL_SHUTDOWN_TIMEOUT", "5s")

	cfg := parse(t)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)

	cfg = parse(t, "--workers", "6")
	assert.Equal(t, 6, cfg.Workers, "flag wins over env")
}

func TestValidate(t *testing.T) {
	base := parse(t)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"zero queue", func(c *Config) { c.QueueSize = 0 }},
		{"negative tick", func(c *Config) { c.Tick = -time.Second }},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"shrinking multiplier", func(c *Config) { c.Multiplier = 0.5 }},
		{"negative delay", func(c *Config) { c.BaseDelay = -time.Millisecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
