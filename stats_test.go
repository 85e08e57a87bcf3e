package sgdma

import (
	"context"
	"testing"
	"time"

	"github.com/slackhq/sgdma/config"
	"github.com/slackhq/sgdma/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartStats(t *testing.T) {
	l := test.NewLogger()

	for name, tc := range map[string]struct {
		raw     string
		err     string
		enabled bool
	}{
		"none":          {raw: "stats:\n  type: none\n"},
		"no interval":   {raw: "stats:\n  type: graphite\n", err: "stats.interval was an invalid duration: "},
		"unknown":       {raw: "stats:\n  type: statsd\n  interval: 1s\n", err: "stats.type was not understood: statsd"},
		"graphite":      {raw: "stats:\n  type: graphite\n  interval: 1s\n  host: 127.0.0.1:2003\n", enabled: true},
		"graphite host": {raw: "stats:\n  type: graphite\n  interval: 1s\n", err: "stats.host can not be empty"},
		"prometheus":    {raw: "stats:\n  type: prometheus\n  interval: 1s\n  listen: 127.0.0.1:0\n  path: /metrics\n", enabled: true},
		"prom listen":   {raw: "stats:\n  type: prometheus\n  interval: 1s\n  path: /metrics\n", err: "stats.listen should not be empty"},
		"prom path":     {raw: "stats:\n  type: prometheus\n  interval: 1s\n  listen: 127.0.0.1:0\n", err: "stats.path should not be empty"},
	} {
		t.Run(name, func(t *testing.T) {
			c := config.NewC(l)
			require.NoError(t, c.LoadString(tc.raw))

			run, err := startStats(l, c, "test", false)
			if tc.err != "" {
				assert.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.enabled, run != nil)

			// a config test validates but never exports
			run, err = startStats(l, c, "test", true)
			require.NoError(t, err)
			assert.Nil(t, run)
		})
	}
}

func runUntilCancelled(t *testing.T, run statsRunner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("stats runner did not stop")
	}
}

func TestStatsRunner_GraphiteUnreachable(t *testing.T) {
	l, buf := test.NewCapturedLogger()
	c := config.NewC(l)
	require.NoError(t, c.LoadString("stats:\n  type: graphite\n  interval: 1h\n  host: 127.0.0.1:1\n"))

	run, err := startStats(l, c, "test", false)
	require.NoError(t, err)
	require.NotNil(t, run)

	runUntilCancelled(t, run)
	assert.Contains(t, buf.String(), "level=warning msg=\"Failed to flush stats\"")
	assert.Contains(t, buf.String(), "stats=graphite")
}

func TestStatsRunner_PrometheusShutdown(t *testing.T) {
	l, buf := test.NewCapturedLogger()
	c := config.NewC(l)
	require.NoError(t, c.LoadString("stats:\n  type: prometheus\n  interval: 1h\n  listen: 127.0.0.1:0\n  path: /metrics\n"))

	run, err := startStats(l, c, "test", false)
	require.NoError(t, err)
	require.NotNil(t, run)

	runUntilCancelled(t, run)
	assert.NotContains(t, buf.String(), "level=warning")
	assert.NotContains(t, buf.String(), "level=error")
}
