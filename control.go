package sgdma

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/sgdma/memory"
	"golang.org/x/sync/errgroup"
)

// Control is returned by Main and runs the configured sweeps.
type Control struct {
	l      *logrus.Logger
	engine *Engine
	mem    *memory.Space
	stats  statsRunner

	runRange   bool
	runPattern bool
}

// Start runs the sweeps and, when configured, the stats exporter until the
// sweeps finish or one of them fails.
func (c *Control) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	sctx, stop := context.WithCancel(gctx)
	defer stop()

	if c.stats != nil {
		g.Go(func() error {
			c.stats(sctx)
			return nil
		})
	}
	g.Go(func() error {
		defer stop()
		return c.Run(gctx)
	})

	return g.Wait()
}

// Run performs the address range sweep and then the pattern sweep from the
// base addresses.
func (c *Control) Run(ctx context.Context) error {
	if c.engine == nil {
		return nil
	}

	if c.runRange {
		if err := c.engine.RangeSweep(ctx); err != nil {
			return err
		}
	}

	c.engine.ResetBuffers()

	if c.runPattern {
		if err := c.engine.PatternSweep(ctx); err != nil {
			return err
		}
	}

	c.l.WithFields(c.engine.m.fields()).Info("Successfully ran all tests")
	return nil
}

// Engine returns the transfer engine, nil for a config test.
func (c *Control) Engine() *Engine {
	return c.engine
}

// Close releases the simulated memory.
func (c *Control) Close() error {
	if c.mem == nil {
		return nil
	}
	return c.mem.Close()
}
