package sgdma

import (
	"context"
	"fmt"

	"github.com/slackhq/sgdma/pattern"
)

// RangeIterations is how many whole batches fit in total bytes. Any remainder
// is left untested.
func RangeIterations(total uint64, packetLength, batchSize int) int {
	batch := uint64(packetLength) * uint64(batchSize)
	if batch == 0 {
		return 0
	}
	return int(total / batch)
}

// RangeSweep walks the target region one batch at a time with the byte ramp,
// stopping at the first failing iteration.
func (e *Engine) RangeSweep(ctx context.Context) error {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()

	b := e.buffers
	offset := e.opts.BatchBytes()
	n := RangeIterations(e.opts.TargetSize, e.opts.PacketLength, e.opts.BatchSize)

	l := e.l.WithField("orientation", b.Orientation.String()).
		WithField("transmit", fmt.Sprintf("0x%x", b.Transmit)).
		WithField("receive", fmt.Sprintf("0x%x", b.Receive)).
		WithField("iterations", n)
	l.Info("Access range test started")
	if rem := e.opts.TargetSize % offset; rem != 0 {
		l.WithField("untested", rem).Warn("Target size is not a multiple of the batch size")
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return &SweepError{Sweep: "range", Index: i, Total: n, Err: err}
		}

		base := b.Moving()
		if err := e.RunTransfer(b.Transmit, b.Receive, nil); err != nil {
			l.WithError(err).WithField("base", fmt.Sprintf("0x%x", base)).Error("Access range test failed")
			return &SweepError{Sweep: "range", Index: i, Total: n, Err: err}
		}
		e.l.WithField("transmit", fmt.Sprintf("0x%x", b.Transmit)).
			WithField("receive", fmt.Sprintf("0x%x", b.Receive)).
			Infof("[%d/%d base: 0x%x] PASSED", i+1, n, base)
		b.Advance(offset)
	}

	l.Info("Access range test passed")
	return nil
}

// PatternSweep transfers one batch for every pattern mode using the current
// buffer addresses, stopping at the first failing mode.
func (e *Engine) PatternSweep(ctx context.Context) error {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()

	b := e.buffers
	inverted := pattern.InvertedTables()

	l := e.l.WithField("transmit", fmt.Sprintf("0x%x", b.Transmit)).
		WithField("receive", fmt.Sprintf("0x%x", b.Receive))
	l.Info("Pattern test started")

	for mode := 0; mode < pattern.ModeCount; mode++ {
		if err := ctx.Err(); err != nil {
			return &SweepError{Sweep: "pattern", Index: mode, Total: pattern.ModeCount, Err: err}
		}

		plan, err := pattern.PlanFor(mode, &inverted)
		if err != nil {
			return &SweepError{Sweep: "pattern", Index: mode, Total: pattern.ModeCount, Err: err}
		}

		if err := e.RunTransfer(b.Transmit, b.Receive, &plan); err != nil {
			l.WithError(err).WithField("plan", plan.String()).Error("Pattern test failed")
			return &SweepError{Sweep: "pattern", Index: mode, Total: pattern.ModeCount, Err: err}
		}
		e.l.WithField("plan", plan.String()).Infof("[%d/%d] PASSED", mode, pattern.ModeCount)
	}

	l.Info("Pattern test passed")
	return nil
}

// ResetBuffers puts the sweep buffers back at their base addresses.
func (e *Engine) ResetBuffers() {
	e.sweepMu.Lock()
	e.buffers.Reset()
	e.sweepMu.Unlock()
}
