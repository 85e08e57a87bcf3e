// Package sgdma drives a scatter-gather DMA engine through batches of memory
// to memory transfers and checks that every byte arrived.
package sgdma

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/sgdma/memory"
	"github.com/slackhq/sgdma/pattern"
	"github.com/slackhq/sgdma/ring"
)

const (
	DefaultPacketLength  = 4096
	DefaultBatchSize     = 64
	DefaultResetAttempts = 10

	DefaultRingSpaceBase = 0xFFFC0000
	DefaultRingSpaceSize = 0x10000
	DefaultRingAlignment = ring.MinimumAlignment
)

type Options struct {
	PacketLength  int
	BatchSize     int
	ResetAttempts int

	RingSpaceBase uint64
	RingSpaceSize uint64
	RingAlignment int

	// HardwareCoherent skips invalidating the destination before
	// verification and flushes it before the transfer instead.
	HardwareCoherent bool

	// TargetSize is the number of bytes the range sweep walks.
	TargetSize uint64

	Poll PollStrategy
}

func DefaultOptions() Options {
	return Options{
		PacketLength:  DefaultPacketLength,
		BatchSize:     DefaultBatchSize,
		ResetAttempts: DefaultResetAttempts,
		RingSpaceBase: DefaultRingSpaceBase,
		RingSpaceSize: DefaultRingSpaceSize,
		RingAlignment: DefaultRingAlignment,
		TargetSize:    64 * 1024 * 1024,
		Poll:          SpinPoll{},
	}
}

// BatchBytes is the number of bytes one transfer moves.
func (o Options) BatchBytes() uint64 {
	return uint64(o.PacketLength) * uint64(o.BatchSize)
}

func (o Options) validate() error {
	if o.PacketLength <= 0 || o.PacketLength > ring.MaxLength {
		return fmt.Errorf("packet length %d must be in (0, %d]", o.PacketLength, ring.MaxLength)
	}
	if o.BatchSize <= 0 {
		return fmt.Errorf("batch size %d must be positive", o.BatchSize)
	}
	if o.ResetAttempts <= 0 {
		return fmt.Errorf("reset attempts %d must be positive", o.ResetAttempts)
	}
	if err := ring.CheckAlignment(o.RingAlignment); err != nil {
		return err
	}
	if n := ring.CountFor(o.RingSpaceSize, o.RingAlignment); n < o.BatchSize {
		return fmt.Errorf("ring space 0x%x holds %d descriptors, batch needs %d", o.RingSpaceSize, n, o.BatchSize)
	}
	return nil
}

// Engine runs transfers through a ring.Service. Transfers from concurrent
// callers are serialised.
type Engine struct {
	l    *logrus.Logger
	ring ring.Service
	mem  *memory.Space
	coh  memory.Coherency
	opts Options
	m    *engineMetrics

	// mu covers one complete transfer.
	mu sync.Mutex
	// sweepMu covers a sweep and the buffers it walks.
	sweepMu sync.Mutex
	buffers *Buffers
}

func NewEngine(l *logrus.Logger, r ring.Service, mem *memory.Space, coh memory.Coherency, buffers *Buffers, opts Options) (*Engine, error) {
	if opts.Poll == nil {
		opts.Poll = SpinPoll{}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	return &Engine{
		l:       l,
		ring:    r,
		mem:     mem,
		coh:     coh,
		opts:    opts,
		m:       newEngineMetrics(),
		buffers: buffers,
	}, nil
}

func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) Buffers() *Buffers {
	return e.buffers
}

// RunTransfer moves one batch from src to dst and verifies it. A nil plan
// transfers the byte ramp.
func (e *Engine) RunTransfer(src, dst uint64, plan *pattern.Plan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	err := e.runTransfer(src, dst, plan)
	e.m.record(err, e.opts.BatchBytes(), time.Since(start))
	return err
}

func (e *Engine) runTransfer(src, dst uint64, plan *pattern.Plan) error {
	length := e.opts.BatchBytes()

	if err := e.ring.Create(e.opts.RingSpaceBase, e.opts.RingSpaceSize, e.opts.RingAlignment); err != nil {
		return fmt.Errorf("%w: %w", ErrRingSetup, err)
	}

	if err := PrepareSource(e.mem, e.coh, src, dst, length, plan, e.opts.HardwareCoherent); err != nil {
		return err
	}

	if _, err := Submit(e.ring, src, dst, e.opts.BatchSize, e.opts.PacketLength); err != nil {
		e.l.WithError(err).
			WithField("src", fmt.Sprintf("0x%x", src)).
			WithField("dst", fmt.Sprintf("0x%x", dst)).
			Error("Failed to submit transfer")
		return err
	}

	var st transferState
	if err := waitForCompletion(e.ring, &st, e.opts.BatchSize, e.opts.Poll); err != nil {
		e.l.WithError(err).
			WithField("completed", st.done).
			WithField("engineError", st.engineErr.String()).
			Error("Transfer has error")
		return e.resetAfter(err)
	}

	if err := Verify(e.mem, e.coh, src, dst, length, e.opts.HardwareCoherent); err != nil {
		var me *MismatchError
		if errors.As(err, &me) {
			e.l.WithField("index", me.Index).
				WithField("address", fmt.Sprintf("0x%x", me.Address)).
				WithField("want", me.Want).
				WithField("got", me.Got).
				Error("Data check failure")
		}
		return err
	}

	return nil
}

// resetAfter resets the engine after a failed transfer. The transfer error is
// always returned, joined with the reset error if the engine did not come
// back.
func (e *Engine) resetAfter(cause error) error {
	e.m.resets.Inc(1)
	checks, err := recoverEngine(e.ring, e.opts.ResetAttempts)
	if err != nil {
		e.l.WithError(err).WithField("checks", checks).Error("Reset hardware failed")
		return errors.Join(cause, err)
	}

	e.l.WithField("checks", checks).Info("Engine reset")
	return cause
}
