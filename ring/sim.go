package ring

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/slackhq/sgdma/memory"
)

var (
	// ErrSubmitRejected is returned by Sim.Submit when a submit fault fires.
	ErrSubmitRejected = errors.New("engine rejected the submission")

	// ErrFreeRejected is returned by Sim.Free when a free fault fires.
	ErrFreeRejected = errors.New("engine rejected the descriptor release")
)

// Options tune the simulated engine.
type Options struct {
	// CompletePerPoll is how many submitted descriptors the engine finishes
	// between two PollFinished calls.
	CompletePerPoll int
	// ResetLatency is how many IsResetDone checks report false after a reset
	// before the engine comes back.
	ResetLatency int
	// AddressAlignment, when non zero, is the alignment the engine requires of
	// source and destination addresses (no data realignment engine).
	AddressAlignment uint64
}

// DefaultOptions retire a quarter of a standard batch per poll and come out of
// reset on the second check.
var DefaultOptions = Options{
	CompletePerPoll:  16,
	ResetLatency:     1,
	AddressAlignment: 8,
}

// Faults are one-shot failures armed with Sim.Inject. Ordinals count
// descriptors retired since the faults were armed, starting at 1; zero
// disables a fault.
type Faults struct {
	// EngineErrorAfter latches an engine error instead of retiring this
	// descriptor. The descriptor stays with the engine.
	EngineErrorAfter int
	// StatusErrorAt retires this descriptor with an error status and halts.
	StatusErrorAt int
	// CorruptAt flips the first destination byte of this descriptor after
	// an otherwise clean copy.
	CorruptAt int
	// FailSubmit rejects the next Submit.
	FailSubmit bool
	// FailFree rejects the next Free.
	FailFree bool
	// ResetNeverDone keeps the next reset from ever completing.
	ResetNeverDone bool
}

// Sim is a software scatter-gather engine that copies within a memory.Space.
// It is safe for concurrent use.
type Sim struct {
	l    *logrus.Logger
	mem  *memory.Space
	opts Options

	mu        sync.Mutex
	table     *DescriptorTable
	engineErr EngineError
	halted    bool
	// resetting counts the IsResetDone checks left before the reset
	// completes, -1 means never.
	resetting int
	faults    Faults
	retired   int

	retiredCounter metrics.Counter
	bytesCounter   metrics.Counter
	resetCounter   metrics.Counter
}

func NewSim(l *logrus.Logger, mem *memory.Space, opts Options) *Sim {
	if opts.CompletePerPoll <= 0 {
		opts.CompletePerPoll = DefaultOptions.CompletePerPoll
	}
	if opts.ResetLatency < 0 {
		opts.ResetLatency = 0
	}

	return &Sim{
		l:              l,
		mem:            mem,
		opts:           opts,
		retiredCounter: metrics.GetOrRegisterCounter("engine.descriptors.retired", nil),
		bytesCounter:   metrics.GetOrRegisterCounter("engine.bytes", nil),
		resetCounter:   metrics.GetOrRegisterCounter("engine.resets", nil),
	}
}

// Inject arms faults, replacing any that have not fired yet.
func (s *Sim) Inject(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
	s.retired = 0
}

func (s *Sim) Create(spaceBase, spaceSize uint64, alignment int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resetting != 0 {
		return fmt.Errorf("%w: reset in progress", ErrEngineBusy)
	}
	if s.table != nil && s.table.hw.count > 0 && !s.halted {
		return fmt.Errorf("%w: %d descriptors still owned by the engine", ErrEngineBusy, s.table.hw.count)
	}

	if err := CheckAlignment(alignment); err != nil {
		return err
	}
	if spaceBase%uint64(alignment) != 0 {
		return fmt.Errorf("%w: BD space 0x%x is not aligned to %d", ErrAlignmentInvalid, spaceBase, alignment)
	}

	count := CountFor(spaceSize, alignment)
	if err := CheckRingSize(count); err != nil {
		return err
	}

	s.table = newDescriptorTable(count)
	s.l.WithFields(logrus.Fields{
		"spaceBase":   fmt.Sprintf("0x%x", spaceBase),
		"descriptors": count,
	}).Debug("Descriptor ring created")
	return nil
}

func (s *Sim) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return 0
	}
	return s.table.Size()
}

func (s *Sim) Allocate(count int) (Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return Batch{}, ErrRingNotCreated
	}
	return s.table.allocate(count)
}

func (s *Sim) UnAllocate(b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return ErrRingNotCreated
	}
	return s.table.unAllocate(b)
}

func (s *Sim) Next(d *Descriptor) *Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.next(d)
}

func (s *Sim) SetSource(d *Descriptor, addr uint64) error {
	return s.set(d, func() error {
		if err := s.checkAddress(addr); err != nil {
			return err
		}
		d.source = addr
		return nil
	})
}

func (s *Sim) SetDestination(d *Descriptor, addr uint64) error {
	return s.set(d, func() error {
		if err := s.checkAddress(addr); err != nil {
			return err
		}
		d.destination = addr
		return nil
	})
}

func (s *Sim) SetLength(d *Descriptor, length uint32) error {
	return s.set(d, func() error {
		if length == 0 || length > MaxLength {
			return fmt.Errorf("%w: length %d not in (0, %d]", ErrDescriptorConstraint, length, MaxLength)
		}
		d.length = length
		return nil
	})
}

func (s *Sim) set(d *Descriptor, f func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return ErrRingNotCreated
	}
	if !s.table.owns(d) {
		return fmt.Errorf("%w: descriptor does not belong to this ring", ErrInvalidBatch)
	}
	if d.state != statePre {
		return fmt.Errorf("%w: descriptor %d is not allocated", ErrInvalidBatch, d.index)
	}
	return f()
}

func (s *Sim) checkAddress(addr uint64) error {
	if s.opts.AddressAlignment > 1 && addr%s.opts.AddressAlignment != 0 {
		return fmt.Errorf("%w: address 0x%x is not aligned to %d", ErrDescriptorConstraint, addr, s.opts.AddressAlignment)
	}
	return nil
}

func (s *Sim) Submit(b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return ErrRingNotCreated
	}

	if s.faults.FailSubmit {
		s.faults.FailSubmit = false
		return ErrSubmitRejected
	}

	if s.halted {
		return fmt.Errorf("%w: %v", ErrEngineHalted, s.engineErr)
	}

	return s.table.toHW(b)
}

// PollFinished runs the engine for up to CompletePerPoll descriptors and hands
// back everything it retired.
func (s *Sim) PollFinished() Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil || s.halted {
		return Batch{}
	}

	n := min(s.opts.CompletePerPoll, s.table.hw.count)
	done := 0
	for i := 0; i < n; i++ {
		d := &s.table.descriptors[s.table.wrap(s.table.hw.head+i)]
		s.retired++

		if s.faults.EngineErrorAfter > 0 && s.retired >= s.faults.EngineErrorAfter {
			s.faults.EngineErrorAfter = 0
			s.halt(EngineDMAInternal, d)
			break
		}

		if s.faults.StatusErrorAt > 0 && s.retired >= s.faults.StatusErrorAt {
			s.faults.StatusErrorAt = 0
			d.status = StatusComplete | StatusInternalError
			s.halt(0, d)
			done++
			break
		}

		if err := s.mem.Copy(d.destination, d.source, uint64(d.length)); err != nil {
			d.status = StatusComplete | StatusDecodeError
			s.halt(EngineDMADecode, d)
			done++
			break
		}

		if s.faults.CorruptAt > 0 && s.retired >= s.faults.CorruptAt {
			s.faults.CorruptAt = 0
			if b, err := s.mem.Slice(d.destination, 1); err == nil {
				b[0] = ^b[0]
			}
		}

		d.status = StatusComplete
		s.bytesCounter.Inc(int64(d.length))
		done++
	}

	s.retiredCounter.Inc(int64(done))
	return s.table.fromHW(done)
}

// halt stops the engine on d, latching err into the status register.
func (s *Sim) halt(err EngineError, d *Descriptor) {
	s.engineErr |= err
	s.halted = true
	s.l.WithField("descriptor", d).WithField("engineError", s.engineErr).Debug("Simulated engine halted")
}

func (s *Sim) Free(b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return ErrRingNotCreated
	}

	if s.faults.FailFree {
		s.faults.FailFree = false
		return ErrFreeRejected
	}

	return s.table.release(b)
}

func (s *Sim) EngineError() EngineError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engineErr
}

// Reset clears the error state and takes every descriptor back from the
// engine. The reset completes after ResetLatency checks.
func (s *Sim) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetCounter.Inc(1)
	s.engineErr = 0
	s.halted = false
	if s.table != nil {
		s.table.initializeDescriptors()
	}

	if s.faults.ResetNeverDone {
		s.faults.ResetNeverDone = false
		s.resetting = -1
		return
	}
	s.resetting = s.opts.ResetLatency
}

func (s *Sim) IsResetDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.resetting < 0:
		return false
	case s.resetting > 0:
		s.resetting--
		return false
	}
	return true
}
