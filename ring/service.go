package ring

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRingNotCreated is returned when a ring operation runs before Create.
	ErrRingNotCreated = errors.New("descriptor ring has not been created")

	// ErrDescriptorConstraint is returned by the descriptor setters when a
	// value does not satisfy the engine's constraints.
	ErrDescriptorConstraint = errors.New("descriptor value violates engine constraints")

	// ErrEngineBusy is returned when the ring is reconfigured while the engine
	// still owns descriptors or is being reset.
	ErrEngineBusy = errors.New("engine is busy")

	// ErrEngineHalted is returned when work is submitted to an engine that
	// stopped on an error and has not been reset.
	ErrEngineHalted = errors.New("engine is halted")
)

// EngineError is the error word of the engine status register.
type EngineError uint32

const (
	EngineDMAInternal EngineError = 0x010
	EngineDMASlave    EngineError = 0x020
	EngineDMADecode   EngineError = 0x040
	EngineSGInternal  EngineError = 0x100
	EngineSGSlave     EngineError = 0x200
	EngineSGDecode    EngineError = 0x400
)

func (e EngineError) String() string {
	if e == 0 {
		return "none"
	}

	var parts []string
	for _, b := range []struct {
		bit  EngineError
		name string
	}{
		{EngineDMAInternal, "dma-internal"},
		{EngineDMASlave, "dma-slave"},
		{EngineDMADecode, "dma-decode"},
		{EngineSGInternal, "sg-internal"},
		{EngineSGSlave, "sg-slave"},
		{EngineSGDecode, "sg-decode"},
	} {
		if e&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	return fmt.Sprintf("0x%x(%s)", uint32(e), strings.Join(parts, "|"))
}

// Service is the driver surface the transfer engine consumes. A Service is
// not required to be safe for concurrent use; callers serialise access.
type Service interface {
	// Create lays a fresh ring over the BD space, discarding every descriptor.
	Create(spaceBase, spaceSize uint64, alignment int) error
	// Size returns the number of descriptors in the ring.
	Size() int

	// Allocate reserves count contiguous descriptors for configuration.
	Allocate(count int) (Batch, error)
	// UnAllocate gives back the most recent allocation without submitting it.
	UnAllocate(b Batch) error
	// Next returns the descriptor following d in ring order.
	Next(d *Descriptor) *Descriptor

	SetSource(d *Descriptor, addr uint64) error
	SetDestination(d *Descriptor, addr uint64) error
	SetLength(d *Descriptor, length uint32) error

	// Submit hands a fully configured batch to the engine.
	Submit(b Batch) error
	// PollFinished returns every descriptor the engine finished since the
	// last call. It never blocks.
	PollFinished() Batch
	// Free returns finished descriptors to the ring.
	Free(b Batch) error

	// EngineError returns the latched engine error word, zero if healthy.
	EngineError() EngineError
	// Reset requests an engine reset.
	Reset()
	// IsResetDone reports whether the last requested reset has completed.
	IsResetDone() bool
}
