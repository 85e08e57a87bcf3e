package sgdma

import (
	"errors"
	"fmt"

	"github.com/slackhq/sgdma/ring"
)

// Submit allocates batchSize descriptors, points descriptor i at
// src+i*packetLength and dst+i*packetLength, and hands the batch to the
// engine. A batch that fails to configure or submit is given back to the ring
// so none of it reaches the engine.
func Submit(r ring.Service, src, dst uint64, batchSize, packetLength int) (ring.Batch, error) {
	if packetLength <= 0 || packetLength > ring.MaxLength {
		return ring.Batch{}, fmt.Errorf("%w: packet length %d not in (0, %d]", ErrDescriptorConfig, packetLength, ring.MaxLength)
	}

	b, err := r.Allocate(batchSize)
	if err != nil {
		return ring.Batch{}, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}

	d := b.First
	for i := 0; i < batchSize; i++ {
		off := uint64(i) * uint64(packetLength)
		if err := configureDescriptor(r, d, src+off, dst+off, uint32(packetLength)); err != nil {
			return ring.Batch{}, errors.Join(
				fmt.Errorf("%w: descriptor %d: %w", ErrDescriptorConfig, i, err),
				r.UnAllocate(b),
			)
		}
		d = r.Next(d)
	}

	if err := r.Submit(b); err != nil {
		return ring.Batch{}, errors.Join(fmt.Errorf("%w: %w", ErrSubmitFailed, err), r.UnAllocate(b))
	}

	return b, nil
}

func configureDescriptor(r ring.Service, d *ring.Descriptor, src, dst uint64, length uint32) error {
	if err := r.SetSource(d, src); err != nil {
		return fmt.Errorf("set src addr 0x%x: %w", src, err)
	}
	if err := r.SetDestination(d, dst); err != nil {
		return fmt.Errorf("set dst addr 0x%x: %w", dst, err)
	}
	if err := r.SetLength(d, length); err != nil {
		return fmt.Errorf("set length %d: %w", length, err)
	}
	return nil
}
