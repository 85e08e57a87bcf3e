package sgdma

import (
	"fmt"

	"github.com/slackhq/sgdma/memory"
	"github.com/slackhq/sgdma/pattern"
)

// PrepareSource fills length bytes at src and flushes them out of the data
// cache. A nil plan writes the byte ramp, otherwise every 8 byte word gets its
// reference value. With a hardware coherent engine the destination range is
// flushed too, so no dirty line can be written back over the transfer.
func PrepareSource(mem *memory.Space, coh memory.Coherency, src, dst, length uint64, plan *pattern.Plan, hwCoherent bool) error {
	buf, err := mem.Slice(src, length)
	if err != nil {
		return fmt.Errorf("prepare source buffer: %w", err)
	}

	if plan == nil {
		pattern.Ramp(buf)
	} else {
		pattern.Fill(buf, src, *plan)
	}

	coh.FlushRange(src, length)
	if hwCoherent {
		coh.FlushRange(dst, length)
	}
	return nil
}
