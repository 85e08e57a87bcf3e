package sgdma

import (
	"fmt"

	"github.com/slackhq/sgdma/memory"
)

// Verify compares length bytes at dst against src and reports the first
// differing byte. Without hardware coherency the destination is invalidated
// first so the comparison reads what the engine wrote.
func Verify(mem *memory.Space, coh memory.Coherency, src, dst, length uint64, hwCoherent bool) error {
	if !hwCoherent {
		coh.InvalidateRange(dst, length)
	}

	s, err := mem.Slice(src, length)
	if err != nil {
		return fmt.Errorf("verify source buffer: %w", err)
	}
	d, err := mem.Slice(dst, length)
	if err != nil {
		return fmt.Errorf("verify destination buffer: %w", err)
	}

	for i := range s {
		if d[i] != s[i] {
			return &MismatchError{Index: i, Address: dst + uint64(i), Want: s[i], Got: d[i]}
		}
	}
	return nil
}
