package ring

import (
	"errors"
	"fmt"
)

var (
	// ErrRingSizeInvalid is returned when a ring size is invalid.
	ErrRingSizeInvalid = errors.New("ring size is invalid")

	// ErrAlignmentInvalid is returned when a descriptor alignment is invalid.
	ErrAlignmentInvalid = errors.New("descriptor alignment is invalid")
)

// DescriptorSize is the number of bytes a descriptor occupies in BD space.
const DescriptorSize = 64

// MinimumAlignment is the smallest descriptor alignment the engine accepts.
const MinimumAlignment = DescriptorSize

// MaxRingSize is the largest number of descriptors a ring may hold.
const MaxRingSize = 1 << 16

// CheckRingSize checks if the given value would be a valid number of
// descriptors for a ring and returns an [ErrRingSizeInvalid], if not.
func CheckRingSize(count int) error {
	if count <= 0 {
		return fmt.Errorf("%w: %d is too small", ErrRingSizeInvalid, count)
	}

	if count > MaxRingSize {
		return fmt.Errorf("%w: %d is larger than the maximum possible ring size %d",
			ErrRingSizeInvalid, count, MaxRingSize)
	}

	return nil
}

// CheckAlignment checks that alignment is a power of 2 no smaller than
// [MinimumAlignment].
func CheckAlignment(alignment int) error {
	if alignment < MinimumAlignment {
		return fmt.Errorf("%w: %d is smaller than %d", ErrAlignmentInvalid, alignment, MinimumAlignment)
	}

	if alignment&(alignment-1) != 0 {
		return fmt.Errorf("%w: %d is not a power of 2", ErrAlignmentInvalid, alignment)
	}

	return nil
}

// CountFor returns how many descriptors fit into a BD space of spaceSize bytes
// when every descriptor is placed on an alignment boundary.
func CountFor(spaceSize uint64, alignment int) int {
	if alignment <= 0 {
		return 0
	}
	stride := uint64(align(DescriptorSize, alignment))
	return int(spaceSize / stride)
}

// align rounds n up to the next multiple of alignment, which must be a power
// of 2.
func align(n, alignment int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}
