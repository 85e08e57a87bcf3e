package ring

import "fmt"

// Status is the completion word the engine writes back into a descriptor.
type Status uint32

const (
	// StatusInternalError means the engine hit an internal error while
	// processing the descriptor.
	StatusInternalError Status = 0x10000000
	// StatusSlaveError means a memory slave answered with an error.
	StatusSlaveError Status = 0x20000000
	// StatusDecodeError means an address did not decode to any slave.
	StatusDecodeError Status = 0x40000000
	// StatusComplete means the engine finished the descriptor.
	StatusComplete Status = 0x80000000

	// StatusAllErrors masks every error bit.
	StatusAllErrors = StatusInternalError | StatusSlaveError | StatusDecodeError
)

// Err reports whether any error bit is set.
func (s Status) Err() bool {
	return s&StatusAllErrors != 0
}

// MaxLength is the largest transfer length a single descriptor can carry.
const MaxLength = 1<<23 - 1

// descriptorState tracks which ring group a descriptor belongs to.
type descriptorState uint8

const (
	stateFree descriptorState = iota
	statePre
	stateHW
	statePost
)

// Descriptor describes one copy of length bytes from source to destination.
// Descriptors are owned by the ring; callers only ever hold pointers handed
// out by a [Service].
type Descriptor struct {
	index       int
	source      uint64
	destination uint64
	length      uint32
	status      Status
	state       descriptorState
}

func (d *Descriptor) Index() int          { return d.index }
func (d *Descriptor) Source() uint64      { return d.source }
func (d *Descriptor) Destination() uint64 { return d.destination }
func (d *Descriptor) Length() uint32      { return d.length }
func (d *Descriptor) Status() Status      { return d.status }
func (d *Descriptor) String() string {
	return fmt.Sprintf("bd %d 0x%x->0x%x len %d sts 0x%08x", d.index, d.source, d.destination, d.length, uint32(d.status))
}

// clear zeroes everything but the index, as a freshly cloned template would.
func (d *Descriptor) clear() {
	*d = Descriptor{index: d.index}
}

// Batch is a contiguous run of Count descriptors starting at First. Use
// [Service.Next] to walk it.
type Batch struct {
	First *Descriptor
	Count int
}

// Empty reports whether the batch holds no descriptors.
func (b Batch) Empty() bool {
	return b.First == nil || b.Count == 0
}
