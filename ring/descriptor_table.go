package ring

import (
	"errors"
	"fmt"
)

var (
	// ErrNotEnoughFreeDescriptors is returned when the free descriptors are
	// exhausted, meaning that the ring is full.
	ErrNotEnoughFreeDescriptors = errors.New("not enough free descriptors, ring is full")

	// ErrInvalidBatch is returned when a batch is not valid for a given
	// operation.
	ErrInvalidBatch = errors.New("invalid descriptor batch")
)

// group is a contiguous run of the ring.
type group struct {
	head  int
	count int
}

// DescriptorTable holds the [Descriptor]s of a ring, addressed via their
// index in the slice, and tracks which group each run belongs to.
type DescriptorTable struct {
	descriptors []Descriptor

	free group
	pre  group
	hw   group
	post group
}

// newDescriptorTable creates a table of count descriptors, all free.
func newDescriptorTable(count int) *DescriptorTable {
	dt := &DescriptorTable{descriptors: make([]Descriptor, count)}
	for i := range dt.descriptors {
		dt.descriptors[i].index = i
	}
	dt.initializeDescriptors()
	return dt
}

// initializeDescriptors clears every descriptor and puts the whole ring back
// into the free group, starting at index 0.
func (dt *DescriptorTable) initializeDescriptors() {
	for i := range dt.descriptors {
		dt.descriptors[i].clear()
	}
	dt.free = group{head: 0, count: len(dt.descriptors)}
	dt.pre = group{}
	dt.hw = group{}
	dt.post = group{}
}

// Size returns the number of descriptors in the table.
func (dt *DescriptorTable) Size() int {
	return len(dt.descriptors)
}

// FreeCount returns the number of descriptors available for allocation.
func (dt *DescriptorTable) FreeCount() int {
	return dt.free.count
}

func (dt *DescriptorTable) wrap(i int) int {
	return i % len(dt.descriptors)
}

func (dt *DescriptorTable) next(d *Descriptor) *Descriptor {
	return &dt.descriptors[dt.wrap(d.index+1)]
}

// owns reports whether d points into this table.
func (dt *DescriptorTable) owns(d *Descriptor) bool {
	return d != nil && d.index >= 0 && d.index < len(dt.descriptors) && &dt.descriptors[d.index] == d
}

// allocate takes count descriptors from the head of the free group and moves
// them into the pre group.
func (dt *DescriptorTable) allocate(count int) (Batch, error) {
	if count <= 0 {
		return Batch{}, fmt.Errorf("%w: cannot allocate %d descriptors", ErrInvalidBatch, count)
	}

	if count > dt.free.count {
		return Batch{}, fmt.Errorf("%w: want %d, %d free of %d", ErrNotEnoughFreeDescriptors,
			count, dt.free.count, len(dt.descriptors))
	}

	if dt.pre.count == 0 {
		dt.pre.head = dt.free.head
	}

	first := &dt.descriptors[dt.free.head]
	for i := 0; i < count; i++ {
		d := &dt.descriptors[dt.wrap(dt.free.head+i)]
		checkUnusedDescriptor(d)
		d.state = statePre
	}

	dt.free.head = dt.wrap(dt.free.head + count)
	dt.free.count -= count
	dt.pre.count += count

	return Batch{First: first, Count: count}, nil
}

// unAllocate returns the most recent allocation to the free group. Only the
// tail of the pre group can be given back.
func (dt *DescriptorTable) unAllocate(b Batch) error {
	if err := dt.checkBatch(b, statePre); err != nil {
		return err
	}

	tail := dt.wrap(dt.pre.head + dt.pre.count - b.Count)
	if b.First.index != tail {
		return fmt.Errorf("%w: %d is not the tail of the allocated descriptors", ErrInvalidBatch, b.First.index)
	}

	for i := 0; i < b.Count; i++ {
		dt.descriptors[dt.wrap(tail+i)].clear()
	}

	dt.pre.count -= b.Count
	dt.free.head = tail
	dt.free.count += b.Count
	return nil
}

// toHW moves a batch from the head of the pre group into the hw group.
func (dt *DescriptorTable) toHW(b Batch) error {
	if err := dt.checkBatch(b, statePre); err != nil {
		return err
	}

	if b.First.index != dt.pre.head {
		return fmt.Errorf("%w: %d is not the head of the allocated descriptors", ErrInvalidBatch, b.First.index)
	}

	for i := 0; i < b.Count; i++ {
		d := &dt.descriptors[dt.wrap(b.First.index+i)]
		if d.length == 0 {
			return fmt.Errorf("%w: %v has no length", ErrInvalidBatch, d)
		}
	}

	if dt.hw.count == 0 {
		dt.hw.head = dt.pre.head
	}
	for i := 0; i < b.Count; i++ {
		d := &dt.descriptors[dt.wrap(b.First.index+i)]
		d.status = 0
		d.state = stateHW
	}

	dt.pre.head = dt.wrap(dt.pre.head + b.Count)
	dt.pre.count -= b.Count
	dt.hw.count += b.Count
	return nil
}

// fromHW moves up to limit descriptors from the head of the hw group into the
// post group and returns them. The caller decides how many the engine
// finished.
func (dt *DescriptorTable) fromHW(limit int) Batch {
	n := min(limit, dt.hw.count)
	if n <= 0 {
		return Batch{}
	}

	if dt.post.count == 0 {
		dt.post.head = dt.hw.head
	}

	first := &dt.descriptors[dt.hw.head]
	for i := 0; i < n; i++ {
		dt.descriptors[dt.wrap(dt.hw.head+i)].state = statePost
	}

	dt.hw.head = dt.wrap(dt.hw.head + n)
	dt.hw.count -= n
	dt.post.count += n
	return Batch{First: first, Count: n}
}

// release returns a batch from the head of the post group to the free group.
func (dt *DescriptorTable) release(b Batch) error {
	if err := dt.checkBatch(b, statePost); err != nil {
		return err
	}

	if b.First.index != dt.post.head {
		return fmt.Errorf("%w: %d is not the head of the retired descriptors", ErrInvalidBatch, b.First.index)
	}

	for i := 0; i < b.Count; i++ {
		dt.descriptors[dt.wrap(b.First.index+i)].clear()
	}

	dt.post.head = dt.wrap(dt.post.head + b.Count)
	dt.post.count -= b.Count
	dt.free.count += b.Count
	return nil
}

// checkBatch validates that b belongs to this table and that every descriptor
// in it is in the wanted state.
func (dt *DescriptorTable) checkBatch(b Batch, want descriptorState) error {
	if b.Empty() {
		return fmt.Errorf("%w: empty batch", ErrInvalidBatch)
	}

	if !dt.owns(b.First) {
		return fmt.Errorf("%w: descriptor does not belong to this ring", ErrInvalidBatch)
	}

	if b.Count > len(dt.descriptors) {
		return fmt.Errorf("%w: %d descriptors exceed the ring size %d", ErrInvalidBatch, b.Count, len(dt.descriptors))
	}

	for i := 0; i < b.Count; i++ {
		d := &dt.descriptors[dt.wrap(b.First.index+i)]
		if d.state != want {
			return fmt.Errorf("%w: descriptor %d is in the wrong state", ErrInvalidBatch, d.index)
		}
	}

	return nil
}

// checkUnusedDescriptor asserts that a free descriptor carries no leftover
// configuration. This is not a hardware requirement but rather a thing we do
// to notice when the group accounting goes sideways.
func checkUnusedDescriptor(d *Descriptor) {
	if d.state != stateFree || d.length != 0 || d.status != 0 {
		panic(fmt.Sprintf("descriptor %d should be unused but is %v", d.index, d))
	}
}
