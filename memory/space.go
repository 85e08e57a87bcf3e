// Package memory simulates the physical address space seen by the DMA engine
// and the cache maintenance the CPU performs around a transfer.
package memory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/exp/maps"
)

var (
	// ErrUnmapped is returned when an address range is not fully contained in
	// a single mapped region.
	ErrUnmapped = errors.New("address range is not mapped")

	// ErrOverlap is returned when a new region would overlap an existing one.
	ErrOverlap = errors.New("region overlaps an existing region")
)

// Region is a contiguous, named window of the address space.
type Region struct {
	Name string
	Base uint64
	Size uint64
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return r.Base + r.Size
}

// Contains reports whether [addr, addr+n) lies within the region.
func (r Region) Contains(addr, n uint64) bool {
	return addr >= r.Base && n <= r.Size && addr-r.Base <= r.Size-n
}

func (r Region) String() string {
	return fmt.Sprintf("%s[0x%x-0x%x)", r.Name, r.Base, r.End())
}

type region struct {
	Region
	data []byte
}

// Space is a set of non overlapping regions backed by host memory. Large
// regions are backed by lazily committed pages where the platform allows it,
// so mapping a multi gigabyte window only costs what is touched.
type Space struct {
	sync.RWMutex
	regions map[string]*region
}

func NewSpace() *Space {
	return &Space{regions: make(map[string]*region)}
}

// Map adds a zero filled region to the space.
func (s *Space) Map(name string, base, size uint64) error {
	if size == 0 {
		return fmt.Errorf("region %s: size must not be zero", name)
	}
	if base+size < base {
		return fmt.Errorf("region %s: 0x%x+0x%x wraps the address space", name, base, size)
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.regions[name]; ok {
		return fmt.Errorf("region %s is already mapped", name)
	}

	nr := Region{Name: name, Base: base, Size: size}
	for _, r := range s.regions {
		if nr.Base < r.End() && r.Base < nr.End() {
			return fmt.Errorf("%w: %s and %s", ErrOverlap, nr, r.Region)
		}
	}

	data, err := alloc(size)
	if err != nil {
		return fmt.Errorf("allocate region %s: %w", nr, err)
	}

	s.regions[name] = &region{Region: nr, data: data}
	return nil
}

// Regions returns the mapped regions ordered by base address.
func (s *Space) Regions() []Region {
	s.RLock()
	defer s.RUnlock()

	names := maps.Keys(s.regions)
	out := make([]Region, 0, len(names))
	for _, n := range names {
		out = append(out, s.regions[n].Region)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Base < out[j].Base })
	return out
}

// Lookup returns the region containing [addr, addr+n).
func (s *Space) Lookup(addr, n uint64) (Region, bool) {
	s.RLock()
	defer s.RUnlock()

	r := s.find(addr, n)
	if r == nil {
		return Region{}, false
	}
	return r.Region, true
}

func (s *Space) find(addr, n uint64) *region {
	for _, r := range s.regions {
		if r.Contains(addr, n) {
			return r
		}
	}
	return nil
}

// Slice returns the host memory behind [addr, addr+n). The slice aliases the
// region and stays valid until Close.
func (s *Space) Slice(addr, n uint64) ([]byte, error) {
	s.RLock()
	defer s.RUnlock()

	r := s.find(addr, n)
	if r == nil {
		return nil, fmt.Errorf("%w: 0x%x+0x%x", ErrUnmapped, addr, n)
	}
	off := addr - r.Base
	return r.data[off : off+n : off+n], nil
}

// Copy moves n bytes from src to dst, the way the engine would.
func (s *Space) Copy(dst, src, n uint64) error {
	d, err := s.Slice(dst, n)
	if err != nil {
		return err
	}
	sb, err := s.Slice(src, n)
	if err != nil {
		return err
	}
	copy(d, sb)
	return nil
}

// Close releases the memory behind every region. The space must not be used
// afterwards.
func (s *Space) Close() error {
	s.Lock()
	defer s.Unlock()

	var errs []error
	for name, r := range s.regions {
		if err := free(r.data); err != nil {
			errs = append(errs, fmt.Errorf("release region %s: %w", r.Region, err))
		}
		delete(s.regions, name)
	}
	return errors.Join(errs...)
}
