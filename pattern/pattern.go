// Package pattern generates the reference values written into a DMA source
// buffer. Every value is a pure function of the word address, the byte offset
// within the buffer and the test mode, so a buffer can be regenerated at any
// time to locate corruption.
package pattern

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrModeOutOfRange is returned for a mode outside [0, ModeCount).
	ErrModeOutOfRange = errors.New("pattern mode out of range")

	// ErrNoPatternTable is returned when a fixed table mode has no row in
	// testPatterns.
	ErrNoPatternTable = errors.New("no pattern table for mode")
)

const (
	randomBase   = 0x12345678
	randomStride = 19
	randomSalt   = 0x017c1e2313567c9b
)

// Kind is the pattern family a mode belongs to.
type Kind int

const (
	// AddressDerived encodes the word address itself into the value.
	AddressDerived Kind = iota
	// FixedTable cycles a 4 entry row every 32 bytes.
	FixedTable
	// InvertedTable walks a 128 entry table one entry per 4 bytes.
	InvertedTable
	// Pseudorandom is a single LFSR step from a mode derived seed.
	Pseudorandom
)

func (k Kind) String() string {
	switch k {
	case AddressDerived:
		return "address"
	case FixedTable:
		return "fixed"
	case InvertedTable:
		return "inverted"
	case Pseudorandom:
		return "random"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// KindOf returns the family the numeric dispatch in Value uses for mode.
func KindOf(mode int) Kind {
	switch {
	case mode == 0:
		return AddressDerived
	case mode > 0 && mode <= 8:
		return FixedTable
	case mode > 8 && mode <= 10:
		return InvertedTable
	}
	return Pseudorandom
}

// Value returns the reference value for the 64-bit word at address, found at
// byte offset within the buffer. It is total: a missing table falls back to
// the pseudorandom path and a short table is indexed modulo its length.
func Value(address, offset uint64, mode int, table []uint64) uint64 {
	kind := KindOf(mode)
	if (kind == FixedTable || kind == InvertedTable) && len(table) == 0 {
		kind = Pseudorandom
	}
	return value(kind, address, offset, mode, table)
}

func value(kind Kind, address, offset uint64, mode int, table []uint64) uint64 {
	switch kind {
	case AddressDerived:
		return ((address + 4) << 32) | address
	case FixedTable:
		return table[((offset%32)/8)%uint64(len(table))]
	case InvertedTable:
		return table[((offset>>2)&0x7f)%uint64(len(table))]
	}
	return Random(mode)
}

// Random is the pseudorandom value for mode. The seed is derived from the
// mode on every call, so every word of a buffer gets the same value.
func Random(mode int) uint64 {
	seed := uint64(randomBase) + randomStride*uint64(int64(mode)) + randomSalt
	return lfsr(seed)
}

// lfsr shifts left and feeds back taps 60 and 54 with a forced set bit.
func lfsr(a uint64) uint64 {
	return (a << 1) + (((a >> 60) & 1) ^ ((a >> 54) & 1) ^ 1)
}

// Plan is a mode resolved once into its pattern family and table.
type Plan struct {
	Mode  int
	Kind  Kind
	Table []uint64
}

// PlanFor resolves mode into a Plan. inverted must be the result of
// InvertedTables. The Plan owns its table.
func PlanFor(mode int, inverted *[2][InvertedTableLen]uint64) (Plan, error) {
	if mode < 0 || mode >= ModeCount {
		return Plan{}, fmt.Errorf("%w: %d not in [0, %d)", ErrModeOutOfRange, mode, ModeCount)
	}

	p := Plan{Mode: mode, Kind: KindOf(mode)}
	switch p.Kind {
	case FixedTable:
		if mode >= len(testPatterns) {
			return Plan{}, fmt.Errorf("%w: %d exceeds %d fixed rows", ErrNoPatternTable, mode, len(testPatterns))
		}
		p.Table = slices.Clone(testPatterns[mode][:])
	case InvertedTable:
		if inverted == nil {
			return Plan{}, fmt.Errorf("%w: %d needs the inverted tables", ErrNoPatternTable, mode)
		}
		p.Table = slices.Clone(inverted[mode-9][:])
	}
	return p, nil
}

// Value returns the reference value for the word at address and offset.
func (p Plan) Value(address, offset uint64) uint64 {
	return value(p.Kind, address, offset, p.Mode, p.Table)
}

func (p Plan) String() string {
	return fmt.Sprintf("mode %d (%s)", p.Mode, p.Kind)
}

// Ramp fills buf with the repeating byte ramp i & 0xFF.
func Ramp(buf []byte) {
	for i := range buf {
		buf[i] = byte(i)
	}
}

// Fill writes p.Value for every 8 byte word of buf, which starts at base.
// Words are stored little endian. A trailing partial word is left untouched.
func Fill(buf []byte, base uint64, p Plan) {
	for off := 0; off+8 <= len(buf); off += 8 {
		o := uint64(off)
		binary.LittleEndian.PutUint64(buf[off:], p.Value(base+o, o))
	}
}
