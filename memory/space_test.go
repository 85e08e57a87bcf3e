package memory

import (
	"testing"

	"github.com/slackhq/sgdma/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpace_Map(t *testing.T) {
	s := NewSpace()
	defer s.Close()

	require.NoError(t, s.Map("ps_ddr", 0x01000000, 0x100000))
	require.NoError(t, s.Map("pl_ddr4", 0x400000000, 0x1000000))

	err := s.Map("overlap", 0x010ff000, 0x2000)
	assert.ErrorIs(t, err, ErrOverlap)

	assert.ErrorContains(t, s.Map("ps_ddr", 0x0, 0x10), "already mapped")
	assert.ErrorContains(t, s.Map("empty", 0x0, 0), "must not be zero")
	assert.ErrorContains(t, s.Map("wrap", 0xFFFFFFFFFFFFF000, 0x2000), "wraps")

	assert.Equal(t, []Region{
		{Name: "ps_ddr", Base: 0x01000000, Size: 0x100000},
		{Name: "pl_ddr4", Base: 0x400000000, Size: 0x1000000},
	}, s.Regions())
}

func TestSpace_Slice(t *testing.T) {
	s := NewSpace()
	defer s.Close()
	require.NoError(t, s.Map("ram", 0x1000, 0x1000))

	b, err := s.Slice(0x1000, 0x1000)
	require.NoError(t, err)
	assert.Len(t, b, 0x1000)
	b[0x10] = 0xab

	b2, err := s.Slice(0x1010, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), b2[0])

	_, err = s.Slice(0xfff, 2)
	assert.ErrorIs(t, err, ErrUnmapped)
	_, err = s.Slice(0x1fff, 2)
	assert.ErrorIs(t, err, ErrUnmapped)
	_, err = s.Slice(0x1000, 0x1001)
	assert.ErrorIs(t, err, ErrUnmapped)

	r, ok := s.Lookup(0x1800, 0x10)
	assert.True(t, ok)
	assert.Equal(t, "ram", r.Name)
	_, ok = s.Lookup(0x5000, 1)
	assert.False(t, ok)
}

func TestSpace_Copy(t *testing.T) {
	s := NewSpace()
	defer s.Close()
	require.NoError(t, s.Map("a", 0x1000, 0x1000))
	require.NoError(t, s.Map("b", 0x8000, 0x1000))

	src, err := s.Slice(0x1000, 0x100)
	require.NoError(t, err)
	for i := range src {
		src[i] = byte(i)
	}

	require.NoError(t, s.Copy(0x8000, 0x1000, 0x100))
	dst, err := s.Slice(0x8000, 0x100)
	require.NoError(t, err)
	assert.Equal(t, src, dst)

	assert.ErrorIs(t, s.Copy(0x8f80, 0x1000, 0x100), ErrUnmapped)
}

func TestRegion_Contains(t *testing.T) {
	r := Region{Base: 0x100, Size: 0x100}
	assert.True(t, r.Contains(0x100, 0x100))
	assert.True(t, r.Contains(0x1ff, 1))
	assert.True(t, r.Contains(0x200, 0))
	assert.False(t, r.Contains(0x1ff, 2))
	assert.False(t, r.Contains(0xff, 1))
	assert.False(t, r.Contains(0x100, 0x101))
	assert.Equal(t, "[0x100-0x200)", r.String())
}

func TestTracker(t *testing.T) {
	tr := NewTracker(test.NewLogger())
	tr.FlushRange(0x1000, 0x40000)
	tr.InvalidateRange(0x2000, 0x40000)

	assert.Equal(t, []Op{
		{Kind: OpFlush, Addr: 0x1000, Len: 0x40000},
		{Kind: OpInvalidate, Addr: 0x2000, Len: 0x40000},
	}, tr.Ops())

	for i := 0; i < 20; i++ {
		tr.FlushRange(uint64(i), 1)
	}
	ops := tr.Ops()
	assert.Len(t, ops, trackerHistory)
	assert.Equal(t, uint64(19), ops[len(ops)-1].Addr)
	assert.Equal(t, "flush 0x13+0x1", ops[len(ops)-1].String())

	tr.Reset()
	assert.Empty(t, tr.Ops())
}
