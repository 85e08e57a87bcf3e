package sgdma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffers(t *testing.T) {
	b := NewBuffers(WriteTest, 0x1000, 0x400000000)
	assert.Equal(t, uint64(0x1000), b.Transmit)
	assert.Equal(t, uint64(0x400000000), b.Receive)

	b.Advance(0x40000)
	b.Advance(0x40000)
	assert.Equal(t, uint64(0x1000), b.Transmit)
	assert.Equal(t, uint64(0x400080000), b.Receive)
	assert.Equal(t, b.Receive, b.Moving())

	b.Reset()
	assert.Equal(t, uint64(0x400000000), b.Receive)

	b = NewBuffers(ReadTest, 0x1000, 0x400000000)
	assert.Equal(t, uint64(0x400000000), b.Transmit)
	assert.Equal(t, uint64(0x1000), b.Receive)
	b.Advance(0x40000)
	assert.Equal(t, uint64(0x400040000), b.Moving())
	assert.Equal(t, uint64(0x1000), b.Receive)
}

func TestParseOrientation(t *testing.T) {
	for in, want := range map[string]Orientation{"": WriteTest, "write": WriteTest, "READ": ReadTest} {
		o, err := ParseOrientation(in)
		require.NoError(t, err)
		assert.Equal(t, want, o)
	}

	_, err := ParseOrientation("sideways")
	assert.EqualError(t, err, "unknown orientation `sideways`. possible orientations: [write read]")
	assert.Equal(t, "read", ReadTest.String())
	assert.Equal(t, "write", WriteTest.String())
}
