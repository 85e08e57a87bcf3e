package sgdma

import (
	"fmt"
	"strings"
)

// Orientation decides which buffer sits in the region under test.
type Orientation int

const (
	// WriteTest copies from the anchored buffer into the target region.
	WriteTest Orientation = iota
	// ReadTest copies from the target region into the anchored buffer.
	ReadTest
)

func (o Orientation) String() string {
	if o == ReadTest {
		return "read"
	}
	return "write"
}

func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(s) {
	case "", "write":
		return WriteTest, nil
	case "read":
		return ReadTest, nil
	}
	return WriteTest, fmt.Errorf("unknown orientation `%s`. possible orientations: %s", s, []string{"write", "read"})
}

// Buffers holds the transmit (source) and receive (destination) addresses of
// the next transfer. Only the buffer inside the target region moves.
type Buffers struct {
	Orientation Orientation
	// AnchorBase is where the fixed buffer lives.
	AnchorBase uint64
	// TargetBase is the start of the region being swept.
	TargetBase uint64

	Transmit uint64
	Receive  uint64
}

func NewBuffers(o Orientation, anchorBase, targetBase uint64) *Buffers {
	b := &Buffers{Orientation: o, AnchorBase: anchorBase, TargetBase: targetBase}
	b.Reset()
	return b
}

// Reset puts both buffers back at their base addresses.
func (b *Buffers) Reset() {
	if b.Orientation == ReadTest {
		b.Transmit, b.Receive = b.TargetBase, b.AnchorBase
	} else {
		b.Transmit, b.Receive = b.AnchorBase, b.TargetBase
	}
}

// Moving returns the address of the buffer inside the target region.
func (b *Buffers) Moving() uint64 {
	if b.Orientation == ReadTest {
		return b.Transmit
	}
	return b.Receive
}

// Advance moves the target region buffer forward by offset bytes.
func (b *Buffers) Advance(offset uint64) {
	if b.Orientation == ReadTest {
		b.Transmit += offset
	} else {
		b.Receive += offset
	}
}
