package memory

import (
	"fmt"
	"sync"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

// Coherency is the cache maintenance the CPU performs around a DMA transfer.
type Coherency interface {
	// FlushRange writes back any dirty cache lines covering the range.
	FlushRange(addr, n uint64)
	// InvalidateRange drops any cache lines covering the range.
	InvalidateRange(addr, n uint64)
}

type OpKind int

const (
	OpFlush OpKind = iota
	OpInvalidate
)

func (k OpKind) String() string {
	if k == OpFlush {
		return "flush"
	}
	return "invalidate"
}

// Op is one recorded cache maintenance operation.
type Op struct {
	Kind OpKind
	Addr uint64
	Len  uint64
}

func (o Op) String() string {
	return fmt.Sprintf("%s 0x%x+0x%x", o.Kind, o.Addr, o.Len)
}

const trackerHistory = 16

// Tracker is the Coherency implementation for the simulated space, where the
// engine and the CPU already share one view of memory. It counts and remembers
// the operations so their ordering around a transfer can be checked.
type Tracker struct {
	l           *logrus.Logger
	flushes     metrics.Counter
	invalidates metrics.Counter

	mu  sync.Mutex
	ops []Op
}

func NewTracker(l *logrus.Logger) *Tracker {
	return &Tracker{
		l:           l,
		flushes:     metrics.GetOrRegisterCounter("coherency.flush", nil),
		invalidates: metrics.GetOrRegisterCounter("coherency.invalidate", nil),
	}
}

func (t *Tracker) FlushRange(addr, n uint64) {
	t.flushes.Inc(1)
	t.record(Op{Kind: OpFlush, Addr: addr, Len: n})
}

func (t *Tracker) InvalidateRange(addr, n uint64) {
	t.invalidates.Inc(1)
	t.record(Op{Kind: OpInvalidate, Addr: addr, Len: n})
}

func (t *Tracker) record(op Op) {
	if t.l.IsLevelEnabled(logrus.TraceLevel) {
		t.l.WithField("op", op).Trace("Cache maintenance")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ops) == trackerHistory {
		copy(t.ops, t.ops[1:])
		t.ops = t.ops[:trackerHistory-1]
	}
	t.ops = append(t.ops, op)
}

// Ops returns the most recent operations, oldest first.
func (t *Tracker) Ops() []Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Op, len(t.ops))
	copy(out, t.ops)
	return out
}

// Reset forgets the recorded operations.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.ops = t.ops[:0]
	t.mu.Unlock()
}
