package sgdma

import (
	"errors"
	"testing"

	"github.com/slackhq/sgdma/memory"
	"github.com/slackhq/sgdma/pattern"
	"github.com/slackhq/sgdma/ring"
	"github.com/slackhq/sgdma/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const (
	testAnchor = 0x01000000
	testTarget = 0x40000000
	testPkt    = 256
	testBatch  = 8
	batchBytes = testPkt * testBatch
)

type testEngine struct {
	*Engine
	sim     *ring.Sim
	mem     *memory.Space
	tracker *memory.Tracker
}

func testOptions() Options {
	o := DefaultOptions()
	o.PacketLength = testPkt
	o.BatchSize = testBatch
	o.TargetSize = 4 * batchBytes
	return o
}

// newTestEngine maps an anchor of one batch and a target of opts.TargetSize
// plus a little slack past the last whole batch.
func newTestEngine(t *testing.T, o Orientation, opts Options, simOpts ring.Options) *testEngine {
	t.Helper()
	l := test.NewLogger()

	mem := memory.NewSpace()
	t.Cleanup(func() { mem.Close() })
	require.NoError(t, mem.Map("anchor", testAnchor, batchBytes))
	require.NoError(t, mem.Map("target", testTarget, opts.TargetSize+64))

	sim := ring.NewSim(l, mem, simOpts)
	tracker := memory.NewTracker(l)
	e, err := NewEngine(l, sim, mem, tracker, NewBuffers(o, testAnchor, testTarget), opts)
	require.NoError(t, err)

	return &testEngine{Engine: e, sim: sim, mem: mem, tracker: tracker}
}

func (te *testEngine) slice(t *testing.T, addr uint64) []byte {
	t.Helper()
	b, err := te.mem.Slice(addr, batchBytes)
	require.NoError(t, err)
	return b
}

func TestEngine_RunTransfer(t *testing.T) {
	te := newTestEngine(t, WriteTest, testOptions(), ring.DefaultOptions)

	require.NoError(t, te.RunTransfer(testAnchor, testTarget, nil))

	dst := te.slice(t, testTarget)
	for i, b := range dst {
		if !assert.Equal(t, byte(i), b, "byte %d", i) {
			break
		}
	}

	assert.Equal(t, []memory.Op{
		{Kind: memory.OpFlush, Addr: testAnchor, Len: batchBytes},
		{Kind: memory.OpInvalidate, Addr: testTarget, Len: batchBytes},
	}, te.tracker.Ops())
}

func TestEngine_RunTransfer_HardwareCoherent(t *testing.T) {
	opts := testOptions()
	opts.HardwareCoherent = true
	te := newTestEngine(t, WriteTest, opts, ring.DefaultOptions)

	require.NoError(t, te.RunTransfer(testAnchor, testTarget, nil))
	assert.Equal(t, []memory.Op{
		{Kind: memory.OpFlush, Addr: testAnchor, Len: batchBytes},
		{Kind: memory.OpFlush, Addr: testTarget, Len: batchBytes},
	}, te.tracker.Ops())
}

func TestEngine_RunTransfer_Pattern(t *testing.T) {
	te := newTestEngine(t, WriteTest, testOptions(), ring.DefaultOptions)
	inverted := pattern.InvertedTables()

	for _, mode := range []int{0, 3, 10, 14} {
		plan, err := pattern.PlanFor(mode, &inverted)
		require.NoError(t, err)
		require.NoError(t, te.RunTransfer(testAnchor, testTarget, &plan), "mode %d", mode)

		want := make([]byte, batchBytes)
		pattern.Fill(want, testAnchor, plan)
		assert.Equal(t, want, te.slice(t, testTarget), "mode %d", mode)
	}
}

func TestEngine_EngineErrorRecovery(t *testing.T) {
	te := newTestEngine(t, WriteTest, testOptions(), ring.DefaultOptions)

	te.sim.Inject(ring.Faults{EngineErrorAfter: 3})
	err := te.RunTransfer(testAnchor, testTarget, nil)
	assert.ErrorIs(t, err, ErrEngine)
	assert.NotErrorIs(t, err, ErrResetTimeout)
	assert.ErrorContains(t, err, "dma-internal")
	assert.Zero(t, te.sim.EngineError())

	// the ring is recreated and the next transfer is unaffected
	assert.NoError(t, te.RunTransfer(testAnchor, testTarget, nil))
}

func TestEngine_ResetTimeout(t *testing.T) {
	te := newTestEngine(t, WriteTest, testOptions(), ring.DefaultOptions)

	te.sim.Inject(ring.Faults{EngineErrorAfter: 1, ResetNeverDone: true})
	err := te.RunTransfer(testAnchor, testTarget, nil)
	assert.ErrorIs(t, err, ErrEngine)
	assert.ErrorIs(t, err, ErrResetTimeout)
	assert.ErrorContains(t, err, "after 10 checks")

	// an engine stuck in reset refuses a new ring
	err = te.RunTransfer(testAnchor, testTarget, nil)
	assert.ErrorIs(t, err, ErrRingSetup)
	assert.ErrorIs(t, err, ring.ErrEngineBusy)
}

func TestEngine_DescriptorStatusError(t *testing.T) {
	te := newTestEngine(t, WriteTest, testOptions(), ring.DefaultOptions)

	te.sim.Inject(ring.Faults{StatusErrorAt: 4})
	err := te.RunTransfer(testAnchor, testTarget, nil)
	assert.ErrorIs(t, err, ErrEngine)
	assert.ErrorContains(t, err, "descriptor 3 status 0x90000000")

	assert.NoError(t, te.RunTransfer(testAnchor, testTarget, nil))
}

func TestEngine_DataMismatch(t *testing.T) {
	te := newTestEngine(t, WriteTest, testOptions(), ring.DefaultOptions)

	te.sim.Inject(ring.Faults{CorruptAt: 3})
	err := te.RunTransfer(testAnchor, testTarget, nil)

	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 2*testPkt, me.Index)
	assert.Equal(t, uint64(testTarget+2*testPkt), me.Address)
	assert.Equal(t, byte(0x00), me.Want)
	assert.Equal(t, byte(0xFF), me.Got)
	assert.NotErrorIs(t, err, ErrEngine)
}

func TestEngine_SubmitFailure(t *testing.T) {
	te := newTestEngine(t, WriteTest, testOptions(), ring.DefaultOptions)

	te.sim.Inject(ring.Faults{FailSubmit: true})
	err := te.RunTransfer(testAnchor, testTarget, nil)
	assert.ErrorIs(t, err, ErrSubmitFailed)
	assert.ErrorIs(t, err, ring.ErrSubmitRejected)

	assert.NoError(t, te.RunTransfer(testAnchor, testTarget, nil))
}

func TestEngine_FreeFailure(t *testing.T) {
	te := newTestEngine(t, WriteTest, testOptions(), ring.DefaultOptions)

	te.sim.Inject(ring.Faults{FailFree: true})
	err := te.RunTransfer(testAnchor, testTarget, nil)
	assert.ErrorIs(t, err, ErrEngine)
	assert.ErrorIs(t, err, ring.ErrFreeRejected)

	assert.NoError(t, te.RunTransfer(testAnchor, testTarget, nil))
}

func TestEngine_DescriptorConfigFailure(t *testing.T) {
	te := newTestEngine(t, WriteTest, testOptions(), ring.DefaultOptions)

	// the simulated engine has no realignment, dst must be 8 byte aligned
	err := te.RunTransfer(testAnchor, testTarget+4, nil)
	assert.ErrorIs(t, err, ErrDescriptorConfig)
	assert.ErrorIs(t, err, ring.ErrDescriptorConstraint)
	assert.ErrorContains(t, err, "descriptor 0")

	assert.NoError(t, te.RunTransfer(testAnchor, testTarget, nil))
}

func TestEngine_UnmappedSource(t *testing.T) {
	te := newTestEngine(t, WriteTest, testOptions(), ring.DefaultOptions)
	assert.ErrorIs(t, te.RunTransfer(0x10, testTarget, nil), memory.ErrUnmapped)
}

// stalledRing accepts batches but never finishes any of them.
type stalledRing struct {
	ring.Service
}

func (stalledRing) PollFinished() ring.Batch { return ring.Batch{} }

func TestEngine_PollExhausted(t *testing.T) {
	l := test.NewLogger()
	mem := memory.NewSpace()
	t.Cleanup(func() { mem.Close() })
	require.NoError(t, mem.Map("anchor", testAnchor, batchBytes))
	require.NoError(t, mem.Map("target", testTarget, batchBytes))

	sim := ring.NewSim(l, mem, ring.DefaultOptions)
	opts := testOptions()
	opts.Poll = BoundedPoll{Attempts: 5}
	e, err := NewEngine(l, stalledRing{sim}, mem, memory.NewTracker(l), NewBuffers(WriteTest, testAnchor, testTarget), opts)
	require.NoError(t, err)

	err = e.RunTransfer(testAnchor, testTarget, nil)
	assert.ErrorIs(t, err, ErrPollExhausted)
	assert.ErrorContains(t, err, "after 5 idle polls, 0/8 descriptors done")

	// recovery took the stuck descriptors back so the ring can be rebuilt
	assert.NoError(t, sim.Create(opts.RingSpaceBase, opts.RingSpaceSize, opts.RingAlignment))
}

func TestEngine_ConcurrentCallers(t *testing.T) {
	te := newTestEngine(t, WriteTest, testOptions(), ring.DefaultOptions)

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		dst := uint64(testTarget + i*batchBytes)
		g.Go(func() error {
			for j := 0; j < 5; j++ {
				if err := te.RunTransfer(testAnchor, dst, nil); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < 4; i++ {
		assert.Equal(t, te.slice(t, testAnchor), te.slice(t, uint64(testTarget+i*batchBytes)))
	}
}

func TestNewEngine_Options(t *testing.T) {
	l := test.NewLogger()
	mem := memory.NewSpace()
	sim := ring.NewSim(l, mem, ring.DefaultOptions)
	b := NewBuffers(WriteTest, testAnchor, testTarget)

	for name, mutate := range map[string]func(*Options){
		"packet length": func(o *Options) { o.PacketLength = 0 },
		"too long":      func(o *Options) { o.PacketLength = ring.MaxLength + 1 },
		"batch size":    func(o *Options) { o.BatchSize = -1 },
		"reset":         func(o *Options) { o.ResetAttempts = 0 },
		"alignment":     func(o *Options) { o.RingAlignment = 48 },
		"ring space":    func(o *Options) { o.RingSpaceSize = 64 * 4 },
	} {
		o := testOptions()
		mutate(&o)
		_, err := NewEngine(l, sim, mem, memory.NewTracker(l), b, o)
		assert.Error(t, err, name)
	}

	o := testOptions()
	o.Poll = nil
	e, err := NewEngine(l, sim, mem, memory.NewTracker(l), b, o)
	require.NoError(t, err)
	assert.Equal(t, SpinPoll{}, e.Options().Poll)
	assert.Same(t, b, e.Buffers())
}

func TestErrors(t *testing.T) {
	me := &MismatchError{Index: 3, Address: 0x40000003, Want: 0x03, Got: 0xfc}
	assert.Equal(t, "data check failure at 3 (0x40000003): want 0x03, got 0xfc", me.Error())

	se := &SweepError{Sweep: "range", Index: 2, Total: 256, Err: me}
	assert.Equal(t, "range sweep failed at 2/256: "+me.Error(), se.Error())
	var got *MismatchError
	assert.True(t, errors.As(se, &got))
	assert.Same(t, me, got)
}
