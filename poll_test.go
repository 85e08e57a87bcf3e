package sgdma

import (
	"testing"
	"time"

	"github.com/slackhq/sgdma/memory"
	"github.com/slackhq/sgdma/ring"
	"github.com/slackhq/sgdma/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPollSim(t *testing.T, opts ring.Options) *ring.Sim {
	t.Helper()
	mem := memory.NewSpace()
	t.Cleanup(func() { mem.Close() })
	require.NoError(t, mem.Map("anchor", testAnchor, batchBytes))
	require.NoError(t, mem.Map("target", testTarget, batchBytes))

	sim := ring.NewSim(test.NewLogger(), mem, opts)
	require.NoError(t, sim.Create(DefaultRingSpaceBase, DefaultRingSpaceSize, DefaultRingAlignment))
	_, err := Submit(sim, testAnchor, testTarget, testBatch, testPkt)
	require.NoError(t, err)
	return sim
}

func TestPollOnce(t *testing.T) {
	sim := newPollSim(t, ring.Options{CompletePerPoll: 3})

	var st transferState
	for _, want := range []int{3, 6, 8, 8} {
		assert.Equal(t, want, pollOnce(sim, &st))
		assert.False(t, st.failed)
	}
}

func TestPollOnce_EngineErrorFirst(t *testing.T) {
	sim := newPollSim(t, ring.Options{CompletePerPoll: 64})
	sim.Inject(ring.Faults{EngineErrorAfter: 3})

	var st transferState
	assert.Equal(t, 2, pollOnce(sim, &st))
	assert.False(t, st.failed)

	// the two finished descriptors were already counted, the count stays put
	assert.Equal(t, 2, pollOnce(sim, &st))
	assert.True(t, st.failed)
	assert.Equal(t, ring.EngineDMAInternal, st.engineErr)
	assert.ErrorIs(t, st.err(), ErrEngine)
}

func TestPollOnce_StatusError(t *testing.T) {
	sim := newPollSim(t, ring.Options{CompletePerPoll: 64})
	sim.Inject(ring.Faults{StatusErrorAt: 2})

	var st transferState
	assert.Equal(t, 0, pollOnce(sim, &st))
	assert.True(t, st.failed)
	assert.Zero(t, st.engineErr)
	assert.Equal(t, 1, st.index)
	assert.EqualError(t, st.err(), "engine reported an error: descriptor 1 status 0x90000000")
}

func TestWaitForCompletion(t *testing.T) {
	sim := newPollSim(t, ring.Options{CompletePerPoll: 1})

	var st transferState
	require.NoError(t, waitForCompletion(sim, &st, testBatch, BoundedPoll{Attempts: 1}))
	assert.Equal(t, testBatch, st.done)
}

func TestPollStrategies(t *testing.T) {
	assert.True(t, SpinPoll{}.Continue(1<<20))

	b := BoundedPoll{Attempts: 3}
	assert.True(t, b.Continue(1))
	assert.True(t, b.Continue(2))
	assert.False(t, b.Continue(3))

	bo := BackoffPoll{Min: time.Nanosecond, Max: time.Microsecond}
	start := time.Now()
	for i := 1; i < 100; i++ {
		assert.True(t, bo.Continue(i))
	}
	// capped at Max, 100 sleeps are far from a second
	assert.Less(t, time.Since(start), time.Second)
}

func TestRecoverEngine(t *testing.T) {
	sim := newPollSim(t, ring.Options{ResetLatency: 3})

	checks, err := recoverEngine(sim, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, checks)

	checks, err = recoverEngine(sim, 3)
	assert.ErrorIs(t, err, ErrResetTimeout)
	assert.Equal(t, 3, checks)
}
