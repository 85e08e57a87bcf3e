package sgdma

import (
	"fmt"
	"time"

	"github.com/slackhq/sgdma/ring"
)

// transferState carries the outcome of one batch between polls.
type transferState struct {
	done   int
	failed bool

	engineErr ring.EngineError
	// status and index describe the first finished descriptor that carried
	// an error status.
	status ring.Status
	index  int
	// cause is set when the finished descriptors could not be freed.
	cause error
}

func (st *transferState) err() error {
	switch {
	case st.engineErr != 0:
		return fmt.Errorf("%w: engine error %v", ErrEngine, st.engineErr)
	case st.cause != nil:
		return fmt.Errorf("%w: free finished descriptors: %w", ErrEngine, st.cause)
	default:
		return fmt.Errorf("%w: descriptor %d status 0x%08x", ErrEngine, st.index, uint32(st.status))
	}
}

// pollOnce checks the engine once and returns the running count of completed
// descriptors. The engine error word is looked at before any descriptor. On
// failure st is marked failed and the count is left unchanged.
func pollOnce(r ring.Service, st *transferState) int {
	if e := r.EngineError(); e != 0 {
		st.failed = true
		st.engineErr = e
		return st.done
	}

	b := r.PollFinished()
	if b.Empty() {
		return st.done
	}

	d := b.First
	for i := 0; i < b.Count; i++ {
		if s := d.Status(); s.Err() {
			st.failed = true
			st.status = s
			st.index = d.Index()
			return st.done
		}
		d = r.Next(d)
	}

	if err := r.Free(b); err != nil {
		st.failed = true
		st.cause = err
		return st.done
	}

	st.done += b.Count
	return st.done
}

// PollStrategy decides whether to keep waiting for a batch. Continue is called
// after every poll that completed nothing, with the number of such polls in a
// row, and may block.
type PollStrategy interface {
	Continue(idle int) bool
}

// SpinPoll never gives up.
type SpinPoll struct{}

func (SpinPoll) Continue(int) bool { return true }

// BackoffPoll sleeps between idle polls, doubling from Min up to Max.
type BackoffPoll struct {
	Min time.Duration
	Max time.Duration
}

func (b BackoffPoll) Continue(idle int) bool {
	d := b.Min << min(idle-1, 30)
	if d <= 0 || d > b.Max {
		d = b.Max
	}
	time.Sleep(d)
	return true
}

// BoundedPoll gives up after Attempts idle polls in a row.
type BoundedPoll struct {
	Attempts int
}

func (b BoundedPoll) Continue(idle int) bool {
	return idle < b.Attempts
}

// waitForCompletion polls until want descriptors completed, the engine
// reports an error, or the strategy gives up.
func waitForCompletion(r ring.Service, st *transferState, want int, strategy PollStrategy) error {
	idle := 0
	for {
		before := st.done
		pollOnce(r, st)
		if st.failed {
			return st.err()
		}
		if st.done >= want {
			return nil
		}
		if st.done > before {
			idle = 0
			continue
		}

		idle++
		if !strategy.Continue(idle) {
			return fmt.Errorf("%w after %d idle polls, %d/%d descriptors done", ErrPollExhausted, idle, st.done, want)
		}
	}
}
