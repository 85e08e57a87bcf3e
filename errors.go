package sgdma

import (
	"errors"
	"fmt"
)

var (
	ErrRingSetup        = errors.New("descriptor ring setup failed")
	ErrAllocationFailed = errors.New("descriptor allocation failed")
	ErrDescriptorConfig = errors.New("descriptor configuration failed")
	ErrSubmitFailed     = errors.New("batch submission failed")
	ErrEngine           = errors.New("engine reported an error")
	ErrResetTimeout     = errors.New("engine reset did not complete")
	ErrPollExhausted    = errors.New("completion polling gave up")
)

// MismatchError is the first byte where the destination differs from the
// source after a transfer.
type MismatchError struct {
	// Index is the byte offset within the transfer.
	Index int
	// Address is the destination address of the byte.
	Address uint64
	Want    byte
	Got     byte
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("data check failure at %d (0x%x): want 0x%02x, got 0x%02x", e.Index, e.Address, e.Want, e.Got)
}

// SweepError reports the iteration, or pattern mode, a sweep stopped at.
type SweepError struct {
	Sweep string
	Index int
	Total int
	Err   error
}

func (e *SweepError) Error() string {
	return fmt.Sprintf("%s sweep failed at %d/%d: %v", e.Sweep, e.Index, e.Total, e.Err)
}

func (e *SweepError) Unwrap() error {
	return e.Err
}
