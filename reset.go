package sgdma

import (
	"fmt"

	"github.com/slackhq/sgdma/ring"
)

// recoverEngine requests a reset and checks for it to finish at most attempts
// times. It returns how many checks were used.
func recoverEngine(r ring.Service, attempts int) (int, error) {
	r.Reset()
	for i := 0; i < attempts; i++ {
		if r.IsResetDone() {
			return i + 1, nil
		}
	}
	return attempts, fmt.Errorf("%w after %d checks", ErrResetTimeout, attempts)
}
