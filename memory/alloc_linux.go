//go:build linux

package memory

import (
	"golang.org/x/sys/unix"
)

// alloc maps anonymous memory. MAP_NORESERVE keeps untouched pages out of the
// commit charge so a full DDR window can be simulated.
func alloc(size uint64) ([]byte, error) {
	return unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
}

func free(b []byte) error {
	return unix.Munmap(b)
}
