//go:build !linux

package memory

func alloc(size uint64) ([]byte, error) {
	return make([]byte, size), nil
}

func free([]byte) error {
	return nil
}
