// Package ring implements the driver side of a scatter-gather DMA descriptor
// ring, modelled on the buffer descriptor rings of memory-to-memory DMA cores.
//
// Descriptors move through four groups in ring order: free, pre (allocated
// and being configured), hw (owned by the engine) and post (retired by the
// engine, waiting to be freed). Every group is a contiguous run of the ring,
// so a batch is fully described by its first descriptor and a count.
//
// [Sim] is a software engine over a [memory.Space] that honours the same
// protocol, including the error and reset behaviour of real hardware.
package ring
