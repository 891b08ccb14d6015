// Package uring provides the async-read backend for internal/iodevice:
// a small Ring interface that submits buffered reads against an open
// file descriptor and collects their completions, with a pure-Go
// default implementation and an optional io_uring-backed one selected
// by the "giouring" build tag.
package uring

import "errors"

// ErrRingFull is returned when Prepare is called on a ring with no free
// submission-queue slots.
var ErrRingFull = errors.New("uring: submission queue full")

// Ring batches buffered reads against fd and reports their completions.
// A single Ring is not safe for concurrent use by multiple goroutines;
// iodevice.OSFileDevice serializes every read through its Ring under a
// lock.
type Ring interface {
	// Prepare stages a read of len(buf) bytes from fd at offset, tagging
	// it with userData so the matching Completion can be correlated by
	// the caller. It does not submit to the kernel.
	Prepare(fd int, buf []byte, offset int64, userData uint64) error

	// Submit flushes every prepared read with a single syscall, returning
	// the number of reads submitted.
	Submit() (uint32, error)

	// WaitCompletion returns every completion currently available. The
	// minimal and giouring rings block until there is at least one; the
	// portable ring finishes its reads inside Submit and never blocks, so
	// it may return none. No implementation uses timeoutMs.
	WaitCompletion(timeoutMs int) ([]Completion, error)

	// Close releases the ring's kernel and mapped-memory resources.
	Close() error
}

// Completion is one finished read: Res is the byte count read, or a
// negative errno on failure, mirroring io_uring's CQE.res convention.
type Completion struct {
	UserData uint64
	Res      int32
}

// Config configures a Ring's submission queue sizing.
type Config struct {
	// Entries is the submission queue depth; the completion queue is
	// sized at 2x this by convention.
	Entries uint32
}

// NewRing creates the default (non-giouring-tagged) Ring for the host
// platform: the pure-Go minimal ring on Linux, or a portable
// synchronous fallback elsewhere. NewRealRing (built only with
// "-tags giouring") is used instead when the caller wants the batched
// io_uring path.
func NewRing(cfg Config) (Ring, error) {
	return newMinimalRing(cfg)
}
