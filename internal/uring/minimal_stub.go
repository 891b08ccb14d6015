//go:build !linux

package uring

import (
	"sync"

	"golang.org/x/sys/unix"
)

// portableRing is the non-Linux fallback: plain synchronous os.File reads
// buffered behind the same Prepare/Submit/WaitCompletion shape, so a
// FileDevice built against Ring works identically off Linux, just without
// the batching io_uring provides.
type portableRing struct {
	mu      sync.Mutex
	pending []pendingRead
	done    []Completion
}

type pendingRead struct {
	fd       int
	buf      []byte
	offset   int64
	userData uint64
}

func newMinimalRing(cfg Config) (Ring, error) {
	return &portableRing{}, nil
}

func (r *portableRing) Prepare(fd int, buf []byte, offset int64, userData uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, pendingRead{fd: fd, buf: buf, offset: offset, userData: userData})
	return nil
}

func (r *portableRing) Submit() (uint32, error) {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, p := range batch {
		n, err := unix.Pread(p.fd, p.buf, p.offset)
		res := int32(n)
		if err != nil && n == 0 {
			res = -1
		}
		r.mu.Lock()
		r.done = append(r.done, Completion{UserData: p.userData, Res: res})
		r.mu.Unlock()
	}
	return uint32(len(batch)), nil
}

func (r *portableRing) WaitCompletion(timeoutMs int) ([]Completion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.done
	r.done = nil
	return out, nil
}

func (r *portableRing) Close() error {
	return nil
}

var _ Ring = (*portableRing)(nil)
