//go:build linux && giouring

// Package uring, under the giouring build tag, backs Ring with a real
// kernel io_uring via github.com/pawelgaczynski/giouring instead of the
// raw-syscall minimalRing, for deployments that want the kernel's own
// batching and polling rather than ours.
package uring

import (
	"fmt"
	"sync"

	"github.com/pawelgaczynski/giouring"
)

type realRing struct {
	mu   sync.Mutex
	ring *giouring.Ring
}

// NewRealRing creates a Ring backed by a real kernel io_uring instance.
// Selected in place of NewRing's pure-Go minimalRing when built with
// "-tags giouring".
func NewRealRing(cfg Config) (Ring, error) {
	entries := cfg.Entries
	if entries == 0 {
		entries = 32
	}

	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("uring: giouring.CreateRing: %w", err)
	}
	return &realRing{ring: ring}, nil
}

func (r *realRing) Prepare(fd int, buf []byte, offset int64, userData uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sqe := r.ring.GetSQE()
	if sqe == nil {
		return ErrRingFull
	}
	sqe.PrepareRead(fd, buf, uint64(offset))
	sqe.UserData = userData
	return nil
}

func (r *realRing) Submit() (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.ring.Submit()
	if err != nil {
		return 0, fmt.Errorf("uring: giouring submit: %w", err)
	}
	return uint32(n), nil
}

func (r *realRing) WaitCompletion(timeoutMs int) ([]Completion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cqe, err := r.ring.WaitCQE()
	if err != nil {
		return nil, fmt.Errorf("uring: giouring WaitCQE: %w", err)
	}

	var out []Completion
	out = append(out, Completion{UserData: cqe.UserData, Res: cqe.Res})
	r.ring.CQESeen(cqe)

	for {
		next, err := r.ring.PeekCQE()
		if err != nil || next == nil {
			break
		}
		out = append(out, Completion{UserData: next.UserData, Res: next.Res})
		r.ring.CQESeen(next)
	}
	return out, nil
}

func (r *realRing) Close() error {
	r.ring.QueueExit()
	return nil
}

var _ Ring = (*realRing)(nil)
