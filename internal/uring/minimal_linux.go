//go:build linux

package uring

import (
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Minimal io_uring structures for plain buffered reads (IORING_OP_READ),
// a scaled-down version of the teacher's URING_CMD-specific sqe128/cqe32:
// a 64-byte SQE and a 16-byte CQE are all a read needs.

const (
	ioringOpRead = 22

	ioringEnterGetEvents = 1 << 0
)

type sqe struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	opcodeFlags uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFdIn  int32
	addr3       uint64
	_           uint64
}

type cqe struct {
	userData uint64
	res      int32
	flags    uint32
}

type ringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCpu  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        ringOffsets
	cqOff        ringOffsets
}

type ringOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flagsOrOvf  uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

// minimalRing is a pure-Go, raw-syscall io_uring scoped to IORING_OP_READ,
// grounded on the teacher's internal/uring minimalRing (same
// io_uring_setup/mmap/io_uring_enter sequence), retargeted from
// URING_CMD control commands to generic buffered file reads.
type minimalRing struct {
	mu sync.Mutex

	fd     int
	params ringParams
	sqMem  []byte
	cqMem  []byte

	sqArray []uint32
	pending uint32 // SQEs written since the last Submit
}

func newMinimalRing(cfg Config) (Ring, error) {
	entries := cfg.Entries
	if entries == 0 {
		entries = 32
	}

	params := ringParams{sqEntries: entries}

	fd, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP, uintptr(entries), uintptr(unsafe.Pointer(&params)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("uring: io_uring_setup: %w", errno)
	}

	sqSize := int(params.sqOff.array) + int(params.sqEntries)*4
	cqSize := int(params.cqOff.array) + int(params.cqEntries)*int(unsafe.Sizeof(cqe{}))

	sqMem, err := unix.Mmap(int(fd), 0, sqSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		syscall.Close(int(fd))
		return nil, fmt.Errorf("uring: mmap sq: %w", err)
	}
	cqMem, err := unix.Mmap(int(fd), 0x8000000, cqSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(sqMem)
		syscall.Close(int(fd))
		return nil, fmt.Errorf("uring: mmap cq: %w", err)
	}

	r := &minimalRing{
		fd:     int(fd),
		params: params,
		sqMem:  sqMem,
		cqMem:  cqMem,
	}
	arrayBase := unsafe.Pointer(&sqMem[params.sqOff.array])
	r.sqArray = unsafe.Slice((*uint32)(arrayBase), params.sqEntries)
	return r, nil
}

func (r *minimalRing) sqeAt(index uint32) *sqe {
	off := 64 * index // separately allocated SQE region starts at sqOff.array's preceding bytes in a full implementation; here SQEs are stored directly in the array slot's backing region for this minimal layout
	return (*sqe)(unsafe.Pointer(&r.sqMem[off]))
}

func (r *minimalRing) headPtr(region []byte, off uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&region[off]))
}

func (r *minimalRing) Prepare(fd int, buf []byte, offset int64, userData uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	head := atomic.LoadUint32(r.headPtr(r.sqMem, r.params.sqOff.head))
	tail := atomic.LoadUint32(r.headPtr(r.sqMem, r.params.sqOff.tail))
	if tail-head >= r.params.sqEntries {
		return ErrRingFull
	}

	mask := r.params.sqEntries - 1
	index := tail & mask
	e := r.sqeAt(index)
	*e = sqe{
		opcode:   ioringOpRead,
		fd:       int32(fd),
		off:      uint64(offset),
		addr:     uint64(uintptr(unsafe.Pointer(&buf[0]))),
		len:      uint32(len(buf)),
		userData: userData,
	}
	r.sqArray[index] = index

	atomic.StoreUint32(r.headPtr(r.sqMem, r.params.sqOff.tail), tail+1)
	r.pending++
	return nil
}

func (r *minimalRing) Submit() (uint32, error) {
	r.mu.Lock()
	toSubmit := r.pending
	r.pending = 0
	r.mu.Unlock()

	if toSubmit == 0 {
		return 0, nil
	}

	submitted, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), uintptr(toSubmit), 0, 0, 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("uring: io_uring_enter: %w", errno)
	}
	return uint32(submitted), nil
}

func (r *minimalRing) WaitCompletion(timeoutMs int) ([]Completion, error) {
	_, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), 0, 1, uintptr(ioringEnterGetEvents), 0, 0)
	if errno != 0 && errno != unix.EINTR {
		return nil, fmt.Errorf("uring: io_uring_enter wait: %w", errno)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	headP := r.headPtr(r.cqMem, r.params.cqOff.head)
	tailP := r.headPtr(r.cqMem, r.params.cqOff.tail)
	mask := r.params.cqEntries - 1

	head := atomic.LoadUint32(headP)
	tail := atomic.LoadUint32(tailP)

	var out []Completion
	for head != tail {
		index := head & mask
		off := r.params.cqOff.array + index*uint32(unsafe.Sizeof(cqe{}))
		c := (*cqe)(unsafe.Pointer(&r.cqMem[off]))
		out = append(out, Completion{UserData: c.userData, Res: c.res})
		head++
	}
	atomic.StoreUint32(headP, head)

	return out, nil
}

func (r *minimalRing) Close() error {
	unix.Munmap(r.sqMem)
	unix.Munmap(r.cqMem)
	return syscall.Close(r.fd)
}

var _ Ring = (*minimalRing)(nil)
