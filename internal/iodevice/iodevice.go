// Package iodevice implements the default OS-backed FileDevice used when
// a caller doesn't substitute a test double or an archive-backed one.
// Resource loads route through interfaces.FileDevice, not this package
// directly, so production code and tests (internal/resource's
// memFileDevice) are interchangeable.
package iodevice

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/vanerun/ukern/internal/interfaces"
	"github.com/vanerun/ukern/internal/uring"
)

// OSFileDevice satisfies interfaces.FileDevice by delegating straight to
// the host filesystem. root, when non-empty, is joined in front of every
// path it's asked to open (mirroring a mounted asset directory); left
// empty, paths are used as given.
//
// When ring is set, reads are routed through it instead of ReadAt. Each
// read is prepared, submitted and waited for under ringMu, so at most
// one ring read is in flight per device; reads are not batched.
type OSFileDevice struct {
	root string

	ring         uring.Ring
	ringMu       sync.Mutex
	nextUserData atomic.Uint64
}

// New creates an OSFileDevice rooted at root ("" for the working
// directory as-is), reading via plain ReadAt.
func New(root string) *OSFileDevice {
	return &OSFileDevice{root: root}
}

// NewWithRing creates an OSFileDevice that routes reads through ring
// rather than ReadAt. The caller owns ring's lifetime and must Close it
// after the device is no longer in use.
func NewWithRing(root string, ring uring.Ring) *OSFileDevice {
	return &OSFileDevice{root: root, ring: ring}
}

func (d *OSFileDevice) resolve(path string) string {
	if d.root == "" {
		return path
	}
	return d.root + string(os.PathSeparator) + path
}

func modeFlags(mode interfaces.OpenMode) int {
	switch mode {
	case interfaces.OpenWrite:
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case interfaces.OpenReadWrite:
		return os.O_RDWR
	default:
		return os.O_RDONLY
	}
}

// OpenFile opens path under mode. ctx is accepted to satisfy FileDevice's
// surface and for parity with the I/O-device interface the resource
// pipeline depends on; plain os file opens aren't cancellable mid-syscall.
func (d *OSFileDevice) OpenFile(ctx context.Context, path string, mode interfaces.OpenMode) (interfaces.FileHandle, error) {
	f, err := os.OpenFile(d.resolve(path), modeFlags(mode), 0o644)
	if err != nil {
		return nil, err
	}
	return &osFileHandle{f: f, dev: d}, nil
}

// readViaRing serializes fd's read through d.ring: a single Ring isn't
// safe for concurrent submission, so every OSFileDevice's reads funnel
// through this one lock regardless of how many osFileHandles share it.
func (d *OSFileDevice) readViaRing(fd int, buf []byte, offset int64) (int, error) {
	d.ringMu.Lock()
	defer d.ringMu.Unlock()

	userData := d.nextUserData.Add(1)
	if err := d.ring.Prepare(fd, buf, offset, userData); err != nil {
		return 0, err
	}
	if _, err := d.ring.Submit(); err != nil {
		return 0, err
	}
	for {
		completions, err := d.ring.WaitCompletion(0)
		if err != nil {
			return 0, err
		}
		for _, c := range completions {
			if c.UserData != userData {
				continue
			}
			if c.Res < 0 {
				return 0, fmt.Errorf("iodevice: ring read failed: res=%d", c.Res)
			}
			return int(c.Res), nil
		}
	}
}

// GetFileSize stats path without opening it.
func (d *OSFileDevice) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(d.resolve(path))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// OpenDirectory opens path for directory iteration.
func (d *OSFileDevice) OpenDirectory(path string) (interfaces.DirHandle, error) {
	f, err := os.Open(d.resolve(path))
	if err != nil {
		return nil, err
	}
	return &osDirHandle{f: f}, nil
}

// CheckDirectoryExists reports whether path exists and is a directory.
func (d *OSFileDevice) CheckDirectoryExists(path string) bool {
	info, err := os.Stat(d.resolve(path))
	return err == nil && info.IsDir()
}

type osFileHandle struct {
	f   *os.File
	dev *OSFileDevice
}

func (h *osFileHandle) ReadFile(ctx context.Context, buf []byte, offset int64) (int, error) {
	if h.dev == nil || h.dev.ring == nil {
		return h.f.ReadAt(buf, offset)
	}
	return h.dev.readViaRing(int(h.f.Fd()), buf, offset)
}

func (h *osFileHandle) WriteFile(ctx context.Context, buf []byte, offset int64) (int, error) {
	return h.f.WriteAt(buf, offset)
}

func (h *osFileHandle) Close() error { return h.f.Close() }

type osDirHandle struct {
	f       *os.File
	entries []os.DirEntry
	pos     int
	read    bool
}

func (h *osDirHandle) ReadDirectory() (interfaces.DirEntry, bool, error) {
	if !h.read {
		entries, err := h.f.ReadDir(-1)
		if err != nil {
			return interfaces.DirEntry{}, false, err
		}
		h.entries = entries
		h.read = true
	}
	if h.pos >= len(h.entries) {
		return interfaces.DirEntry{}, false, nil
	}
	e := h.entries[h.pos]
	h.pos++

	var size int64
	if info, err := e.Info(); err == nil {
		size = info.Size()
	}
	return interfaces.DirEntry{Name: e.Name(), IsDir: e.IsDir(), Size: size}, true, nil
}

func (h *osDirHandle) Close() error { return h.f.Close() }

var (
	_ interfaces.FileDevice = (*OSFileDevice)(nil)
	_ interfaces.FileHandle = (*osFileHandle)(nil)
	_ interfaces.DirHandle  = (*osDirHandle)(nil)
)
