// Package interfaces provides the external-collaborator contracts the
// concurrency core consumes. These are separate from the public package's
// re-exports to avoid import cycles between the root package and the
// internal layers that need them.
package interfaces

import "context"

// Heap is the allocator the resource pipeline draws memory from. Its
// implementation (an expanding heap, a GPU heap, ...) is out of scope; only
// this interface to the core is specified.
type Heap interface {
	// TryAllocate reserves size bytes aligned to align, returning nil on
	// exhaustion rather than an error (allocation failure is routed through
	// ResourceUnit.is_memory_allocation_failure, not a panic).
	TryAllocate(size int, align int) []byte
	Free(block []byte)
	// AdjustAllocation grows or shrinks an existing allocation in place,
	// returning the size actually granted.
	AdjustAllocation(block []byte, size int) int
	GetMaximumAllocatableSize(align int) int
	// AdjustHeap compacts free space, returning the new end address and the
	// bytes reclaimed. A second call in a row is a no-op.
	AdjustHeap() (endAddr uintptr, freed int)
	IsAddressAllocation(block []byte) bool
	IsGPUHeap() bool
	IsThreadSafe() bool
	GetTotalSize() int64
	ResizeHeapBack(size int64) error
}

// OpenMode selects how FileDevice.OpenFile opens a path.
type OpenMode int

const (
	OpenRead OpenMode = iota
	OpenWrite
	OpenReadWrite
)

// DirEntry is one entry returned while iterating an open directory handle.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// FileDevice is the storage collaborator the resource pipeline reads
// through. A default OS-backed implementation lives in internal/iodevice;
// this interface is what the core depends on, so tests can substitute a
// MockFileDevice (see testing.go) without touching the real filesystem.
type FileDevice interface {
	OpenFile(ctx context.Context, path string, mode OpenMode) (FileHandle, error)
	GetFileSize(path string) (int64, error)
	OpenDirectory(path string) (DirHandle, error)
	CheckDirectoryExists(path string) bool
}

// FileHandle is a single open file on a FileDevice.
type FileHandle interface {
	ReadFile(ctx context.Context, buf []byte, offset int64) (read int, err error)
	WriteFile(ctx context.Context, buf []byte, offset int64) (written int, err error)
	Close() error
}

// DirHandle iterates the members of an open directory.
type DirHandle interface {
	ReadDirectory() (DirEntry, bool, error)
	Close() error
}

// CompressionType selects the decompressor a resource load uses.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionAuto
	CompressionZstandard
)

// Decompressor expands a compressed resource file into a destination
// buffer sized by the caller (from a resource-size table or a compressed
// header). Out of scope beyond this interface, per spec.md §1.
type Decompressor interface {
	Decompress(ctx context.Context, src FileHandle, dst []byte, heap Heap) (int, error)
}

// Logger is the narrow logging surface every layer depends on, so call
// sites never depend on the concrete *logging.Logger type.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer is the metrics collection surface. Implementations must be
// thread-safe: methods are invoked from dispatcher/worker hot paths.
type Observer interface {
	ObserveJobDispatch(priority uint16, waitNs uint64)
	ObserveJobComplete(core uint16, runNs uint64)
	ObserveMultiRunFanout(count uint64)
	ObserveResourceLoad(bytes uint64, latencyNs uint64, success bool)
	ObserveResourceUnload(cacheRetained bool)
	ObserveQueueDepth(queueName string, depth uint32)
}
