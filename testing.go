package ukern

import (
	"context"
	"sync"

	"github.com/vanerun/ukern/internal/interfaces"
)

// MockHeap provides an in-memory implementation of interfaces.Heap for
// tests that need to observe allocation patterns without a real backing
// allocator.
type MockHeap struct {
	mu           sync.Mutex
	totalSize    int64
	allocated    int64
	failNext     bool
	allocCalls   int
	freeCalls    int
	threadSafe   bool
	gpu          bool
}

// NewMockHeap creates a mock heap of the given total size.
func NewMockHeap(totalSize int64) *MockHeap {
	return &MockHeap{totalSize: totalSize, threadSafe: true}
}

func (m *MockHeap) TryAllocate(size int, align int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allocCalls++
	if m.failNext {
		m.failNext = false
		return nil
	}
	if m.allocated+int64(size) > m.totalSize {
		return nil
	}
	m.allocated += int64(size)
	return make([]byte, size)
}

func (m *MockHeap) Free(block []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.freeCalls++
	m.allocated -= int64(len(block))
	if m.allocated < 0 {
		m.allocated = 0
	}
}

func (m *MockHeap) AdjustAllocation(block []byte, size int) int {
	return len(block)
}

func (m *MockHeap) GetMaximumAllocatableSize(align int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int(m.totalSize - m.allocated)
}

func (m *MockHeap) AdjustHeap() (uintptr, int) {
	return 0, 0
}

func (m *MockHeap) IsAddressAllocation(block []byte) bool { return false }
func (m *MockHeap) IsGPUHeap() bool                       { return m.gpu }
func (m *MockHeap) IsThreadSafe() bool                    { return m.threadSafe }
func (m *MockHeap) GetTotalSize() int64                   { return m.totalSize }

func (m *MockHeap) ResizeHeapBack(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalSize = size
	return nil
}

// FailNextAllocation makes the next TryAllocate call return nil, to exercise
// allocation-failure codepaths (is_memory_allocation_failure).
func (m *MockHeap) FailNextAllocation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
}

// CallCounts returns allocation/free call counts for assertions.
func (m *MockHeap) CallCounts() (allocCalls, freeCalls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocCalls, m.freeCalls
}

// MockFileDevice is an in-memory FileDevice backed by a map of path to
// file content, for resource-pipeline tests that must not touch a real
// filesystem.
type MockFileDevice struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string][]string

	openCalls int
}

// NewMockFileDevice creates an empty mock file device.
func NewMockFileDevice() *MockFileDevice {
	return &MockFileDevice{
		files: make(map[string][]byte),
		dirs:  make(map[string][]string),
	}
}

// PutFile seeds content at path, as if it had already been written.
func (m *MockFileDevice) PutFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
}

// PutDirectory seeds a directory listing.
func (m *MockFileDevice) PutDirectory(path string, entries []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path] = entries
}

func (m *MockFileDevice) OpenFile(ctx context.Context, path string, mode interfaces.OpenMode) (interfaces.FileHandle, error) {
	m.mu.Lock()
	m.openCalls++
	m.mu.Unlock()

	m.mu.RLock()
	content, ok := m.files[path]
	m.mu.RUnlock()

	if !ok {
		if mode == interfaces.OpenRead {
			return nil, NewError("OpenFile", CodeFileNotFound, path)
		}
		content = nil
	}
	return &mockFileHandle{device: m, path: path, content: content}, nil
}

func (m *MockFileDevice) GetFileSize(path string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[path]
	if !ok {
		return 0, NewError("GetFileSize", CodeFileNotFound, path)
	}
	return int64(len(content)), nil
}

func (m *MockFileDevice) OpenDirectory(path string) (interfaces.DirHandle, error) {
	m.mu.RLock()
	entries, ok := m.dirs[path]
	m.mu.RUnlock()
	if !ok {
		return nil, NewError("OpenDirectory", CodeDirectoryNotFound, path)
	}
	return &mockDirHandle{entries: entries}, nil
}

func (m *MockFileDevice) CheckDirectoryExists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.dirs[path]
	return ok
}

// OpenCalls returns the number of times OpenFile has been invoked.
func (m *MockFileDevice) OpenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls
}

type mockFileHandle struct {
	device  *MockFileDevice
	path    string
	content []byte
	closed  bool
}

func (h *mockFileHandle) ReadFile(ctx context.Context, buf []byte, offset int64) (int, error) {
	if h.closed {
		return 0, NewError("ReadFile", CodeInvalidFileHandle, h.path)
	}
	if offset >= int64(len(h.content)) {
		return 0, nil
	}
	n := copy(buf, h.content[offset:])
	return n, nil
}

func (h *mockFileHandle) WriteFile(ctx context.Context, buf []byte, offset int64) (int, error) {
	if h.closed {
		return 0, NewError("WriteFile", CodeInvalidFileHandle, h.path)
	}
	end := offset + int64(len(buf))
	if end > int64(len(h.content)) {
		grown := make([]byte, end)
		copy(grown, h.content)
		h.content = grown
	}
	n := copy(h.content[offset:end], buf)

	h.device.mu.Lock()
	h.device.files[h.path] = h.content
	h.device.mu.Unlock()

	return n, nil
}

func (h *mockFileHandle) Close() error {
	h.closed = true
	return nil
}

type mockDirHandle struct {
	entries []string
	pos     int
	closed  bool
}

func (d *mockDirHandle) ReadDirectory() (interfaces.DirEntry, bool, error) {
	if d.closed {
		return interfaces.DirEntry{}, false, NewError("ReadDirectory", CodeInvalidFileHandle, "")
	}
	if d.pos >= len(d.entries) {
		return interfaces.DirEntry{}, false, nil
	}
	name := d.entries[d.pos]
	d.pos++
	return interfaces.DirEntry{Name: name}, true, nil
}

func (d *mockDirHandle) Close() error {
	d.closed = true
	return nil
}

// MockDecompressor is a no-op Decompressor that just copies bytes through,
// for tests of the load pipeline that don't care about actual compression.
type MockDecompressor struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

// NewMockDecompressor creates a passthrough decompressor.
func NewMockDecompressor() *MockDecompressor {
	return &MockDecompressor{}
}

// FailNext makes the next Decompress call return an error.
func (d *MockDecompressor) FailNext() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = true
}

func (d *MockDecompressor) Decompress(ctx context.Context, src interfaces.FileHandle, dst []byte, heap interfaces.Heap) (int, error) {
	d.mu.Lock()
	d.calls++
	fail := d.fail
	d.fail = false
	d.mu.Unlock()

	if fail {
		return 0, NewError("Decompress", CodeFailedToLoadResource, "forced failure")
	}
	return src.ReadFile(ctx, dst, 0)
}

// Calls returns the number of Decompress invocations.
func (d *MockDecompressor) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Compile-time interface checks.
var (
	_ interfaces.Heap         = (*MockHeap)(nil)
	_ interfaces.FileDevice   = (*MockFileDevice)(nil)
	_ interfaces.FileHandle   = (*mockFileHandle)(nil)
	_ interfaces.DirHandle    = (*mockDirHandle)(nil)
	_ interfaces.Decompressor = (*MockDecompressor)(nil)
)
