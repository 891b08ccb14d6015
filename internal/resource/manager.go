package resource

import (
	"context"
	"errors"
	"sync"

	"github.com/vanerun/ukern/internal/asynctask"
	"github.com/vanerun/ukern/internal/constants"
	"github.com/vanerun/ukern/internal/interfaces"
)

// ErrArchiveMemberNotFound is returned by ArchiveBinder.Resolve when no
// bound archive carries the path; resolvePath then falls back to the
// FileDevice, whose own error is returned if that fails too.
var ErrArchiveMemberNotFound = errors.New("resource: archive member not found")

// Config configures a Manager's backing collaborators and worker counts.
type Config struct {
	FileDevice   interfaces.FileDevice
	Heap         interfaces.Heap
	Decompressor interfaces.Decompressor
	Logger       interfaces.Logger
	Observer     interfaces.Observer

	// LoadThreadCount sizes the load queue's worker pool (N threads, per
	// spec.md §4.H). Control and Memory always run single-threaded.
	LoadThreadCount int

	ArchiveBinder *ArchiveBinder

	// Compression, when set, selects the decompressor convention applied
	// to a load's resolved path extension; callers without a compressed
	// asset pipeline can leave it nil (everything reads through raw).
	Compression *CompressionTable
}

// Manager is the async resource manager: three priority queues (control,
// memory, load) draining into one deduplicated table of ResourceUnits
// keyed by crc32b(path); every file extension shares that table.
type Manager struct {
	cfg Config

	control *asynctask.AsyncQueue // 1 worker: intake, finalize-list, tick
	memory  *asynctask.AsyncQueue // 1 worker: load scheduling, unload, cache
	load    *asynctask.AsyncQueue // N workers: LoadFile per unit

	mu    sync.Mutex
	units map[uint32]*Unit // keyed by crc32b(path)

	started bool
}

// NewManager builds a Manager; call Start before issuing any loads.
func NewManager(cfg Config) *Manager {
	if cfg.LoadThreadCount <= 0 {
		cfg.LoadThreadCount = 1
	}
	return &Manager{
		cfg:     cfg,
		control: asynctask.NewAsyncQueue(constants.ControlPriorityMax + 1),
		memory:  asynctask.NewAsyncQueue(constants.MemoryPriorityMax + 1),
		load:    asynctask.NewAsyncQueue(constants.LoadPriorityMax + 1),
		units:   make(map[uint32]*Unit),
	}
}

// Start launches the control, memory, and load worker pools.
func (m *Manager) Start() {
	if m.started {
		return
	}
	m.started = true
	m.control.StartWorkers(1)
	m.memory.StartWorkers(1)
	m.load.StartWorkers(m.cfg.LoadThreadCount)
}

// Stop drains and stops every worker pool.
func (m *Manager) Stop() {
	if !m.started {
		return
	}
	m.started = false
	m.control.Stop()
	m.memory.Stop()
	m.load.Stop()
}

// memoryPriority converts the manager's "higher number is more urgent"
// Memory queue convention (spec.md §4.H) into AsyncQueue's "0 is most
// urgent" ready-list index.
func memoryPriority(p int) int {
	if p < constants.MemoryPriorityMin {
		p = constants.MemoryPriorityMin
	}
	if p > constants.MemoryPriorityMax {
		p = constants.MemoryPriorityMax
	}
	return constants.MemoryPriorityMax - p
}

// loadPriority derives the load queue's priority from the caller's
// user-facing priority and whether the load may resolve through a bound
// archive, per spec.md §4.H's (user_priority << 1) | allow_archive_ref
// packing, clamped into the load queue's own range.
func loadPriority(userPriority int, allowArchiveRef bool) int {
	p := userPriority << 1
	if allowArchiveRef {
		p |= 1
	}
	if p < constants.LoadPriorityMin {
		p = constants.LoadPriorityMin
	}
	if p > constants.LoadPriorityMax {
		p = constants.LoadPriorityMax
	}
	return p
}

// LoadOptions customizes one TryLoadAsync/TryLoadSync call.
type LoadOptions struct {
	Hooks           Hooks
	Policy          CachePolicy
	Priority        int // user priority, mapped through loadPriority
	AllowArchiveRef bool
}

// TryLoadAsync returns the existing unit for path if one is already
// tracked (incrementing its reference count and reusing whatever load is
// in flight or already resolved), or creates one and schedules its load
// on the load queue. ctx travels with the scheduled load, so a caller
// that wants a call-scoped archive override can set one via
// WithArchiveBinder before calling.
func (m *Manager) TryLoadAsync(ctx context.Context, path string, opts LoadOptions) *Unit {
	u, created := m.getOrCreateUnit(path, opts)
	u.AdjustReferenceCount(1)
	if created {
		m.scheduleLoad(ctx, u, opts)
	}
	return u
}

// TryLoadSync behaves like TryLoadAsync but blocks until the unit leaves
// InLoad (reaching Loaded or FailedToLoadResource) before returning.
func (m *Manager) TryLoadSync(ctx context.Context, path string, opts LoadOptions) *Unit {
	u := m.TryLoadAsync(ctx, path, opts)
	u.WaitForState(Loaded, FailedToLoadResource, ErrorState)
	return u
}

// TryReferenceResourceUnit increments the reference count of an
// already-tracked unit without triggering a new load, returning false if
// no unit for path is tracked.
func (m *Manager) TryReferenceResourceUnit(path string) (*Unit, bool) {
	hash := pathHash(path)
	m.mu.Lock()
	u, ok := m.units[hash]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	u.AdjustReferenceCount(1)
	return u, true
}

// ReleaseResourceUnit drops one reference from the unit tracked at path.
func (m *Manager) ReleaseResourceUnit(path string) {
	hash := pathHash(path)
	m.mu.Lock()
	u, ok := m.units[hash]
	m.mu.Unlock()
	if ok {
		u.AdjustReferenceCount(-1)
	}
}

func (m *Manager) getOrCreateUnit(path string, opts LoadOptions) (*Unit, bool) {
	hash := pathHash(path)

	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.units[hash]; ok {
		return u, false
	}

	hooks := opts.Hooks
	if hooks.LoadFn == nil {
		hooks.LoadFn = m.defaultLoadFn(path, opts.AllowArchiveRef)
	}
	u := NewUnit(path, hooks, opts.Policy, m)
	m.units[hash] = u
	return u, true
}

// defaultLoadFn resolves path through the bound archive chain (or the
// plain FileDevice), decompressing it per the extension's registered
// CompressionType and reading it into memory allocated from cfg.Heap.
// Callers that need custom load semantics supply their own
// Hooks.LoadFn instead, bypassing this entirely.
func (m *Manager) defaultLoadFn(path string, allowArchiveRef bool) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		if !allowArchiveRef {
			h, err := m.cfg.FileDevice.OpenFile(ctx, path, interfaces.OpenRead)
			if err != nil {
				return nil, err
			}
			defer h.Close()
			return m.readAll(ctx, path, h)
		}

		h, err := resolvePath(ctx, path, m.cfg.ArchiveBinder, m.cfg.FileDevice)
		if err != nil {
			return nil, err
		}
		defer h.Close()
		return m.readAll(ctx, path, h)
	}
}

func (m *Manager) readAll(ctx context.Context, path string, h interfaces.FileHandle) ([]byte, error) {
	size, err := m.cfg.FileDevice.GetFileSize(path)
	if err != nil {
		// A member resolved through an archive need not exist on the
		// FileDevice; size it by reading the handle to its end instead.
		var probe [4096]byte
		size = 0
		for {
			n, rerr := h.ReadFile(ctx, probe[:], size)
			size += int64(n)
			if rerr != nil || n < len(probe) {
				break
			}
		}
		if size == 0 {
			return nil, err
		}
	}

	dst := m.cfg.Heap.TryAllocate(int(size), 1)
	if dst == nil {
		return nil, errors.New("resource: heap allocation failed for " + path)
	}

	compression := interfaces.CompressionNone
	if m.cfg.Compression != nil {
		compression = m.cfg.Compression.Lookup(path)
	}

	if compression != interfaces.CompressionNone && m.cfg.Decompressor != nil {
		n, err := m.cfg.Decompressor.Decompress(ctx, h, dst, m.cfg.Heap)
		if err != nil {
			m.cfg.Heap.Free(dst)
			return nil, err
		}
		return dst[:n], nil
	}

	n, err := h.ReadFile(ctx, dst, 0)
	if err != nil {
		m.cfg.Heap.Free(dst)
		return nil, err
	}
	return dst[:n], nil
}

func (m *Manager) scheduleLoad(ctx context.Context, u *Unit, opts LoadOptions) {
	m.load.PushTask(asynctask.PushTaskInfo{
		Priority: loadPriority(opts.Priority, opts.AllowArchiveRef),
		ExeFunc: func(interface{}) asynctask.ResultCode {
			u.RunLoad(ctx)
			if m.cfg.Observer != nil {
				m.cfg.Observer.ObserveResourceLoad(uint64(len(u.data)), 0, u.State() == Loaded)
			}
			if u.State() == FailedToLoadResource && m.cfg.Logger != nil {
				m.cfg.Logger.Printf("resource: load failed for %s", u.FilePath)
			}
			m.control.PushTask(asynctask.PushTaskInfo{
				ExeFunc: func(interface{}) asynctask.ResultCode {
					u.RunInitialize()
					return asynctask.Success
				},
			})
			return asynctask.Success
		},
	})
}

// scheduleUnload implements unloadScheduler: called by a Unit when its
// reference count reaches zero and it isn't cache-eligible, queuing its
// PreFinalize/Finalize cycle on the memory queue at the fixed unload
// priority.
func (m *Manager) scheduleUnload(u *Unit) {
	if m.cfg.Observer != nil {
		m.cfg.Observer.ObserveResourceUnload(false)
	}
	m.memory.PushTask(asynctask.PushTaskInfo{
		Priority: memoryPriority(constants.UnloadTaskPriority),
		ExeFunc: func(interface{}) asynctask.ResultCode {
			u.RunUnloadCycle()
			if u.State() == Uninitialized {
				m.mu.Lock()
				if tracked, ok := m.units[u.PathHash]; ok && tracked == u {
					delete(m.units, u.PathHash)
				}
				m.mu.Unlock()
				if m.cfg.Logger != nil {
					m.cfg.Logger.Debugf("resource: unloaded %s", u.FilePath)
				}
			}
			return asynctask.Success
		},
	})
}

// Tick drains one round of deferred reference adjustments across every
// tracked unit and advances their frame buffers. Intended to be called
// once per frame by the control queue's owner.
func (m *Manager) Tick() {
	m.control.PushTask(asynctask.PushTaskInfo{
		IsSync: true,
		ExeFunc: func(interface{}) asynctask.ResultCode {
			m.mu.Lock()
			snapshot := make([]*Unit, 0, len(m.units))
			for _, u := range m.units {
				snapshot = append(snapshot, u)
			}
			m.mu.Unlock()

			for _, u := range snapshot {
				u.ReserveUnload()
			}
			return asynctask.Success
		},
	})
}

// PushControlTask submits an arbitrary callback to the control queue at
// the given priority, for callers that need one-off work serialized
// alongside unit intake/tick without tracking a ResourceUnit (e.g. a
// per-frame hook from the owning Runtime).
func (m *Manager) PushControlTask(priority int, fn func()) *asynctask.Task {
	return m.control.PushTask(asynctask.PushTaskInfo{
		Priority: priority,
		ExeFunc: func(interface{}) asynctask.ResultCode {
			fn()
			return asynctask.Success
		},
	})
}

// Lookup returns the tracked unit for path, if any, without adjusting its
// reference count.
func (m *Manager) Lookup(path string) (*Unit, bool) {
	hash := pathHash(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[hash]
	return u, ok
}

// Count returns the number of resource units currently tracked.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.units)
}
