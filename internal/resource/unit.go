// Package resource implements the async resource unit state machine
// and manager: reference-counted, lazily-loaded resources dispatched
// across control/memory/load worker queues, deduplicated by path hash,
// with an optional cache-retention policy.
package resource

import (
	"context"
	"hash/crc32"
	"sync"
	"sync/atomic"

	"github.com/vanerun/ukern/internal/constants"
)

// State is one node in the resource unit lifecycle state machine.
type State int32

const (
	Uninitialized State = iota
	InLoad
	Loaded
	ErrorState
	FailedToLoadResource
	InResourceInitialize
	ResourceInitialized
	ResourcePostInitialized
	InResourcePreFinalize
	ResourcePreFinalized
	InResourceFinalize
	FailedToInitializeResource
	FailedToPostInitializeResource
	FailedToPreFinalizeResource
	Freed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case InLoad:
		return "InLoad"
	case Loaded:
		return "Loaded"
	case ErrorState:
		return "Error"
	case FailedToLoadResource:
		return "FailedToLoadResource"
	case InResourceInitialize:
		return "InResourceInitialize"
	case ResourceInitialized:
		return "ResourceInitialized"
	case ResourcePostInitialized:
		return "ResourcePostInitialized"
	case InResourcePreFinalize:
		return "InResourcePreFinalize"
	case ResourcePreFinalized:
		return "ResourcePreFinalized"
	case InResourceFinalize:
		return "InResourceFinalize"
	case FailedToInitializeResource:
		return "FailedToInitializeResource"
	case FailedToPostInitializeResource:
		return "FailedToPostInitializeResource"
	case FailedToPreFinalizeResource:
		return "FailedToPreFinalizeResource"
	case Freed:
		return "Freed"
	default:
		return "Unknown"
	}
}

// IsFailure reports whether s is one of the terminal-for-this-cycle
// failure states.
func (s State) IsFailure() bool {
	switch s {
	case ErrorState, FailedToLoadResource, FailedToInitializeResource,
		FailedToPostInitializeResource, FailedToPreFinalizeResource:
		return true
	}
	return false
}

// CachePolicy controls whether a unit survives a ref count drop to
// zero by joining the cache rather than unloading immediately.
type CachePolicy struct {
	IsCacheUnload           bool
	IsCacheUnloadForNoRef   bool
	IsCacheUnloadForNoError bool
}

func (p CachePolicy) eligible(s State) bool {
	return p.IsCacheUnload && p.IsCacheUnloadForNoRef && p.IsCacheUnloadForNoError && !s.IsFailure()
}

// Hooks supplies the file-specific behavior at each lifecycle
// transition. LoadFn is required; the rest default to no-ops.
type Hooks struct {
	LoadFn        func(ctx context.Context) ([]byte, error)
	InitializeFn  func(data []byte) error
	PostInitFn    func(data []byte) error
	PreFinalizeFn func(data []byte) error
	FinalizeFn    func(data []byte) error
}

// gate is the same broadcastable condition used throughout the
// concurrency layers, standing in here for status_update_event.
type gate struct {
	mu sync.Mutex
	ch chan struct{}
}

func newGate() *gate { return &gate{ch: make(chan struct{})} }

func (g *gate) current() chan struct{} {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()
	return ch
}

func (g *gate) broadcast() {
	g.mu.Lock()
	close(g.ch)
	g.ch = make(chan struct{})
	g.mu.Unlock()
}

// unloadScheduler is the narrow surface Unit needs from its owning
// Manager: scheduling the memory-queue unload task described in
// spec.md §4.G/H. Manager implements this; tests can stub it.
type unloadScheduler interface {
	scheduleUnload(u *Unit)
}

// Unit is one async-loaded resource and its reference-counted
// lifecycle state machine.
type Unit struct {
	// transitionMu serializes state transitions, standing in for
	// resource_initialize_guard: at most one goroutine may be driving
	// this unit's state machine forward at a time.
	transitionMu sync.Mutex

	stateVal atomic.Int32
	status   *gate

	FilePath string
	PathHash uint32

	hooks  Hooks
	policy CachePolicy
	data   []byte

	refCount atomic.Int32

	// deferredAdjust is the per-frame double-buffer RequestUnloadResourceUnit
	// accumulates into; frameIdx selects the currently-live half.
	deferredAdjust [constants.DeferredAdjustFrameCount]atomic.Int32
	frameIdx       atomic.Int32
	freeFrameMu    sync.Mutex

	pendingUnload atomic.Bool

	scheduler unloadScheduler
}

func pathHash(filePath string) uint32 { return crc32.ChecksumIEEE([]byte(filePath)) }

// NewUnit creates a unit for filePath, not yet loaded.
func NewUnit(filePath string, hooks Hooks, policy CachePolicy, scheduler unloadScheduler) *Unit {
	u := &Unit{
		FilePath:  filePath,
		PathHash:  pathHash(filePath),
		hooks:     hooks,
		policy:    policy,
		status:    newGate(),
		scheduler: scheduler,
	}
	u.stateVal.Store(int32(Uninitialized))
	return u
}

// State returns the unit's current lifecycle state.
func (u *Unit) State() State { return State(u.stateVal.Load()) }

func (u *Unit) setState(s State) {
	u.stateVal.Store(int32(s))
	u.status.broadcast()
}

// WaitForState blocks until the unit reaches one of targets, returning
// the state it stopped at. Used by callers that issued a synchronous
// load and need to observe its outcome.
func (u *Unit) WaitForState(targets ...State) State {
	for {
		cur := u.State()
		for _, t := range targets {
			if cur == t {
				return cur
			}
		}
		<-u.status.current()
	}
}

// RunLoad drives Uninitialized -> InLoad -> {Loaded, FailedToLoadResource}.
// Invoked by the manager's load queue worker for this unit.
func (u *Unit) RunLoad(ctx context.Context) {
	u.transitionMu.Lock()
	defer u.transitionMu.Unlock()

	if u.State() != Uninitialized {
		return
	}
	u.setState(InLoad)

	data, err := u.hooks.LoadFn(ctx)
	if err != nil {
		u.setState(FailedToLoadResource)
		return
	}
	u.data = data
	u.setState(Loaded)
}

// RunInitialize drives Loaded -> InResourceInitialize -> ResourceInitialized
// -> ResourcePostInitialized, stopping at a fail state if a hook errors.
func (u *Unit) RunInitialize() {
	u.transitionMu.Lock()
	defer u.transitionMu.Unlock()

	if u.State() != Loaded {
		return
	}
	u.setState(InResourceInitialize)
	if u.hooks.InitializeFn != nil {
		if err := u.hooks.InitializeFn(u.data); err != nil {
			u.setState(FailedToInitializeResource)
			return
		}
	}
	u.setState(ResourceInitialized)

	if u.hooks.PostInitFn != nil {
		if err := u.hooks.PostInitFn(u.data); err != nil {
			u.setState(FailedToPostInitializeResource)
			return
		}
	}
	u.setState(ResourcePostInitialized)
}

// RunUnloadCycle drives the live-to-Uninitialized unload path:
// PreFinalize -> Finalize -> Uninitialized. A reference arriving via
// AdjustReferenceCount before Finalize actually runs reclaims the unit
// back to Loaded instead.
func (u *Unit) RunUnloadCycle() {
	u.transitionMu.Lock()
	defer u.transitionMu.Unlock()

	if !u.pendingUnload.Load() {
		return
	}

	u.setState(InResourcePreFinalize)
	if u.hooks.PreFinalizeFn != nil {
		if err := u.hooks.PreFinalizeFn(u.data); err != nil {
			u.setState(FailedToPreFinalizeResource)
			u.pendingUnload.Store(false)
			return
		}
	}
	u.setState(ResourcePreFinalized)

	if !u.pendingUnload.Load() {
		// Reclaimed between PreFinalize and Finalize: resume service.
		u.setState(Loaded)
		return
	}

	u.setState(InResourceFinalize)
	if u.hooks.FinalizeFn != nil {
		u.hooks.FinalizeFn(u.data)
	}
	u.data = nil
	u.pendingUnload.Store(false)
	u.setState(Uninitialized)
}

// Free transitions a fully-unloaded unit to the terminal Freed state.
// It is an error to call this while the unit is still referenced.
func (u *Unit) Free() bool {
	u.transitionMu.Lock()
	defer u.transitionMu.Unlock()
	if u.State() != Uninitialized || u.refCount.Load() != 0 {
		return false
	}
	u.setState(Freed)
	return true
}

// AdjustReferenceCount changes the unit's caller-visible reference
// count by delta. When the count reaches zero, the unit either joins
// the cache (if policy allows and its state isn't a failure) or is
// scheduled for unload via the owning manager.
func (u *Unit) AdjustReferenceCount(delta int32) int32 {
	newCount := u.refCount.Add(delta)

	if newCount == 0 {
		if u.policy.eligible(u.State()) {
			u.pendingUnload.Store(true)
			// Cache-held: stays resident and reclaimable, and is not
			// scheduled for unload.
			return newCount
		}
		u.pendingUnload.Store(true)
		if u.scheduler != nil {
			u.scheduler.scheduleUnload(u)
		}
	} else if newCount > 0 {
		// A fresh reference arriving while an unload/cache-hold was
		// pending reclaims the unit in place. If RunUnloadCycle already
		// passed PreFinalize, its own pendingUnload check catches the
		// reclaim and steps back to Loaded instead of Uninitialized.
		u.pendingUnload.CompareAndSwap(true, false)
	}

	return newCount
}

// RefCount returns the unit's current caller-visible reference count.
func (u *Unit) RefCount() int32 { return u.refCount.Load() }

// RequestUnloadResourceUnit accumulates a (typically negative) deferred
// reference delta into the currently-live frame half, applied on the
// next ReserveUnload tick rather than immediately.
func (u *Unit) RequestUnloadResourceUnit(delta int32) {
	idx := u.frameIdx.Load()
	u.deferredAdjust[idx].Add(delta)
}

// ReserveUnload advances the deferred-adjust double buffer by one
// frame, draining and applying whatever accumulated in the now-retired
// half. Intended to be called once per tick by the owning manager.
func (u *Unit) ReserveUnload() {
	u.freeFrameMu.Lock()
	prev := u.frameIdx.Load()
	next := (prev + 1) % constants.DeferredAdjustFrameCount
	u.frameIdx.Store(next)
	drained := u.deferredAdjust[prev].Swap(0)
	u.freeFrameMu.Unlock()

	if drained != 0 {
		u.AdjustReferenceCount(drained)
	}
}
