// Package constants holds tunables shared across the scheduler, job queue,
// and resource pipeline layers.
package constants

import "time"

// Priority range constants (UKern FLS priority).
const (
	// MinPriority / MaxPriority are the external (public) priority range.
	MinPriority = -2
	MaxPriority = 2

	// PriorityLevels is the number of internal priority buckets after the
	// [-2,+2] -> [0,4] offset remap.
	PriorityLevels = 5

	// PriorityOffset maps external priority to the internal [0..4] index.
	PriorityOffset = 2
)

// Core / ring sizing.
const (
	// LocalRingCapacity is the fixed capacity of each per-core local ring,
	// for both the UKern scheduler and the dependency job queue.
	LocalRingCapacity = 8

	// DefaultCoreIDMask is the bitset admitting all cores (cDefaultCoreIdMask).
	DefaultCoreIDMask uint64 = ^uint64(0)

	// AnyCore is the sentinel core number meaning "no affinity" (cJobAnyCore).
	AnyCore uint16 = 0xFFFF
)

// Handle table sizing.
const (
	// DefaultHandleTableCapacity bounds the number of live fibers/objects.
	DefaultHandleTableCapacity = 4096
)

// Lock/wait encoding.
const (
	// HasChildWaitersBit is OR'd into a lock address's stored value when the
	// owner has at least one parked waiter chained behind it.
	HasChildWaitersBit uint32 = 0x40000000

	// HandleValueMask extracts the owning handle from a tagged lock value.
	HandleValueMask uint32 = ^HasChildWaitersBit
)

// MaxTime represents an infinite timeout (TimeSpan::cMaxTime).
const MaxTime = time.Duration(1<<63 - 1)

// Job queue packing (multi_run_state: {multi_run_count u16 high, active_running_count u16 low}).
const (
	// MultiRunCompletedTombstone marks a job node's parent_count absorbing
	// state once it has fully resolved (0xFFFFFFFF).
	MultiRunCompletedTombstone uint32 = 0xFFFFFFFF

	// ActiveRunIncrement is added to multi_run_state's low 16 bits when a
	// run starts, and subtracted when it finishes.
	ActiveRunIncrement uint32 = 1
)

// Async resource manager priority conventions.
const (
	ControlPriorityMin = 0
	ControlPriorityMax = 2

	MemoryPriorityMin = 1
	MemoryPriorityMax = 0xE

	LoadPriorityMin = 0
	LoadPriorityMax = 2

	// UnloadTaskPriority is the fixed memory-queue priority used for
	// ReserveUnload-scheduled unload tasks.
	UnloadTaskPriority = 0xD
)

// MaxFilePathLength bounds ResourceUnit.file_path.
const MaxFilePathLength = 260

// DeferredAdjustFrameCount is the double-buffer width for per-frame
// reference-count adjustments.
const DeferredAdjustFrameCount = 2

// WorkerWaitPollInterval is how long a main-thread-affine job queue worker
// sleeps between queue checks instead of parking, to avoid blocking a host
// frame loop (mirrors the 100us mainthread carve-out in the job queue spec).
const WorkerWaitPollInterval = 100 * time.Microsecond
