// Package ukern implements the cooperative scheduler's public contract —
// fiber creation, priority/affinity control, and the lock/key/address wait
// primitives — on top of real OS threads (goroutines) rather than
// hand-rolled stack switching. The specification's own design notes call
// this mapping out explicitly: "the UKern API can be mapped to OS-thread +
// park-by-address without changing semantics, because every suspension
// point is explicit and every wait carries an absolute timeout." Every
// wait primitive here parks by blocking a goroutine on a channel, which is
// the Go-native equivalent of dropping the scheduler lock and switching to
// the scheduler fiber.
package ukern

import (
	"sync"
	"sync/atomic"

	"github.com/vanerun/ukern/internal/constants"
	"github.com/vanerun/ukern/internal/handle"
	"github.com/vanerun/ukern/internal/interfaces"
)

// FiberState mirrors the FLS state machine from the specification.
// Transitions are driven entirely by the goroutine running the fiber's
// entry function; there is no separate dispatcher thread to race with.
type FiberState int32

const (
	Suspended FiberState = iota
	Scheduled
	ScheduledLocal
	Running
	Waiting
	Exiting
)

func (s FiberState) String() string {
	switch s {
	case Suspended:
		return "Suspended"
	case Scheduled:
		return "Scheduled"
	case ScheduledLocal:
		return "ScheduledLocal"
	case Running:
		return "Running"
	case Waiting:
		return "Waiting"
	case Exiting:
		return "Exiting"
	default:
		return "Unknown"
	}
}

// ActivityLevel gates whether a fiber may be dispatched at all,
// independent of whether it is runnable.
type ActivityLevel int32

const (
	Schedulable ActivityLevel = iota
	SuspendedActivity
)

// FLS is the fiber-local storage record for one fiber/thread, keyed in
// the scheduler's handle table.
type FLS struct {
	mu sync.Mutex

	handleValue handle.Handle
	priority    int32  // external range [-2, +2]
	coreMask    uint64 // bitset of permissible cores
	currentCore uint16
	state       FiberState
	activity    ActivityLevel

	// parkChan is how a parked fiber is woken: exactly one send per wake,
	// always followed by the fiber's goroutine observing it and resuming.
	parkChan chan struct{}

	// exited is closed once the fiber's entry function returns, so
	// ExitThread (joining another fiber) has something to wait on.
	exited chan struct{}

	scheduler *Scheduler
}

// Priority returns the fiber's external priority.
func (f *FLS) Priority() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.priority
}

// CoreMask returns the fiber's permissible-core bitset.
func (f *FLS) CoreMask() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coreMask
}

// State returns the fiber's current FiberState.
func (f *FLS) State() FiberState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Activity returns the fiber's current ActivityLevel.
func (f *FLS) Activity() ActivityLevel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activity
}

// Handle returns the fiber's handle-table identity.
func (f *FLS) Handle() handle.Handle {
	return f.handleValue
}

func (f *FLS) setState(s FiberState) {
	f.mu.Lock()
	prev := f.state
	f.state = s
	f.mu.Unlock()
	if f.scheduler == nil || prev == s {
		return
	}
	if s == Waiting {
		f.scheduler.runnableFibers.Add(-1)
	} else if prev == Waiting {
		f.scheduler.runnableFibers.Add(1)
	}
}

// Config configures a Scheduler.
type Config struct {
	// CoreCount is the number of logical cores the scheduler models for
	// affinity purposes; 0 selects runtime.GOMAXPROCS(0).
	CoreCount int

	// HandleTableCapacity bounds the number of simultaneously live
	// fibers.
	HandleTableCapacity int

	Logger   interfaces.Logger
	Observer interfaces.Observer
}

// DefaultConfig returns a Config with sane defaults.
func DefaultConfig() *Config {
	return &Config{
		CoreCount:           0,
		HandleTableCapacity: constants.DefaultHandleTableCapacity,
	}
}

// Scheduler owns the handle table and global counters backing the UKern
// fiber API. There are no per-core dispatch queues: fibers run
// continuously on their own goroutine once created (see the package doc
// comment). Each fiber's coreMask and currentCore are recorded, but the
// wait/wake primitives do not consult them.
type Scheduler struct {
	coreCount int

	handles *handle.Table

	activeCores     atomic.Int32
	runnableFibers  atomic.Int32

	logger   interfaces.Logger
	observer interfaces.Observer

	addrWaits *addressWaitTable
}
