package ukern

import (
	"runtime"

	"github.com/vanerun/ukern/internal/constants"
	"github.com/vanerun/ukern/internal/handle"
)

// NewScheduler creates a Scheduler ready to accept CreateThread calls.
func NewScheduler(cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	coreCount := cfg.CoreCount
	if coreCount <= 0 {
		coreCount = runtime.GOMAXPROCS(0)
	}
	capacity := cfg.HandleTableCapacity
	if capacity <= 0 {
		capacity = constants.DefaultHandleTableCapacity
	}

	s := &Scheduler{
		coreCount: coreCount,
		handles:   handle.NewTable(capacity),
		logger:    cfg.Logger,
		observer:  cfg.Observer,
		addrWaits: newAddressWaitTable(),
	}
	return s
}

// CoreCount returns the number of logical cores this scheduler models.
func (s *Scheduler) CoreCount() int { return s.coreCount }

// ActiveCores returns the current count of cores with at least one
// runnable fiber dispatched, for diagnostics.
func (s *Scheduler) ActiveCores() int32 { return s.activeCores.Load() }

// RunnableFibers returns the current count of fibers that are neither
// waiting nor exited, for diagnostics.
func (s *Scheduler) RunnableFibers() int32 { return s.runnableFibers.Load() }

// CreateThread creates a new fiber running fn(arg) and returns its handle.
// Per spec.md §8's boundary behavior, a priority outside [-2, +2] returns
// InvalidPriority and allocates nothing; coreID must either designate a
// valid core or be constants.AnyCore.
func (s *Scheduler) CreateThread(fn func(arg interface{}), arg interface{}, priority int32, coreID uint16) (handle.Handle, error) {
	if priority < constants.MinPriority || priority > constants.MaxPriority {
		return handle.Invalid, NewError("CreateThread", CodeInvalidPriority, "priority out of [-2,2]")
	}
	if coreID != constants.AnyCore && int(coreID) >= s.coreCount {
		return handle.Invalid, NewError("CreateThread", CodeInvalidCoreID, "core id out of range")
	}

	fls := &FLS{
		priority: priority,
		coreMask: constants.DefaultCoreIDMask,
		state:    Scheduled,
		activity: Schedulable,
		parkChan: make(chan struct{}, 1),
		exited:   make(chan struct{}),
	}
	fls.scheduler = s

	h, ok := s.handles.Reserve(fls)
	if !ok {
		return handle.Invalid, NewHandleError("CreateThread", 0, CodeHandleExhaustion, "handle table full")
	}
	fls.handleValue = h

	if coreID != constants.AnyCore {
		fls.coreMask = uint64(1) << coreID
		fls.currentCore = coreID
	}

	s.runnableFibers.Add(1)
	s.activeCores.Add(1)

	go func() {
		pinToCore(coreID)
		fls.setState(Running)
		fn(arg)
		fls.setState(Exiting)
		s.runnableFibers.Add(-1)
		s.activeCores.Add(-1)
		s.handles.FreeHandle(fls.handleValue)
		close(fls.exited)
	}()

	return h, nil
}

// ExitThread blocks until the fiber identified by h has exited. It
// returns InvalidHandle if h does not name a live fiber.
func (s *Scheduler) ExitThread(h handle.Handle) error {
	fls, err := s.fiberFromHandle("ExitThread", h)
	if err != nil {
		return err
	}
	<-fls.exited
	return nil
}

// ExitFiber is called from within the currently-running fiber to mark
// its own intended exit; the entry function should return immediately
// afterward. It exists so callers can distinguish "fiber chose to end"
// from "fiber returned normally" in logs, mirroring the source API
// surface; behavior is otherwise identical to a normal return.
func (s *Scheduler) ExitFiber(fls *FLS) {
	fls.setState(Exiting)
}

// SetPriority changes fls's priority. Returns SamePriority if the value
// is unchanged, InvalidPriority if out of range.
func (s *Scheduler) SetPriority(fls *FLS, priority int32) error {
	if priority < constants.MinPriority || priority > constants.MaxPriority {
		return NewError("SetPriority", CodeInvalidPriority, "priority out of [-2,2]")
	}
	fls.mu.Lock()
	defer fls.mu.Unlock()
	if fls.priority == priority {
		return NewError("SetPriority", CodeSamePriority, "")
	}
	fls.priority = priority
	return nil
}

// SetCoreMask changes fls's permissible-core bitset. Returns
// SameCoreMask if unchanged.
func (s *Scheduler) SetCoreMask(fls *FLS, mask uint64) error {
	fls.mu.Lock()
	defer fls.mu.Unlock()
	if fls.coreMask == mask {
		return NewError("SetCoreMask", CodeSameCoreMask, "")
	}
	fls.coreMask = mask
	return nil
}

// SetActivity changes fls's activity level. Returns SameActivityLevel
// if unchanged.
func (s *Scheduler) SetActivity(fls *FLS, activity ActivityLevel) error {
	fls.mu.Lock()
	defer fls.mu.Unlock()
	if fls.activity == activity {
		return NewError("SetActivity", CodeSameActivityLevel, "")
	}
	fls.activity = activity
	return nil
}

func (s *Scheduler) fiberFromHandle(op string, h handle.Handle) (*FLS, error) {
	obj, ok := s.handles.GetObjectByHandle(h)
	if !ok {
		return nil, NewHandleError(op, uint32(h), CodeInvalidHandle, "stale or unknown handle")
	}
	return obj.(*FLS), nil
}
