package jobqueue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vanerun/ukern/internal/interfaces"
)

// recordingObserver captures Observer calls for assertions, without
// depending on the root package's Metrics implementation.
type recordingObserver struct {
	dispatches atomic.Int32
	completes  atomic.Int32
	fanouts    atomic.Int32
	lastFanout atomic.Uint64
}

func (o *recordingObserver) ObserveJobDispatch(uint16, uint64) { o.dispatches.Add(1) }
func (o *recordingObserver) ObserveJobComplete(uint16, uint64) { o.completes.Add(1) }
func (o *recordingObserver) ObserveMultiRunFanout(count uint64) {
	o.fanouts.Add(1)
	o.lastFanout.Store(count)
}
func (o *recordingObserver) ObserveResourceLoad(uint64, uint64, bool) {}
func (o *recordingObserver) ObserveResourceUnload(bool)               {}
func (o *recordingObserver) ObserveQueueDepth(string, uint32)         {}

var _ interfaces.Observer = (*recordingObserver)(nil)

func runWithTimeout(t *testing.T, q *Queue) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		q.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue.Run() never returned")
	}
}

func TestLinearChainRunsInOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int

	nodes := []JobGraphNode{
		{Job: func(int) { mu.Lock(); order = append(order, 0); mu.Unlock() }, CoreNumber: AnyCore, MultiRunCount: 1},
		{Job: func(int) { mu.Lock(); order = append(order, 1); mu.Unlock() }, CoreNumber: AnyCore, MultiRunCount: 1},
		{Job: func(int) { mu.Lock(); order = append(order, 2); mu.Unlock() }, CoreNumber: AnyCore, MultiRunCount: 1},
	}
	edges := []Edge{{Parent: 0, Dependent: 1}, {Parent: 1, Dependent: 2}}

	g := BuildJobGraph(nodes, edges)
	q := NewQueue(g, Config{WorkerCount: 4, MainThreadCore: AnyCore})
	runWithTimeout(t, q)

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("order = %v, want [0 1 2]", order)
	}
}

func TestIndependentJobsAllRun(t *testing.T) {
	var count atomic.Int32
	n := 20
	nodes := make([]JobGraphNode, n)
	for i := range nodes {
		nodes[i] = JobGraphNode{Job: func(int) { count.Add(1) }, CoreNumber: AnyCore, MultiRunCount: 1}
	}

	g := BuildJobGraph(nodes, nil)
	q := NewQueue(g, Config{WorkerCount: 4, MainThreadCore: AnyCore})
	runWithTimeout(t, q)

	if count.Load() != int32(n) {
		t.Errorf("count = %d, want %d", count.Load(), n)
	}
}

func TestMultiRunFanout(t *testing.T) {
	var runCount atomic.Int32
	var seenIdx sync.Map

	nodes := []JobGraphNode{
		{Job: func(idx int) {
			runCount.Add(1)
			seenIdx.Store(idx, true)
		}, CoreNumber: AnyCore, MultiRunCount: 4},
	}

	g := BuildJobGraph(nodes, nil)
	q := NewQueue(g, Config{WorkerCount: 4, MainThreadCore: AnyCore})
	runWithTimeout(t, q)

	if runCount.Load() != 4 {
		t.Fatalf("runCount = %d, want 4", runCount.Load())
	}
	for i := 0; i < 4; i++ {
		if _, ok := seenIdx.Load(i); !ok {
			t.Errorf("run index %d was never claimed", i)
		}
	}
}

func TestObserverReceivesDispatchCompleteAndFanout(t *testing.T) {
	nodes := []JobGraphNode{
		{Job: func(int) {}, CoreNumber: AnyCore, MultiRunCount: 3},
		{Job: func(int) {}, CoreNumber: AnyCore, MultiRunCount: 1},
	}

	g := BuildJobGraph(nodes, nil)
	obs := &recordingObserver{}
	q := NewQueue(g, Config{WorkerCount: 4, MainThreadCore: AnyCore, Observer: obs})
	runWithTimeout(t, q)

	// 3 runs of the multi-run node + 1 single-run node + the graph's
	// synthetic final node.
	const wantDispatches = 5
	if got := obs.dispatches.Load(); got != wantDispatches {
		t.Errorf("dispatches = %d, want %d", got, wantDispatches)
	}
	if got := obs.completes.Load(); got != wantDispatches {
		t.Errorf("completes = %d, want %d", got, wantDispatches)
	}
	if got := obs.fanouts.Load(); got != 1 {
		t.Errorf("fanouts = %d, want 1 (one multi-run node)", got)
	}
	if got := obs.lastFanout.Load(); got != 2 {
		t.Errorf("lastFanout = %d, want 2 (3 runs - 1)", got)
	}
}

func TestMultiRunCompleteOnceReleasesAfterAllRunsFinish(t *testing.T) {
	var finished atomic.Int32
	var started atomic.Int32
	release := make(chan struct{})

	parent := JobGraphNode{
		Job: func(idx int) {
			started.Add(1)
			if idx == 0 {
				// finish only once every run has started, so the other
				// runs are still active when complete-once takes effect
				for started.Load() < 3 {
					time.Sleep(time.Millisecond)
				}
				finished.Add(1)
				return
			}
			<-release // other runs hang until the test releases them
			finished.Add(1)
		},
		CoreNumber:             AnyCore,
		MultiRunCount:          3,
		IsMultiRunCompleteOnce: true,
	}
	var dependentRan atomic.Bool
	dependent := JobGraphNode{
		Job:           func(int) { dependentRan.Store(true) },
		CoreNumber:    AnyCore,
		MultiRunCount: 1,
	}

	g := BuildJobGraph([]JobGraphNode{parent, dependent}, []Edge{{Parent: 0, Dependent: 1}})
	q := NewQueue(g, Config{WorkerCount: 4, MainThreadCore: AnyCore})

	go q.Run()

	time.Sleep(50 * time.Millisecond) // let the first run finish, the rest block
	if dependentRan.Load() {
		t.Fatal("dependent ran before every complete-once run finished")
	}

	close(release)

	select {
	case <-q.Done():
	case <-time.After(time.Second):
		t.Fatal("complete-once parent never released its dependent once every run finished")
	}

	if !dependentRan.Load() {
		t.Error("expected dependent to have run after every run finished")
	}
}

func TestCoreAffinityPinsExecution(t *testing.T) {
	var ran atomic.Bool

	nodes := []JobGraphNode{
		{Job: func(int) {
			ran.Store(true)
		}, CoreNumber: 2, MultiRunCount: 1},
	}

	g := BuildJobGraph(nodes, nil)
	q := NewQueue(g, Config{WorkerCount: 4, MainThreadCore: AnyCore})
	runWithTimeout(t, q)

	if !ran.Load() {
		t.Error("expected core-pinned job to run")
	}
}

func TestEmptyGraphCompletesImmediately(t *testing.T) {
	g := BuildJobGraph(nil, nil)
	q := NewQueue(g, Config{WorkerCount: 2, MainThreadCore: AnyCore})
	runWithTimeout(t, q)
}
