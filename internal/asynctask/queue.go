package asynctask

import (
	"errors"
	"sync"

	"github.com/vanerun/ukern/internal/container"
)

// ErrPriorityNotUpward is returned by ChangePriority when the
// requested priority is not strictly more urgent than the task's
// current one.
var ErrPriorityNotUpward = errors.New("asynctask: priority change must be upward")

// gate is the same close-and-replace broadcastable condition used by
// internal/msgqueue and internal/jobqueue; reimplemented locally since
// each package's wait semantics are tied to its own shared state.
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

// AsyncQueue holds priorityLevelCount ready lists (0 most urgent) and
// is drained by a pool of AsyncQueueThread workers.
type AsyncQueue struct {
	mu    sync.Mutex
	rings []*container.List

	event *gate

	workersWg sync.WaitGroup
	stop      chan struct{}
}

// NewAsyncQueue creates a queue with priorityLevelCount ready lists.
func NewAsyncQueue(priorityLevelCount int) *AsyncQueue {
	if priorityLevelCount <= 0 {
		priorityLevelCount = 1
	}
	q := &AsyncQueue{
		rings: make([]*container.List, priorityLevelCount),
		event: newGate(),
		stop:  make(chan struct{}),
	}
	for i := range q.rings {
		q.rings[i] = container.NewList()
	}
	return q
}

// StartWorkers launches n AsyncQueueThreads draining this queue.
func (q *AsyncQueue) StartWorkers(n int) {
	q.workersWg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer q.workersWg.Done()
			q.workerLoop()
		}()
	}
}

// Stop signals every worker to exit once idle and waits for them.
func (q *AsyncQueue) Stop() {
	close(q.stop)
	q.event.broadcast()
	q.workersWg.Wait()
}

func (q *AsyncQueue) clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p >= len(q.rings) {
		return len(q.rings) - 1
	}
	return p
}

// PushTask enqueues a new task at info.Priority. If info.IsSync, the
// call blocks until the task resolves.
func (q *AsyncQueue) PushTask(info PushTaskInfo) *Task {
	t := &Task{
		exeFn:    info.ExeFunc,
		resultFn: info.ResultFunc,
		userData: info.UserData,
		priority: q.clampPriority(info.Priority),
		watcher:  make(chan struct{}),
		queue:    q,
	}

	q.mu.Lock()
	t.listNode = q.rings[t.priority].PushBack(t)
	q.mu.Unlock()
	q.event.broadcast()

	if info.IsSync {
		t.Wait()
	}
	return t
}

// ChangePriority raises t's priority to p (must be numerically lower,
// i.e. more urgent, than its current priority) and relocates it
// between ready lists if it is still queued.
func (q *AsyncQueue) ChangePriority(t *Task, p int) error {
	p = q.clampPriority(p)

	q.mu.Lock()
	defer q.mu.Unlock()

	if p >= t.priority {
		return ErrPriorityNotUpward
	}
	if t.listNode != nil {
		t.listNode.Unlink()
		t.listNode = q.rings[p].PushBack(t)
	}
	t.priority = p
	return nil
}

// ForceCalcSyncOnThread synchronously drains and runs every task
// currently queued at priority <= maxPriority, on the calling
// goroutine, bypassing the worker pool entirely.
func (q *AsyncQueue) ForceCalcSyncOnThread(maxPriority int) {
	maxPriority = q.clampPriority(maxPriority)
	for {
		task := q.popAtOrAbove(maxPriority)
		if task == nil {
			return
		}
		q.runTask(task)
	}
}

func (q *AsyncQueue) popAtOrAbove(maxPriority int) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	for lvl := 0; lvl <= maxPriority; lvl++ {
		if node := q.rings[lvl].Front(); node != nil {
			node.Unlink()
			t := node.Value.(*Task)
			t.listNode = nil
			return t
		}
	}
	return nil
}

func (q *AsyncQueue) popAny() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ring := range q.rings {
		if node := ring.Front(); node != nil {
			node.Unlink()
			t := node.Value.(*Task)
			t.listNode = nil
			return t
		}
	}
	return nil
}

func (q *AsyncQueue) workerLoop() {
	for {
		select {
		case <-q.stop:
			return
		default:
		}

		task := q.popAny()
		if task == nil {
			ch := q.event.current()
			select {
			case <-ch:
			case <-q.stop:
				return
			}
			continue
		}
		q.runTask(task)
	}
}

func (q *AsyncQueue) runTask(t *Task) {
	result := t.exeFn(t.userData)
	cancelled := t.IsCancelled()

	if result == Rescheduled && !cancelled {
		q.mu.Lock()
		t.listNode = q.rings[t.priority].PushBack(t)
		q.mu.Unlock()
		q.event.broadcast()

		if t.resultFn != nil {
			t.resultFn(TaskResultInvokeInfo{Result: Rescheduled, IsCancelled: false, UserData: t.userData})
		}
		return
	}

	if t.resultFn != nil {
		t.resultFn(TaskResultInvokeInfo{Result: Success, IsCancelled: cancelled, UserData: t.userData})
	}
	close(t.watcher)
}
