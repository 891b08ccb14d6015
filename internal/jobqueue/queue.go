package jobqueue

import (
	"sync"
	"time"

	"github.com/vanerun/ukern/internal/constants"
	"github.com/vanerun/ukern/internal/container"
	"github.com/vanerun/ukern/internal/interfaces"
)

// blockedNode is the sentinel installed into a worker's nextJob when it
// has no assigned job and has parked waiting for one, distinguishing
// "parked" from "never assigned" (nil) and from a real job pointer.
var blockedNode = &jobQueueNode{}

// gate is the same close-and-replace broadcastable condition used by
// internal/msgqueue, reimplemented locally to keep the two packages
// independent: a worker's out-of-jobs event and a message queue's
// not-empty/not-full gates are conceptually the same primitive but
// belong to different layers.
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

// claimRun atomically decrements the node's remaining-run count and
// increments its active-run count in one packed update, returning
// whether the node still has unclaimed runs left (and so should remain
// queued for another worker to pick up).
func (n *jobQueueNode) claimRun() (stillQueued bool) {
	for {
		old := n.multiRunState.Load()
		remaining := old >> 16
		active := old & 0xFFFF
		newState := ((remaining - 1) << 16) | (active + 1)
		if n.multiRunState.CompareAndSwap(old, newState) {
			return remaining-1 > 0
		}
	}
}

// finishRun atomically decrements the active-run count, reporting
// whether this was the last outstanding run (both halves now zero).
func (n *jobQueueNode) finishRun() (allDone bool) {
	for {
		old := n.multiRunState.Load()
		remaining := old >> 16
		active := old & 0xFFFF
		newActive := active - 1
		newState := (remaining << 16) | newActive
		if n.multiRunState.CompareAndSwap(old, newState) {
			return remaining == 0 && newActive == 0
		}
	}
}

// forceRemoveForCompleteOnce zeroes the remaining-run count, leaving the
// active-run count intact so finishRun still sees every started run
// finish. It reports whether any unclaimed runs were cancelled (false
// means every run was already claimed, so the node is off the ready
// queue). The caller holds Queue.mu, which claimRun also runs under.
func (n *jobQueueNode) forceRemoveForCompleteOnce() (changed bool) {
	for {
		old := n.multiRunState.Load()
		if old>>16 == 0 {
			return false
		}
		if n.multiRunState.CompareAndSwap(old, old&0xFFFF) {
			return true
		}
	}
}

type worker struct {
	nextJob       atomicNodePtr
	ring          *container.Ring
	ringMu        sync.Mutex
	event         *gate
	coreNumber    uint32
	isReadyToExit boolFlag
}

func newWorker(coreNumber uint32) *worker {
	return &worker{
		ring:       container.NewRing(constants.LocalRingCapacity),
		event:      newGate(),
		coreNumber: coreNumber,
	}
}

func (w *worker) pushLocalRing(n *jobQueueNode) bool {
	w.ringMu.Lock()
	defer w.ringMu.Unlock()
	return w.ring.Insert(n)
}

func (w *worker) popLocalRing() *jobQueueNode {
	w.ringMu.Lock()
	defer w.ringMu.Unlock()
	v, ok := w.ring.RemoveFront()
	if !ok {
		return nil
	}
	return v.(*jobQueueNode)
}

// Queue drains a Graph across a fixed pool of workers, honoring
// priority, FIFO-within-priority, multi-run fanout, core affinity, and
// dependency release ordering.
type Queue struct {
	graph *Graph

	mu sync.Mutex
	pq *container.PriorityQueue

	workers        []*worker
	mainThreadCore uint32 // AnyCore if no worker is mainthread-affine

	observer interfaces.Observer

	wg   sync.WaitGroup
	done chan struct{}
}

// Config configures a Queue's worker pool and metrics collaborator.
type Config struct {
	WorkerCount int

	// MainThreadCore, if not AnyCore, names the worker index that polls
	// with a short sleep instead of parking, so a caller driving that
	// worker inline from a frame loop is never blocked indefinitely.
	MainThreadCore uint32

	// Observer, if set, receives dispatch/complete/fanout observations
	// from the worker hot paths. Left nil, the queue reports nothing.
	Observer interfaces.Observer
}

// NewQueue builds a worker pool over graph per cfg.
func NewQueue(graph *Graph, cfg Config) *Queue {
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}
	q := &Queue{
		graph:          graph,
		pq:             container.NewPriorityQueue(),
		workers:        make([]*worker, workerCount),
		mainThreadCore: cfg.MainThreadCore,
		observer:       cfg.Observer,
		done:           make(chan struct{}),
	}
	for i := range q.workers {
		q.workers[i] = newWorker(uint32(i))
	}

	for _, n := range graph.nodes {
		if n.runnableAtBuild() {
			q.enqueue(n)
		}
	}
	if graph.finalNode.runnableAtBuild() {
		q.enqueue(graph.finalNode)
	}

	return q
}

func (q *Queue) enqueue(n *jobQueueNode) {
	n.readyAt.Store(time.Now().UnixNano())
	q.mu.Lock()
	n.pqItem = q.pq.Insert(n.priority, n)
	q.mu.Unlock()
	q.wakeAll()

	if q.observer != nil && n.totalRuns > 1 {
		q.observer.ObserveMultiRunFanout(uint64(n.totalRuns - 1))
	}
}

func (q *Queue) wakeAll() {
	for _, w := range q.workers {
		w.event.broadcast()
	}
}

// Run starts every worker goroutine and blocks until the graph's
// synthetic final node has resolved, releasing all workers.
func (q *Queue) Run() {
	q.wg.Add(len(q.workers))
	for _, w := range q.workers {
		w := w
		go func() {
			defer q.wg.Done()
			q.processLoop(w)
		}()
	}
	q.wg.Wait()
}

const (
	acquireGot = iota
	acquireContinue
	acquireRequiresWait
)

func (q *Queue) processLoop(w *worker) {
	var prev *jobQueueNode
	var prevStart time.Time
	for {
		if prev != nil {
			q.onJobFinish(prev, w.coreNumber, prevStart)
			prev = nil
		}
		if w.isReadyToExit.get() {
			return
		}

		node, status := q.acquireNextJob(w)
		switch status {
		case acquireGot:
			runIdx := node.claimRunIndex()
			prevStart = time.Now()
			node.job(runIdx)
			prev = node
		case acquireContinue:
			// handed off to another worker by core affinity; retry.
		case acquireRequiresWait:
			q.waitForJob(w)
		}
	}
}

// claimRunIndex hands out a distinct 0-based index per claimed run of
// a multi-run job, so a job body can shard its work deterministically.
func (n *jobQueueNode) claimRunIndex() int {
	return int(n.nextRunIndex.Add(1) - 1)
}

func (q *Queue) acquireNextJob(w *worker) (*jobQueueNode, int) {
	if cur := w.nextJob.load(); cur != nil && cur != blockedNode {
		next := w.popLocalRing()
		w.nextJob.store(next)
		q.observeDispatch(cur)
		return cur, acquireGot
	}

	q.mu.Lock()
	if q.pq.IsEmpty() {
		q.mu.Unlock()
		return nil, acquireRequiresWait
	}
	item := q.pq.Peek()
	node := item.Value.(*jobQueueNode)
	stillQueued := node.claimRun()
	if !stillQueued {
		q.pq.RemoveFront()
		node.pqItem = nil
	}
	q.mu.Unlock()

	if node.coreNumber != AnyCore && int(node.coreNumber) != int(w.coreNumber) && int(node.coreNumber) < len(q.workers) {
		q.queueNextJobByCore(node, node.coreNumber)
		return nil, acquireContinue
	}
	q.observeDispatch(node)
	return node, acquireGot
}

// observeDispatch reports a job being handed to a worker, with its
// queue-wait latency. Multi-run fanout is reported separately, when the
// node becomes ready (enqueue, removeDependencies).
func (q *Queue) observeDispatch(node *jobQueueNode) {
	if q.observer == nil {
		return
	}
	waitNs := time.Now().UnixNano() - node.readyAt.Load()
	if waitNs < 0 {
		waitNs = 0
	}
	q.observer.ObserveJobDispatch(node.priority, uint64(waitNs))
}

func (q *Queue) queueNextJobByCore(node *jobQueueNode, coreNumber uint32) {
	target := q.workers[coreNumber]

	old := target.nextJob.load()
	if old == nil || old == blockedNode {
		if target.nextJob.cas(old, node) {
			if old == blockedNode {
				target.event.broadcast()
			}
			return
		}
	}

	if target.pushLocalRing(node) {
		return
	}

	// Local ring full: fall back to the shared queue rather than
	// dropping the job.
	q.mu.Lock()
	node.pqItem = q.pq.Insert(node.priority, node)
	q.mu.Unlock()
	q.wakeAll()
}

func (q *Queue) waitForJob(w *worker) {
	if q.mainThreadCore != AnyCore && w.coreNumber == q.mainThreadCore {
		time.Sleep(constants.WorkerWaitPollInterval)
		return
	}

	ch := w.event.current()
	w.nextJob.cas(nil, blockedNode)
	if cur := w.nextJob.load(); cur != nil && cur != blockedNode {
		return // a job was handed off to this worker before it parked
	}
	<-ch
}

func (q *Queue) onJobFinish(node *jobQueueNode, core uint32, startedAt time.Time) {
	if q.observer != nil {
		q.observer.ObserveJobComplete(uint16(core), uint64(time.Since(startedAt)))
	}

	// Complete-once eviction is an independent step from the allDone
	// decision below: once any run has finished, no further run of this
	// node should start, so drop it from the ready queue ahead of time
	// rather than waiting for every outstanding run to drain naturally.
	// It runs first so that, when no other run is active, this finish
	// is the last one. Dependents still only release once finishRun
	// reports allDone.
	if node.isMultiRunCompleteOnce {
		q.mu.Lock()
		if node.forceRemoveForCompleteOnce() && node.pqItem != nil {
			q.pq.Remove(node.pqItem)
			node.pqItem = nil
		}
		q.mu.Unlock()
	}

	if allDone := node.finishRun(); allDone {
		q.removeDependencies(node)
	}
}

func (q *Queue) removeDependencies(node *jobQueueNode) {
	q.mu.Lock()
	for _, link := range node.dependentList {
		dep := link.node
		remaining := dep.parentCount.Add(^uint32(0)) // -1, returns the new count
		if remaining == 0 {
			dep.readyAt.Store(time.Now().UnixNano())
			dep.pqItem = q.pq.Insert(dep.priority, dep)
			if q.observer != nil && dep.totalRuns > 1 {
				q.observer.ObserveMultiRunFanout(uint64(dep.totalRuns - 1))
			}
		}
	}
	node.parentCount.Store(constants.MultiRunCompletedTombstone)
	node.dependentList = nil
	q.mu.Unlock()
	q.wakeAll()

	if node == q.graph.finalNode {
		q.setReadyToExit()
	}
}

func (q *Queue) setReadyToExit() {
	for _, w := range q.workers {
		w.isReadyToExit.set(true)
		w.nextJob.cas(nil, blockedNode)
		w.event.broadcast()
	}
	close(q.done)
}

// Done returns a channel closed once the graph's final node has
// resolved and every worker has been released.
func (q *Queue) Done() <-chan struct{} { return q.done }
