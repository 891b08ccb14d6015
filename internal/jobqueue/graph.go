// Package jobqueue implements the dependency-aware parallel job queue:
// callers describe a DAG of jobs with priorities and core affinities,
// BuildJobGraph materializes it into a runnable form, and a pool of
// worker goroutines drains it respecting priority, FIFO-within-priority,
// multi-run fanout, and dependency release ordering.
package jobqueue

import (
	"sync/atomic"

	"github.com/vanerun/ukern/internal/container"
)

// AnyCore means the job may run on any worker.
const AnyCore uint32 = 0xFFFFFFFF

// JobFunc is the work a node performs. It receives a distinct 0-based
// run index for each run of a multi-run node, so the caller can shard
// work across runs (run index 0 for an ordinary single-run job).
type JobFunc func(runIndex int)

// JobGraphNode is the caller-supplied description of one DAG node
// before BuildJobGraph resolves parent/child pointers.
type JobGraphNode struct {
	Job                     JobFunc
	Priority                uint16
	CoreNumber              uint32 // AnyCore or a specific worker index
	MultiRunCount           uint16 // number of parallel runs, minimum 1
	IsMultiRunCompleteOnce  bool   // true: first run to finish stops further runs from starting
}

// Edge declares that Dependent may not run until Parent has fully
// completed (all its runs, if multi-run).
type Edge struct {
	Parent    int
	Dependent int
}

// dependentLink is one entry in a node's release list: the dependent
// node whose parentCount removeDependencies decrements.
type dependentLink struct {
	node *jobQueueNode
}

// jobQueueNode is the materialized, runnable form of a JobGraphNode.
type jobQueueNode struct {
	job        JobFunc
	priority   uint16
	coreNumber uint32

	// multiRunState packs {multi_run_count: high16, active_running_count: low16}.
	multiRunState          atomic.Uint32
	isMultiRunCompleteOnce bool

	// totalRuns is the node's configured MultiRunCount (minimum 1), kept
	// alongside multiRunState so fanout can be reported when the node
	// becomes ready without racing the packed counter.
	totalRuns uint16

	// parentCount counts unresolved parents; 0 means runnable,
	// constants.MultiRunCompletedTombstone means already released.
	parentCount atomic.Uint32

	dependentList []dependentLink

	// pqItem tracks this node's position in the shared priority queue
	// while queued, for ForceRemoveForCompleteOnce's out-of-order removal.
	// Guarded by Queue.mu.
	pqItem *container.PriorityItem

	// nextRunIndex hands out a distinct 0-based index to each claimed
	// run of a multi-run job.
	nextRunIndex atomic.Int32

	// readyAt is the UnixNano timestamp at which this node most recently
	// became runnable (enqueued at build time, or released by its last
	// parent), used to report queue-wait latency on dispatch.
	readyAt atomic.Int64
}

func newJobQueueNode(n JobGraphNode) *jobQueueNode {
	runCount := n.MultiRunCount
	if runCount == 0 {
		runCount = 1
	}
	node := &jobQueueNode{
		job:                    n.Job,
		priority:               n.Priority,
		coreNumber:             n.CoreNumber,
		isMultiRunCompleteOnce: n.IsMultiRunCompleteOnce,
		totalRuns:              runCount,
	}
	node.multiRunState.Store(uint32(runCount) << 16)
	return node
}

// Graph is the materialized DAG: resolved node pointers, dependency
// edges wired as forward pointers, and a synthetic final node that
// every leaf (a node with no outgoing edge) implicitly depends on.
type Graph struct {
	nodes     []*jobQueueNode
	finalNode *jobQueueNode
}

// BuildJobGraph resolves nodes and edges into a runnable Graph. Edge
// indices refer to positions in nodes. Every node with no outgoing
// edge gains an implicit edge to the synthetic final node, so the
// graph's completion is always observable by waiting on it.
func BuildJobGraph(nodes []JobGraphNode, edges []Edge) *Graph {
	g := &Graph{nodes: make([]*jobQueueNode, len(nodes))}
	for i, n := range nodes {
		g.nodes[i] = newJobQueueNode(n)
	}
	g.finalNode = newJobQueueNode(JobGraphNode{Job: func(int) {}, CoreNumber: AnyCore})

	hasOutgoing := make([]bool, len(nodes))
	for _, e := range edges {
		parent := g.nodes[e.Parent]
		dependent := g.nodes[e.Dependent]
		parent.dependentList = append(parent.dependentList, dependentLink{node: dependent})
		dependent.parentCount.Add(1)
		hasOutgoing[e.Parent] = true
	}

	for i, n := range g.nodes {
		if !hasOutgoing[i] {
			n.dependentList = append(n.dependentList, dependentLink{node: g.finalNode})
			g.finalNode.parentCount.Add(1)
		}
	}
	if len(nodes) == 0 {
		g.finalNode.parentCount.Store(0)
	}

	return g
}

// runnableAtBuild reports whether a node has zero parents and can be
// enqueued immediately when the queue starts.
func (n *jobQueueNode) runnableAtBuild() bool {
	return n.parentCount.Load() == 0
}
