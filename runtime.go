package ukern

import (
	"context"
	"fmt"
	"time"

	"github.com/vanerun/ukern/internal/asynctask"
	"github.com/vanerun/ukern/internal/interfaces"
	"github.com/vanerun/ukern/internal/iodevice"
	"github.com/vanerun/ukern/internal/jobqueue"
	"github.com/vanerun/ukern/internal/logging"
	"github.com/vanerun/ukern/internal/msgqueue"
	"github.com/vanerun/ukern/internal/resource"
	fiber "github.com/vanerun/ukern/internal/ukern"
)

// Config configures a Runtime's subsystems. Every field has a documented
// default, applied once by New and never re-read afterward.
type Config struct {
	// Scheduler configures the fiber scheduler; nil selects
	// fiber.DefaultConfig().
	Scheduler *fiber.Config

	// MessageQueueCapacity sizes the service message queue's fixed ring.
	MessageQueueCapacity int

	// ResourceManager configures the async resource pipeline. FileDevice
	// defaults to the host filesystem (internal/iodevice.OSFileDevice)
	// when left nil; Heap has no sensible default and is required by any
	// caller that actually invokes the resource pipeline.
	ResourceManager resource.Config

	Logger   interfaces.Logger
	Observer Observer
}

// DefaultConfig returns a Config with sane defaults for every subsystem
// except the resource manager's storage collaborators, which have no
// sensible default and must be supplied by the caller if used.
func DefaultConfig() Config {
	return Config{
		MessageQueueCapacity: 64,
	}
}

// Runtime wires the fiber scheduler, service message queue, dependency
// job queue, and async resource manager into one lifecycle, mirroring
// the teacher's Device: a single struct owning every subsystem's
// lifetime, created via a constructor and torn down via Stop.
type Runtime struct {
	cfg Config

	scheduler *fiber.Scheduler
	messages  *msgqueue.Queue
	resources *resource.Manager

	metrics  *Metrics
	observer Observer
	logger   interfaces.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New builds a Runtime from cfg without starting any worker goroutines;
// call Start to bring the scheduler and resource manager's queues up.
func New(cfg Config) (*Runtime, error) {
	if cfg.MessageQueueCapacity <= 0 {
		cfg.MessageQueueCapacity = 64
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	metrics := NewMetrics()
	observer := cfg.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	schedCfg := cfg.Scheduler
	if schedCfg == nil {
		schedCfg = fiber.DefaultConfig()
	}
	if schedCfg.Logger == nil {
		schedCfg.Logger = logger
	}
	if schedCfg.Observer == nil {
		schedCfg.Observer = observer
	}

	resCfg := cfg.ResourceManager
	if resCfg.FileDevice == nil {
		resCfg.FileDevice = iodevice.New("")
	}
	if resCfg.Logger == nil {
		resCfg.Logger = logger
	}
	if resCfg.Observer == nil {
		resCfg.Observer = observer
	}

	rt := &Runtime{
		cfg:       cfg,
		scheduler: fiber.NewScheduler(schedCfg),
		messages:  msgqueue.NewQueue(cfg.MessageQueueCapacity),
		resources: resource.NewManager(resCfg),
		metrics:   metrics,
		observer:  observer,
		logger:    logger,
	}
	rt.ctx, rt.cancel = context.WithCancel(context.Background())
	return rt, nil
}

// Start launches the resource manager's worker pools. The fiber
// scheduler and message queue need no separate startup: fibers run as
// soon as CreateThread is called, and the message queue is ready the
// moment it's constructed.
func (r *Runtime) Start() error {
	if r.started {
		return nil
	}
	r.started = true
	r.resources.Start()
	r.logger.Printf("runtime: started (cores=%d)", r.scheduler.CoreCount())
	return nil
}

// Stop tears down the resource manager's worker pools and cancels the
// runtime's internal context. It does not wait for in-flight fibers
// created via Scheduler().CreateThread to exit; join those explicitly
// via ExitThread first if a clean shutdown requires it.
func (r *Runtime) Stop() error {
	if !r.started {
		return nil
	}
	r.started = false
	r.resources.Stop()
	r.metrics.Stop()
	r.cancel()
	return nil
}

// Scheduler returns the fiber scheduler.
func (r *Runtime) Scheduler() *fiber.Scheduler { return r.scheduler }

// Messages returns the service message queue.
func (r *Runtime) Messages() *msgqueue.Queue { return r.messages }

// Resources returns the async resource manager.
func (r *Runtime) Resources() *resource.Manager { return r.resources }

// Metrics returns the runtime's metrics counters.
func (r *Runtime) Metrics() *Metrics { return r.metrics }

// MetricsSnapshot returns a point-in-time snapshot of runtime metrics.
func (r *Runtime) MetricsSnapshot() MetricsSnapshot { return r.metrics.Snapshot() }

// IsRunning reports whether Start has been called without a matching Stop.
func (r *Runtime) IsRunning() bool { return r.started }

// JobGraphRun describes one dependency job graph to execute to completion.
type JobGraphRun struct {
	Nodes          []jobqueue.JobGraphNode
	Edges          []jobqueue.Edge
	WorkerCount    int
	MainThreadCore uint32
}

// RunJobGraph builds nodes/edges into a jobqueue.Graph, drains it with a
// fresh worker pool, and blocks until every node (including the
// synthetic final node) has completed or ctx is cancelled. Each call
// gets its own Queue: job graphs are a unit of work with a beginning
// and an end, unlike the long-lived scheduler/resource manager.
func (r *Runtime) RunJobGraph(ctx context.Context, run JobGraphRun) error {
	workerCount := run.WorkerCount
	if workerCount <= 0 {
		workerCount = r.scheduler.CoreCount()
	}

	graph := jobqueue.BuildJobGraph(run.Nodes, run.Edges)
	q := jobqueue.NewQueue(graph, jobqueue.Config{
		WorkerCount:    workerCount,
		MainThreadCore: run.MainThreadCore,
		Observer:       r.observer,
	})

	go q.Run()

	select {
	case <-q.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ukern: RunJobGraph: %w", ctx.Err())
	}
}

// PushAsyncTask is a convenience for submitting one-off work to the
// resource manager's control queue, e.g. a per-frame tick callback that
// isn't tied to any specific ResourceUnit. Most callers should prefer
// Resources().Tick() for the deferred reference-count sweep instead.
func (r *Runtime) PushAsyncTask(priority int, fn func()) *asynctask.Task {
	return r.resources.PushControlTask(priority, fn)
}

// Uptime returns how long the runtime has been running.
func (r *Runtime) Uptime() time.Duration {
	snap := r.metrics.Snapshot()
	return time.Duration(snap.UptimeNs)
}
