// Package asynctask implements AsyncQueue, a multi-priority task queue
// consumed by a pool of worker threads, supporting synchronous
// caller-blocking tasks, cooperative cancellation, upward priority
// promotion, and task rescheduling (a task's exe function can ask to
// be re-run rather than treated as complete).
package asynctask

import (
	"sync/atomic"

	"github.com/vanerun/ukern/internal/container"
)

// ResultCode is what an exe function (and therefore its paired result
// function) reports about one run of a task.
type ResultCode int

const (
	Success ResultCode = iota
	Rescheduled
)

// ExeFunc performs a task's work and reports how it finished.
type ExeFunc func(userData interface{}) ResultCode

// TaskResultInvokeInfo is delivered to a task's ResultFunc after each
// run of its ExeFunc.
type TaskResultInvokeInfo struct {
	Result      ResultCode
	IsCancelled bool
	UserData    interface{}
}

// ResultFunc observes a task's completion or rescheduling.
type ResultFunc func(info TaskResultInvokeInfo)

// PushTaskInfo describes a task to enqueue.
type PushTaskInfo struct {
	ExeFunc    ExeFunc // required
	ResultFunc ResultFunc
	UserData   interface{}
	Priority   int  // 0 is most urgent
	IsSync     bool // PushTask blocks the caller until the task resolves
}

// Task is a queued unit of work. Priority 0 is the tightest; a task
// can only have its priority raised (moved toward 0), never lowered.
type Task struct {
	exeFn    ExeFunc
	resultFn ResultFunc
	userData interface{}

	priority  int // guarded by queue.mu
	cancelled atomic.Bool
	watcher   chan struct{}

	queue    *AsyncQueue
	listNode *container.ListNode // guarded by queue.mu; nil while not queued
}

// Cancel atomically marks the task cancelled. If the task is currently
// running, the worker observes this when it returns and reports
// IsCancelled in the paired ResultFunc call; it does not interrupt a
// running ExeFunc.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

// IsCancelled reports whether Cancel has been called.
func (t *Task) IsCancelled() bool {
	return t.cancelled.Load()
}

// Wait blocks until the task completes (or is dropped after a
// cancelled reschedule). Intended for IsSync tasks, but valid for any
// task.
func (t *Task) Wait() {
	<-t.watcher
}

// Priority returns the task's current priority.
func (t *Task) Priority() int {
	t.queue.mu.Lock()
	defer t.queue.mu.Unlock()
	return t.priority
}
