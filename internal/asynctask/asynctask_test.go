package asynctask

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPushTaskRunsAsync(t *testing.T) {
	q := NewAsyncQueue(4)
	q.StartWorkers(2)
	defer q.Stop()

	var ran atomic.Bool
	task := q.PushTask(PushTaskInfo{
		ExeFunc: func(interface{}) ResultCode { ran.Store(true); return Success },
	})
	task.Wait()

	if !ran.Load() {
		t.Error("expected task to have run")
	}
}

func TestPushTaskSyncBlocksCaller(t *testing.T) {
	q := NewAsyncQueue(4)
	q.StartWorkers(1)
	defer q.Stop()

	var ran atomic.Bool
	q.PushTask(PushTaskInfo{
		ExeFunc: func(interface{}) ResultCode {
			time.Sleep(10 * time.Millisecond)
			ran.Store(true)
			return Success
		},
		IsSync: true,
	})

	if !ran.Load() {
		t.Error("expected synchronous PushTask to block until the task ran")
	}
}

func TestPriorityOrdering(t *testing.T) {
	q := NewAsyncQueue(3)
	// Block the single worker so both tasks queue up before either runs.
	block := make(chan struct{})
	q.StartWorkers(1)
	defer q.Stop()

	q.PushTask(PushTaskInfo{
		ExeFunc:  func(interface{}) ResultCode { <-block; return Success },
		Priority: 2,
	})

	var order []int
	done := make(chan struct{}, 2)
	low := q.PushTask(PushTaskInfo{
		ExeFunc:  func(interface{}) ResultCode { order = append(order, 1); done <- struct{}{}; return Success },
		Priority: 1,
	})
	high := q.PushTask(PushTaskInfo{
		ExeFunc:  func(interface{}) ResultCode { order = append(order, 0); done <- struct{}{}; return Success },
		Priority: 0,
	})

	close(block)
	low.Wait()
	high.Wait()

	if len(order) != 2 || order[0] != 0 || order[1] != 1 {
		t.Errorf("order = %v, want [0 1] (priority 0 before priority 1)", order)
	}
}

func TestCancelObservedByResultFunc(t *testing.T) {
	q := NewAsyncQueue(2)
	q.StartWorkers(1)
	defer q.Stop()

	started := make(chan struct{})
	var gotCancelled atomic.Bool
	resultDone := make(chan struct{})

	task := q.PushTask(PushTaskInfo{
		ExeFunc: func(interface{}) ResultCode {
			close(started)
			time.Sleep(20 * time.Millisecond)
			return Success
		},
		ResultFunc: func(info TaskResultInvokeInfo) {
			gotCancelled.Store(info.IsCancelled)
			close(resultDone)
		},
	})

	<-started
	task.Cancel()

	select {
	case <-resultDone:
	case <-time.After(time.Second):
		t.Fatal("result func never invoked")
	}

	if !gotCancelled.Load() {
		t.Error("expected result func to observe IsCancelled=true")
	}
}

func TestRescheduledTaskRunsAgain(t *testing.T) {
	q := NewAsyncQueue(2)
	q.StartWorkers(1)
	defer q.Stop()

	var runs atomic.Int32
	task := q.PushTask(PushTaskInfo{
		ExeFunc: func(interface{}) ResultCode {
			if runs.Add(1) < 3 {
				return Rescheduled
			}
			return Success
		},
	})
	task.Wait()

	if runs.Load() != 3 {
		t.Errorf("runs = %d, want 3", runs.Load())
	}
}

func TestChangePriorityOnlyUpward(t *testing.T) {
	q := NewAsyncQueue(4)
	q.StartWorkers(1)
	defer q.Stop()

	task := q.PushTask(PushTaskInfo{
		ExeFunc: func(interface{}) ResultCode { return Success },
		Priority: 2,
	})
	task.Wait()

	task2 := &Task{queue: q, priority: 2, watcher: make(chan struct{})}
	if err := q.ChangePriority(task2, 3); err == nil {
		t.Error("expected downward priority change to be rejected")
	}
	if err := q.ChangePriority(task2, 0); err != nil {
		t.Errorf("expected upward priority change to succeed, got %v", err)
	}
	if task2.Priority() != 0 {
		t.Errorf("Priority() = %d, want 0", task2.Priority())
	}
}

func TestForceCalcSyncOnThreadDrainsSynchronously(t *testing.T) {
	q := NewAsyncQueue(3)
	// No workers started: nothing will run unless forced synchronously.

	var ran atomic.Bool
	q.PushTask(PushTaskInfo{
		ExeFunc:  func(interface{}) ResultCode { ran.Store(true); return Success },
		Priority: 1,
	})

	q.ForceCalcSyncOnThread(2)

	if !ran.Load() {
		t.Error("expected ForceCalcSyncOnThread to run the queued task inline")
	}
}
