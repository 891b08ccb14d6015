package ukern

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanerun/ukern/internal/constants"
	"github.com/vanerun/ukern/internal/handle"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	return NewScheduler(&Config{CoreCount: 4, HandleTableCapacity: 64})
}

func TestCreateThreadRunsAndExits(t *testing.T) {
	s := newTestScheduler(t)

	var ran bool
	var mu sync.Mutex
	h, err := s.CreateThread(func(arg interface{}) {
		mu.Lock()
		ran = true
		mu.Unlock()
	}, nil, 0, constants.AnyCore)
	require.NoError(t, err)

	require.NoError(t, s.ExitThread(h))

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, ran)
}

func TestCreateThreadInvalidPriorityAllocatesNothing(t *testing.T) {
	s := newTestScheduler(t)
	before := s.handles.Len()

	_, err := s.CreateThread(func(arg interface{}) {}, nil, 3, constants.AnyCore)
	require.Error(t, err)

	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, CodeInvalidPriority, uerr.Code)
	assert.Equal(t, before, s.handles.Len())
}

func TestCreateThreadInvalidCoreID(t *testing.T) {
	s := newTestScheduler(t)
	_, err := s.CreateThread(func(arg interface{}) {}, nil, 0, 99)
	require.Error(t, err)

	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, CodeInvalidCoreID, uerr.Code)
}

func TestExitThreadUnknownHandle(t *testing.T) {
	s := newTestScheduler(t)
	err := s.ExitThread(handle.Invalid)
	require.Error(t, err)

	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, CodeInvalidHandle, uerr.Code)
}

func TestSetPrioritySameValue(t *testing.T) {
	s := newTestScheduler(t)
	done := make(chan struct{})
	h, err := s.CreateThread(func(arg interface{}) { <-done }, nil, 1, constants.AnyCore)
	require.NoError(t, err)

	obj, ok := s.handles.GetObjectByHandle(h)
	require.True(t, ok)
	fls := obj.(*FLS)

	err = s.SetPriority(fls, 1)
	require.Error(t, err)
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, CodeSamePriority, uerr.Code)

	require.NoError(t, s.SetPriority(fls, 2))
	assert.Equal(t, int32(2), fls.Priority())

	close(done)
	require.NoError(t, s.ExitThread(h))
}

func TestSetCoreMaskAndActivity(t *testing.T) {
	s := newTestScheduler(t)
	done := make(chan struct{})
	h, err := s.CreateThread(func(arg interface{}) { <-done }, nil, 0, constants.AnyCore)
	require.NoError(t, err)

	obj, _ := s.handles.GetObjectByHandle(h)
	fls := obj.(*FLS)

	err = s.SetCoreMask(fls, constants.DefaultCoreIDMask)
	require.Error(t, err)

	require.NoError(t, s.SetCoreMask(fls, 0b0101))
	assert.Equal(t, uint64(0b0101), fls.CoreMask())

	err = s.SetActivity(fls, Schedulable)
	require.Error(t, err)

	require.NoError(t, s.SetActivity(fls, SuspendedActivity))
	assert.Equal(t, SuspendedActivity, fls.Activity())

	close(done)
	require.NoError(t, s.ExitThread(h))
}

func TestRunnableFiberAccounting(t *testing.T) {
	s := newTestScheduler(t)
	release := make(chan struct{})

	h, err := s.CreateThread(func(arg interface{}) { <-release }, nil, 0, constants.AnyCore)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return s.RunnableFibers() == 1 }, time.Second, time.Millisecond)

	close(release)
	require.NoError(t, s.ExitThread(h))

	assert.Eventually(t, func() bool { return s.RunnableFibers() == 0 }, time.Second, time.Millisecond)
}
