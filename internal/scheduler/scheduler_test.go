package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func shutdown(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestNew_NilTask(t *testing.T) {
	_, err := New(nil, time.Second, 0, nil)
	assert.ErrorIs(t, err, ErrNilTask)
}

func TestNew_NonPositivePeriod(t *testing.T) {
	_, err := New(func(context.Context) error { return nil }, 0, 0, nil)
	assert.Error(t, err)
}

func TestScheduler_StopBeforeFirstDelay(t *testing.T) {
	var calls atomic.Int32
	s, err := New(func(context.Context) error {
		calls.Add(1)
		return nil
	}, 10*time.Millisecond, 50*time.Millisecond, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	s.Stop()
	shutdown(t, s)

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.Equal(t, StateTerminated, s.State())
}

func TestScheduler_StopBeforeStartIsTerminal(t *testing.T) {
	var calls atomic.Int32
	s, err := New(func(context.Context) error {
		calls.Add(1)
		return nil
	}, time.Millisecond, 0, nil)
	require.NoError(t, err)

	s.Stop()
	s.Stop()
	s.Start(context.Background())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed after stop-before-start")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.Equal(t, StateTerminated, s.State())
}

func TestScheduler_InvocationsNeverOverlap(t *testing.T) {
	var active, overlaps, calls atomic.Int32
	s, err := New(func(context.Context) error {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(3 * time.Millisecond)
		active.Add(-1)
		calls.Add(1)
		return nil
	}, time.Millisecond, 0, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	s.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() >= 5 }, 2*time.Second, time.Millisecond)
	shutdown(t, s)

	assert.Zero(t, overlaps.Load())
}

func TestScheduler_StopDuringTickLetsItFinish(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls, finished atomic.Int32

	s, err := New(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		finished.Add(1)
		return nil
	}, time.Millisecond, 0, nil)
	require.NoError(t, err)
	s.Start(context.Background())

	<-started
	s.Stop()

	shutdownErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		shutdownErr <- s.Shutdown(ctx)
	}()

	select {
	case <-s.Done():
		t.Fatal("loop exited while the task was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-shutdownErr)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), finished.Load())
}

func TestScheduler_ErrorsAndPanicsDoNotStopLoop(t *testing.T) {
	var calls atomic.Int32
	s, err := New(func(context.Context) error {
		switch calls.Add(1) {
		case 1:
			return errors.New("store unavailable")
		case 2:
			panic("boom")
		}
		return nil
	}, time.Millisecond, 0, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() >= 4 }, 2*time.Second, time.Millisecond)
	shutdown(t, s)
}

func TestScheduler_StopFromInsideTask(t *testing.T) {
	var calls atomic.Int32
	var s *Scheduler
	s, err := New(func(context.Context) error {
		if calls.Add(1) == 2 {
			s.Stop()
		}
		return nil
	}, time.Millisecond, 0, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestScheduler_ContextCancelEndsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := New(func(context.Context) error { return nil }, time.Millisecond, 0, nil)
	require.NoError(t, err)

	s.Start(ctx)
	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop kept running after context cancel")
	}
	s.Stop()
}
