// Package scheduler runs a task periodically: first after an initial delay,
// then a fixed period after each invocation settles. Invocations never overlap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNilTask is returned by New when no task is given.
var ErrNilTask = errors.New("scheduler: task must not be nil")

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// State of a Scheduler.
type State string

const (
	StateInit       State = "init"
	StateStarted    State = "started"
	StateTerminated State = "terminated"
)

// Scheduler is a cancellable periodic task runner.
type Scheduler struct {
	task       Task
	period     time.Duration
	firstDelay time.Duration
	logger     *zap.Logger

	mu     sync.Mutex
	state  State
	stopCh chan struct{}
	done   chan struct{}
}

// New creates a scheduler in the init state.
func New(task Task, period, firstDelay time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if task == nil {
		return nil, ErrNilTask
	}
	if period <= 0 {
		return nil, fmt.Errorf("scheduler: period must be positive, got %s", period)
	}
	if firstDelay < 0 {
		firstDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		task:       task,
		period:     period,
		firstDelay: firstDelay,
		logger:     logger,
		state:      StateInit,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start launches the loop. It is a no-op unless the scheduler is in the init state.
// ctx is handed to every task invocation; cancelling it also ends the loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInit {
		return
	}
	s.state = StateStarted
	go s.run(ctx)
}

// Stop prevents further invocations and cancels the pending wait. It does not
// interrupt a running invocation and may be called from inside the task.
// Calling Stop before Start leaves the scheduler permanently terminated.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateTerminated:
		return
	case StateInit:
		close(s.done)
	}
	s.state = StateTerminated
	close(s.stopCh)
}

// Shutdown stops the scheduler and waits for the current invocation to settle.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Stop()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the loop has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(s.firstDelay)
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// Stop may have raced with the timer firing.
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.invoke(ctx)
		timer.Reset(s.period)
	}
}

func (s *Scheduler) invoke(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	if err := s.task(ctx); err != nil {
		s.logger.Error("scheduled task failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return
	}
	s.logger.Debug("scheduled task finished", zap.Duration("took", time.Since(start)))
}
