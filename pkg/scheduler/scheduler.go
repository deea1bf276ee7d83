package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kubev2v/hypervisor-collector/internal/models"
)

var ErrSchedulerClosed = errors.New("scheduler closed")

// Work is a unit of work run by the scheduler.
type Work func(ctx context.Context) (any, error)

// Scheduler runs work concurrently with at most n jobs in flight.
type Scheduler struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewScheduler(workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sem:    semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddWork queues w and returns a future resolved with its outcome.
func (s *Scheduler) AddWork(w Work) *models.Future[models.Result[any]] {
	return s.AddWorkContext(context.Background(), w)
}

// AddWorkContext queues w. The job context is cancelled when ctx is done,
// when the future is stopped or when the scheduler is closed.
func (s *Scheduler) AddWorkContext(ctx context.Context, w Work) *models.Future[models.Result[any]] {
	jobCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	f := models.NewFuture[models.Result[any]](cancel)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stop()
		cancel()
		f.Resolve(models.Result[any]{Err: ErrSchedulerClosed})
		return f
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer stop()
		defer cancel()

		if err := s.sem.Acquire(jobCtx, 1); err != nil {
			f.Resolve(models.Result[any]{Err: err})
			return
		}
		defer s.sem.Release(1)

		data, err := run(jobCtx, w)
		f.Resolve(models.Result[any]{Data: data, Err: err})
	}()

	return f
}

// Close cancels all pending and running work and waits for it to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	zap.S().Named("scheduler").Debug("scheduler closed")
}

func run(ctx context.Context, w Work) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("work panicked: %v", r)
		}
	}()
	return w(ctx)
}
