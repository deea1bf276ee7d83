package models

import (
	"context"
	"sync"
)

// Result is the outcome of an asynchronous job.
type Result[T any] struct {
	Data T
	Err  error
}

// Future is a handle on a job submitted to the scheduler.
type Future[T any] struct {
	once   sync.Once
	done   chan struct{}
	result T
	cancel context.CancelFunc
}

// NewFuture creates an unresolved future. cancel is invoked by Stop.
func NewFuture[T any](cancel context.CancelFunc) *Future[T] {
	return &Future[T]{
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Resolve sets the result. Only the first call has an effect.
func (f *Future[T]) Resolve(result T) {
	f.once.Do(func() {
		f.result = result
		close(f.done)
	})
}

// C is closed when the future is resolved.
func (f *Future[T]) C() <-chan struct{} {
	return f.done
}

// Poll returns the result and true if the future is resolved.
func (f *Future[T]) Poll() (T, bool) {
	select {
	case <-f.done:
		return f.result, true
	default:
		var zero T
		return zero, false
	}
}

func (f *Future[T]) IsResolved() bool {
	_, ok := f.Poll()
	return ok
}

// Wait blocks until the future is resolved or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Stop cancels the job's context. The job still resolves the future.
func (f *Future[T]) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
}
