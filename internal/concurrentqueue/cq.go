package concurrentqueue

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ConcurrentQueue runs submitted functions concurrently under a fixed limit.
// The pipelines use it to drive one reader per input file without spawning an
// unbounded number of goroutines.
type ConcurrentQueue interface {
	Submit(fn func() error) error
	Wait() error
}

// concurrentQueue limits concurrency with a semaphore and keeps the first
// error; the internal context is then canceled so later Submit calls return
// the error instead of starting more tasks. Running tasks are not stopped.
type concurrentQueue struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	sem    chan struct{}
	wg     sync.WaitGroup
	errCh  chan error
}

// NewConcurrentQueue creates a new concurrent queue with the given
// concurrency limit.
func NewConcurrentQueue(ctx context.Context, concurrencyLimit int) ConcurrentQueue {
	ctx, cancel := context.WithCancelCause(ctx)
	return &concurrentQueue{
		ctx:    ctx,
		cancel: cancel,
		sem:    make(chan struct{}, concurrencyLimit),
		errCh:  make(chan error, 1),
	}
}

// Submit adds a function to the queue to be executed concurrently. It blocks
// while the concurrency limit is saturated.
func (cq *concurrentQueue) Submit(fn func() error) error {
	select {
	case cq.sem <- struct{}{}:
		cq.wg.Add(1)
		go func() {
			defer func() {
				cq.wg.Done()
				<-cq.sem
			}()

			if err := fn(); err != nil {
				select {
				case cq.errCh <- err:
					cq.cancel(errors.WithStack(err))
				default:
				}
			}
		}()
		return nil
	case <-cq.ctx.Done():
		select {
		case err := <-cq.errCh:
			return errors.WithStack(err)
		default:
			if err := cq.ctx.Err(); err != nil {
				return errors.WithStack(err)
			}
			return nil
		}
	}
}

// Wait waits for all submitted functions to finish and returns the first
// error, if any.
func (cq *concurrentQueue) Wait() error {
	cq.wg.Wait()
	select {
	case err := <-cq.errCh:
		return errors.WithStack(err)
	default:
		return nil
	}
}
