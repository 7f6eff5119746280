package pipeline

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mojiQAQ/petsphoto/internal/infra"
)

// ErrDispatcherClosed is returned by Dispatch after Shutdown has begun.
var ErrDispatcherClosed = errors.New("pipeline: dispatcher is shut down")

// Processor runs one job to a terminal state.
type Processor interface {
	Process(ctx context.Context, jobID string)
}

// Dispatcher runs every job in its own goroutine under a context derived
// from the dispatcher, never from the caller.
type Dispatcher struct {
	processor  Processor
	jobTimeout time.Duration
	logger     zerolog.Logger

	root   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(processor Processor, jobTimeout time.Duration, logger *infra.Logger) *Dispatcher {
	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Minute
	}
	root, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		processor:  processor,
		jobTimeout: jobTimeout,
		logger:     infra.DiscardLogger(logger),
		root:       root,
		cancel:     cancel,
	}
}

// Dispatch starts jobID in the background and returns immediately.
func (d *Dispatcher) Dispatch(jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().
					Str("job_id", jobID).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("pipeline: job panicked outside generation")
			}
		}()
		ctx, cancel := context.WithTimeout(d.root, d.jobTimeout)
		defer cancel()
		d.processor.Process(ctx, jobID)
	}()
	d.logger.Debug().Str("job_id", jobID).Msg("pipeline: job dispatched")
	return nil
}

// Shutdown stops accepting jobs and waits for the running ones. When ctx
// ends first the remaining jobs are cancelled and awaited; their FAILED
// write still happens on a detached context.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.logger.Warn().Msg("pipeline: shutdown grace expired, cancelling running jobs")
		d.cancel()
		<-done
		return ctx.Err()
	}
}
