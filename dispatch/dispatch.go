// Package dispatch runs network-bound engine operations off the caller's
// goroutine and delivers exactly one terminal notification per submitted
// operation: OnSuccess, OnError or OnCancel. Cancellation is cooperative
// through the operation's context; a result or error arriving after
// cancellation is suppressed.
package dispatch

import (
	"context"
	"sync"

	interrors "github.com/jrsteele09/go-oidc-client/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrCancelled is the terminal error reported by Await for a cancelled
// operation.
var ErrCancelled = interrors.ErrCancelled

const defaultWorkers = 2

// Executor runs a delivery callback on a caller-chosen context, for example
// a UI-affine queue. The default executor runs callbacks inline on the
// worker goroutine.
type Executor func(func())

// Callbacks receives the single terminal notification for an operation.
// Nil members are skipped; the exactly-once guarantee is unaffected.
type Callbacks[T any] struct {
	OnSuccess func(T)
	OnError   func(ErrorKind, error)
	OnCancel  func()
}

// Handle tracks one submitted operation.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Cancel requests cooperative cancellation. The operation's terminal
// notification becomes OnCancel unless a terminal callback was already
// delivered; delivered callbacks are never retracted.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed after the terminal callback has run.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Dispatcher owns the background worker pool. The zero value is not usable;
// create one with NewDispatcher and Close it when finished.
type Dispatcher struct {
	tasks     chan func()
	workers   int
	executor  Executor
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithExecutor sets the delivery executor for terminal callbacks.
func WithExecutor(executor Executor) DispatcherOption {
	return func(d *Dispatcher) {
		if executor != nil {
			d.executor = executor
		}
	}
}

// NewDispatcher starts the worker pool.
func NewDispatcher(options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		workers:  defaultWorkers,
		executor: func(fn func()) { fn() },
	}
	for _, option := range options {
		option(d)
	}

	d.tasks = make(chan func(), d.workers)
	d.wg.Add(d.workers)
	for i := 0; i < d.workers; i++ {
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for task := range d.tasks {
		task()
	}
}

// Close stops accepting work and waits for queued operations to finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.tasks)
	})
	d.wg.Wait()
}

// Submit schedules op on the worker pool and returns a Handle for
// cancellation. Exactly one of the callbacks fires, on the dispatcher's
// executor. Submit is a function rather than a method so the result type
// can be generic.
func Submit[T any](d *Dispatcher, ctx context.Context, op func(context.Context) (T, error), callbacks Callbacks[T]) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	handle := &Handle{cancel: cancel, done: make(chan struct{})}

	deliver := func(fn func()) {
		handle.once.Do(func() {
			d.executor(func() {
				defer close(handle.done)
				fn()
			})
		})
	}

	d.tasks <- func() {
		defer cancel()

		if ctx.Err() != nil {
			deliver(func() { notifyCancel(callbacks) })
			return
		}

		result, err := op(ctx)

		// A cancellation racing the operation's completion wins: late
		// results and errors are suppressed.
		if ctx.Err() != nil || KindOf(err) == KindCancelled {
			deliver(func() { notifyCancel(callbacks) })
			return
		}
		if err != nil {
			kind := KindOf(err)
			log.Debug().Err(err).Str("kind", string(kind)).Msg("dispatched operation failed")
			deliver(func() {
				if callbacks.OnError != nil {
					callbacks.OnError(kind, err)
				}
			})
			return
		}
		deliver(func() {
			if callbacks.OnSuccess != nil {
				callbacks.OnSuccess(result)
			}
		})
	}
	return handle
}

func notifyCancel[T any](callbacks Callbacks[T]) {
	if callbacks.OnCancel != nil {
		callbacks.OnCancel()
	}
}

// Await runs op through the dispatcher and blocks the calling goroutine on
// its single terminal notification. Cancellation surfaces as ErrCancelled.
func Await[T any](d *Dispatcher, ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	var (
		result T
		opErr  error
	)
	handle := Submit(d, ctx, op, Callbacks[T]{
		OnSuccess: func(v T) { result = v },
		OnError:   func(_ ErrorKind, err error) { opErr = err },
		OnCancel:  func() { opErr = errors.WithStack(ErrCancelled) },
	})
	<-handle.Done()
	return result, opErr
}
