package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-can-hog/internal/can"
)

// AsyncTx is a reusable asynchronous frame transmitter that funnels frame
// writes through a single goroutine. Submit never blocks: if the internal
// buffer is full it invokes the configured OnDrop hook and returns its error
// wrapped with ErrSubmissionRejected.
//
// Every accepted frame gets exactly one completion:
//   - nil after a successful write,
//   - the write error wrapped with ErrTransmissionFailed,
//   - ErrAsyncTxClosed if the worker stopped before the frame was written.
//
// Life-cycle:
//
//	a := NewAsyncTx(ctx, buf, writeFn, readyFn, hooks)
//	a.Submit(frame, done)
//	a.Close()
//
// Hooks let each backend keep distinct metrics / logging without duplicating
// the goroutine + buffer plumbing.
type AsyncTx struct {
	mu     sync.Mutex
	ch     chan pending
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	write  func(can.Frame) error
	ready  func() bool
	hooks  Hooks
	closed atomic.Bool
	// stopped is set under mu once the worker has exited; guarded by mu.
	stopped bool
}

type pending struct {
	fr   can.Frame
	done Completion
}

// Hooks customize AsyncTx behavior.
type Hooks struct {
	// OnError is called when write returns a non-nil error (frame not sent).
	OnError func(error)
	// OnAfter is called only after a successful write.
	OnAfter func()
	// OnDrop is called when the buffer is full; its returned error is wrapped
	// and returned from Submit. If nil, a generic overflow error is used.
	OnDrop func() error
}

// ErrAsyncTxClosed is returned by Submit after Close and delivered to the
// completions of frames still queued at Close.
var ErrAsyncTxClosed = errors.New("async tx closed")

var errQueueFull = errors.New("tx queue full")

// NewAsyncTx constructs an AsyncTx with a buffered channel of size buf.
// ready may be nil, in which case the transmitter is ready until closed.
func NewAsyncTx(parent context.Context, buf int, write func(can.Frame) error, ready func() bool, hooks Hooks) *AsyncTx {
	if buf < 1 {
		buf = 1
	}
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx{
		ch:     make(chan pending, buf),
		ctx:    ctx,
		cancel: cancel,
		write:  write,
		ready:  ready,
		hooks:  hooks,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *AsyncTx) loop() {
	defer a.wg.Done()
	defer a.drain()
	for {
		if a.ctx.Err() != nil {
			return
		}
		select {
		case p, ok := <-a.ch:
			if !ok {
				return
			}
			a.transmit(p)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *AsyncTx) transmit(p pending) {
	err := a.write(p.fr)
	if err != nil {
		if a.hooks.OnError != nil {
			a.hooks.OnError(err)
		}
		if p.done != nil {
			p.done(fmt.Errorf("%w: %v", ErrTransmissionFailed, err))
		}
		return
	}
	if a.hooks.OnAfter != nil {
		a.hooks.OnAfter()
	}
	if p.done != nil {
		p.done(nil)
	}
}

// drain completes whatever is still queued once the worker stops.
func (a *AsyncTx) drain() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for {
		select {
		case p, ok := <-a.ch:
			if !ok {
				return
			}
			if p.done != nil {
				p.done(ErrAsyncTxClosed)
			}
		default:
			return
		}
	}
}

// Submit queues fr for asynchronous transmission. done may be nil for
// fire-and-forget use.
func (a *AsyncTx) Submit(fr can.Frame, done Completion) error {
	// Fast-path check so steady-state sends avoid taking the lock when already shut down.
	if a.closed.Load() {
		return fmt.Errorf("%w: %w", ErrSubmissionRejected, ErrAsyncTxClosed)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() || a.stopped {
		return fmt.Errorf("%w: %w", ErrSubmissionRejected, ErrAsyncTxClosed)
	}
	select {
	case a.ch <- pending{fr: fr, done: done}:
		return nil
	default:
		err := errQueueFull
		if a.hooks.OnDrop != nil {
			if derr := a.hooks.OnDrop(); derr != nil {
				err = derr
			}
		}
		return fmt.Errorf("%w: %w", ErrSubmissionRejected, err)
	}
}

// Ready reports whether the transmitter accepts frames and the device is usable.
func (a *AsyncTx) Ready() bool {
	if a.closed.Load() || a.ctx.Err() != nil {
		return false
	}
	if a.ready == nil {
		return true
	}
	return a.ready()
}

// Pending returns the number of frames queued but not yet picked up by the worker.
func (a *AsyncTx) Pending() int { return len(a.ch) }

// Close stops the worker, completes queued frames with ErrAsyncTxClosed and
// waits for the worker to exit.
func (a *AsyncTx) Close() {
	if a.closed.Swap(true) {
		return
	}
	// Cancel context to stop loop, then close channel under the send lock to avoid races.
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
