//go:build linux

package socketcan

import (
	"context"
	"errors"

	"github.com/kstaniek/go-can-hog/internal/can"
	"github.com/kstaniek/go-can-hog/internal/logging"
	"github.com/kstaniek/go-can-hog/internal/metrics"
	"github.com/kstaniek/go-can-hog/internal/transport"
)

var ErrTxOverflow = errors.New("socketcan tx overflow")

// Dev is the minimal interface needed by the TXWriter.
// Implemented by *Device in production and by fakes in tests.
type Dev interface {
	WriteFrame(can.Frame) error
	Ready() bool
	Close() error
}

// TXWriter funnels all SocketCAN writes through a single goroutine and
// reports each write outcome to the submitter's completion.
type TXWriter struct {
	base *transport.AsyncTx
	dev  Dev
}

var _ transport.Transport = (*TXWriter)(nil)

// NewTXWriter creates a SocketCAN TXWriter with a queue of buf frames.
func NewTXWriter(parent context.Context, dev Dev, buf int) *TXWriter {
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSocketCANWrite)
			logging.L().Debug("socketcan_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncSocketCANTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSocketCANOver)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, dev.WriteFrame, dev.Ready, hooks), dev: dev}
}

// Submit queues a frame for asynchronous device write (rejects with ErrTxOverflow if the queue is full).
func (w *TXWriter) Submit(fr can.Frame, done transport.Completion) error {
	return w.base.Submit(fr, done)
}

// Ready reports whether the interface is up and the writer is running.
func (w *TXWriter) Ready() bool { return w.base.Ready() }

// Close stops the writer, waits for the worker goroutine and closes the socket.
func (w *TXWriter) Close() {
	w.base.Close()
	_ = w.dev.Close()
}
