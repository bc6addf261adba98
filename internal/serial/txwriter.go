package serial

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/kstaniek/go-can-hog/internal/can"
	"github.com/kstaniek/go-can-hog/internal/logging"
	"github.com/kstaniek/go-can-hog/internal/metrics"
	"github.com/kstaniek/go-can-hog/internal/transport"
)

var ErrTxOverflow = errors.New("serial tx overflow")

// TXWriter funnels all serial writes through one goroutine.
type TXWriter struct {
	base  *transport.AsyncTx
	sp    Port
	codec transport.FrameEncoder
	gone  atomic.Bool // set once the tty disappears
}

var _ transport.Transport = (*TXWriter)(nil)

// NewTXWriter creates a serial TXWriter with a queue of buf frames.
func NewTXWriter(parent context.Context, sp Port, codec transport.FrameEncoder, buf int) *TXWriter {
	w := &TXWriter{sp: sp, codec: codec}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSerialWrite)
			logging.L().Error("serial_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncSerialTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSerialOverflow)
			return ErrTxOverflow
		},
	}
	w.base = transport.NewAsyncTx(parent, buf, w.write, func() bool { return !w.gone.Load() }, hooks)
	return w
}

func (w *TXWriter) write(fr can.Frame) error {
	b, err := w.codec.Encode(fr)
	if err != nil {
		return err
	}
	if _, err := w.sp.Write(b); err != nil {
		var perr *os.PathError
		if errors.As(err, &perr) {
			w.gone.Store(true) // device removed or fatal
		}
		return err
	}
	return nil
}

// Submit queues a frame for asynchronous write (rejects with ErrTxOverflow if
// the queue is full). Frames the adapter cannot carry are rejected up front.
func (w *TXWriter) Submit(fr can.Frame, done transport.Completion) error {
	if _, err := w.codec.Encode(fr); err != nil {
		return fmt.Errorf("%w: %w", transport.ErrSubmissionRejected, err)
	}
	return w.base.Submit(fr, done)
}

// Ready reports whether the port is still usable.
func (w *TXWriter) Ready() bool { return w.base.Ready() }

// Close stops the writer, waits for the worker goroutine and closes the port.
func (w *TXWriter) Close() {
	w.base.Close()
	_ = w.sp.Close()
}
