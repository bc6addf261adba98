package hog

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/kstaniek/go-can-hog/internal/can"
	"github.com/kstaniek/go-can-hog/internal/metrics"
	"github.com/kstaniek/go-can-hog/internal/transport"
)

// Transmitter submits the shared hog frame and routes every completion to the gate.
type Transmitter struct {
	tx    transport.Transport
	gate  *Gate
	frame can.Frame
	log   *slog.Logger

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

func NewTransmitter(tx transport.Transport, gate *Gate, frame can.Frame, log *slog.Logger) *Transmitter {
	return &Transmitter{tx: tx, gate: gate, frame: frame, log: log}
}

// Submit hands one copy of the frame to the transport without blocking.
// A synchronous refusal is returned wrapping transport.ErrSubmissionRejected.
func (t *Transmitter) Submit() error {
	if err := t.tx.Submit(t.frame, t.complete); err != nil {
		metrics.IncHogRejected()
		if !errors.Is(err, transport.ErrSubmissionRejected) {
			err = fmt.Errorf("%w: %w", transport.ErrSubmissionRejected, err)
		}
		return err
	}
	t.submitted.Add(1)
	metrics.IncHogSubmitted()
	return nil
}

// complete runs on the transport's goroutine. Failures are logged and the
// loop keeps going.
func (t *Transmitter) complete(err error) {
	t.completed.Add(1)
	metrics.IncHogCompleted()
	if err != nil {
		t.failed.Add(1)
		metrics.IncHogFailed()
		t.log.Warn("tx_failed", "frame", t.frame.String(), "error", err)
	}
	t.gate.Give()
}

func (t *Transmitter) Frame() can.Frame  { return t.frame }
func (t *Transmitter) Submitted() uint64 { return t.submitted.Load() }
func (t *Transmitter) Completed() uint64 { return t.completed.Load() }
func (t *Transmitter) Failed() uint64    { return t.failed.Load() }
