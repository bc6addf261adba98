package transport

import (
	"errors"

	"github.com/kstaniek/go-can-hog/internal/can"
)

// Sentinel error kinds shared by every backend so callers can classify via errors.Is.
var (
	// ErrDeviceNotReady: the device is missing, down, or not yet connected.
	ErrDeviceNotReady = errors.New("device not ready")
	// ErrSubmissionRejected: the frame was refused synchronously (queue full,
	// invalid frame, device error). The completion will never fire.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrTransmissionFailed wraps device write errors delivered to completions.
	ErrTransmissionFailed = errors.New("transmission failed")
)

// Completion receives the outcome of one accepted submission. It is invoked
// exactly once, from the transport's worker goroutine, with nil on success.
// Implementations must not block.
type Completion func(err error)

// Transport accepts frames for asynchronous transmission.
//
// Submit never blocks. It either queues fr and later calls done exactly once,
// or returns an error wrapping ErrSubmissionRejected and never calls done.
// A single transport completes frames in submission order.
type Transport interface {
	Submit(fr can.Frame, done Completion) error
	Ready() bool
	Close()
}

// FrameEncoder turns a frame into a backend's wire bytes. It rejects frames
// the backend cannot carry, which lets Submit refuse them synchronously.
type FrameEncoder interface {
	Encode(can.Frame) ([]byte, error)
}
