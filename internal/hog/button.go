package hog

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/kstaniek/go-can-hog/internal/gpio"
	"github.com/kstaniek/go-can-hog/internal/logging"
	"github.com/kstaniek/go-can-hog/internal/metrics"
	"github.com/kstaniek/go-can-hog/internal/transport"
)

// Button binds a stop input to a latch. The pin's handler only sets the
// latch; the loop is the sole reader.
type Button struct {
	pin         gpio.Pin
	reg         gpio.Registration
	latch       *Latch
	activations atomic.Uint64
}

// ArmButton configures pin as an input and registers an edge handler that
// sets latch. A nil latch gets a fresh one. Returned errors wrap
// transport.ErrDeviceNotReady or gpio.ErrInterruptConfig.
func ArmButton(pin gpio.Pin, edge gpio.Edge, latch *Latch) (*Button, error) {
	if !pin.Ready() {
		return nil, fmt.Errorf("%w: stop input %s", transport.ErrDeviceNotReady, pin.Name())
	}
	if latch == nil {
		latch = NewLatch()
	}
	b := &Button{pin: pin, latch: latch}
	if err := pin.ConfigureInput(); err != nil {
		if errors.Is(err, gpio.ErrNotReady) {
			return nil, fmt.Errorf("%w: %w", transport.ErrDeviceNotReady, err)
		}
		return nil, fmt.Errorf("%w: configure %s: %w", gpio.ErrInterruptConfig, pin.Name(), err)
	}
	reg, err := pin.Register(edge, b.onActivate)
	if err != nil {
		if errors.Is(err, gpio.ErrInterruptConfig) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", gpio.ErrInterruptConfig, pin.Name(), err)
	}
	b.reg = reg
	logging.Component("hog").Info("stop_input_armed", "pin", pin.Name(), "edge", edge.String())
	return b, nil
}

func (b *Button) onActivate() {
	b.activations.Add(1)
	metrics.IncStopActivation()
	b.latch.Set()
}

func (b *Button) Latch() *Latch { return b.latch }

// Activations counts handler invocations, including those absorbed by an already set latch.
func (b *Button) Activations() uint64 { return b.activations.Load() }

// Disarm removes the edge handler. Safe to call more than once.
func (b *Button) Disarm() {
	if b.reg != nil {
		b.reg.Remove()
	}
}
