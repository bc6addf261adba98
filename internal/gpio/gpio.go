// Package gpio exposes edge-triggered input pins used as stop buttons.
//
// A Pin delivers activations to a Handler from its own goroutine, the Go
// stand-in for an interrupt context: handlers must not block.
package gpio

import (
	"errors"
	"fmt"
)

// Edge selects which transitions invoke the handler.
type Edge int

const (
	EdgeRising Edge = iota
	EdgeFalling
	EdgeBoth
	// EdgeToActive fires when the pin becomes logically active, honoring active-low wiring.
	EdgeToActive
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	case EdgeToActive:
		return "to-active"
	default:
		return fmt.Sprintf("edge(%d)", int(e))
	}
}

// ParseEdge is the inverse of Edge.String.
func ParseEdge(s string) (Edge, error) {
	switch s {
	case "rising":
		return EdgeRising, nil
	case "falling":
		return EdgeFalling, nil
	case "both":
		return EdgeBoth, nil
	case "to-active", "":
		return EdgeToActive, nil
	}
	return 0, fmt.Errorf("%w: unknown edge %q", ErrInterruptConfig, s)
}

// Handler runs once per qualifying edge. It must not block.
type Handler func()

// Registration detaches a handler. Remove is idempotent.
type Registration interface {
	Remove()
}

// Pin is an input line that can report edges asynchronously.
type Pin interface {
	Name() string
	// Ready reports whether the underlying controller is present.
	Ready() bool
	ConfigureInput() error
	// Read returns the logical (active) level.
	Read() (bool, error)
	Register(edge Edge, h Handler) (Registration, error)
}

var (
	ErrNotReady        = errors.New("gpio: device not ready")
	ErrInterruptConfig = errors.New("gpio: interrupt configuration failed")
	ErrUnsupported     = errors.New("gpio: unsupported on this platform")
)

type regFunc func()

func (f regFunc) Remove() { f() }
