package hog

import (
	"context"

	"github.com/kstaniek/go-can-hog/internal/metrics"
)

// Gate is the completion gate: a counting primitive bounded at its capacity.
// The transport side calls Give once per finished submission; the loop calls
// Take to reclaim one unit of pipeline capacity.
type Gate struct {
	ch chan struct{}
}

// NewGate returns an empty gate holding at most bound completions.
func NewGate(bound int) *Gate {
	if bound < 1 {
		bound = 1
	}
	return &Gate{ch: make(chan struct{}, bound)}
}

// Give records one completion. It never blocks; a saturated gate drops the
// completion, counts an overflow and returns false.
func (g *Gate) Give() bool {
	select {
	case g.ch <- struct{}{}:
		return true
	default:
		metrics.IncGateOverflow()
		return false
	}
}

// Take blocks until a completion is available. A done ctx wins over a
// pending completion.
func (g *Gate) Take(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) TryTake() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// Count is the number of completions not yet taken.
func (g *Gate) Count() int { return len(g.ch) }

func (g *Gate) Cap() int { return cap(g.ch) }

// Latch is the cancellation latch. Set saturates: setting an already set
// latch is a no-op, so any number of activations between two polls count as one.
type Latch struct {
	ch chan struct{}
}

func NewLatch() *Latch { return &Latch{ch: make(chan struct{}, 1)} }

// Set raises the latch. Safe from any goroutine, never blocks.
func (l *Latch) Set() {
	select {
	case l.ch <- struct{}{}:
	default:
	}
}

// TryTake polls and consumes the latch.
func (l *Latch) TryTake() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

// IsSet peeks without consuming.
func (l *Latch) IsSet() bool { return len(l.ch) > 0 }
