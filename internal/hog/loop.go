// Package hog floods a CAN bus with one constant frame while keeping a fixed
// number of frames in flight, until a stop input fires.
package hog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/kstaniek/go-can-hog/internal/can"
	"github.com/kstaniek/go-can-hog/internal/gpio"
	"github.com/kstaniek/go-can-hog/internal/logging"
	"github.com/kstaniek/go-can-hog/internal/metrics"
	"github.com/kstaniek/go-can-hog/internal/transport"
)

// DefaultDepth is the steady-state number of frames kept in flight.
const DefaultDepth = 2

// DefaultFrame is the hog workload: standard ID 16, data frame, no payload.
var DefaultFrame = can.Frame{ID: 16}

var ErrLoopStarted = errors.New("hog: loop already started")

type State int32

const (
	StateInit State = iota
	StatePrimed
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePrimed:
		return "primed"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Reason tells why a loop reached StateStopped.
type Reason string

const (
	ReasonCancelled       Reason = "cancelled"
	ReasonNotReady        Reason = "not_ready"
	ReasonInterruptConfig Reason = "interrupt_config"
	ReasonRejected        Reason = "rejected"
	ReasonContext         Reason = "context"
	ReasonLimit           Reason = "limit"
)

// Graceful reports whether the stop was requested rather than caused by a failure.
func (r Reason) Graceful() bool {
	return r == ReasonCancelled || r == ReasonLimit || r == ReasonContext
}

// Result summarizes a run.
type Result struct {
	State     State
	Reason    Reason
	Submitted uint64
	Reclaimed uint64
	Completed uint64
	Failed    uint64
}

type Config struct {
	Frame can.Frame
	// Depth is the number of frames primed before the first wait.
	Depth int
	// MaxFrames ends the run after that many submissions; 0 means no limit.
	MaxFrames uint64
	// StopPin is the stop input; nil leaves Cancel and ctx as the only ways out.
	StopPin  gpio.Pin
	StopEdge gpio.Edge
}

// Loop is the bus saturation loop. A Loop runs once.
type Loop struct {
	cfg       Config
	tx        transport.Transport
	gate      *Gate
	latch     *Latch
	xmit      *Transmitter
	log       *slog.Logger
	state     atomic.Int32
	started   atomic.Bool
	reclaimed atomic.Uint64
	button    atomic.Pointer[Button]
}

// NewLoop prepares a loop over tx. The frame is copied once and shared
// read-only by every submission.
func NewLoop(tx transport.Transport, cfg Config) *Loop {
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultDepth
	}
	log := logging.Component("hog")
	// One slot more than Depth: between a submit and the following wait
	// Depth+1 frames may be outstanding, and each can complete before we take.
	gate := NewGate(cfg.Depth + 1)
	l := &Loop{
		cfg:   cfg,
		tx:    tx,
		gate:  gate,
		latch: NewLatch(),
		log:   log,
	}
	l.xmit = NewTransmitter(tx, gate, cfg.Frame, log)
	return l
}

// Cancel raises the cancellation latch, as the stop input would.
func (l *Loop) Cancel() { l.latch.Set() }

func (l *Loop) State() State { return State(l.state.Load()) }

// Button returns the armed stop input, or nil before arming or without a pin.
func (l *Loop) Button() *Button { return l.button.Load() }

// Stats reports the current counters.
func (l *Loop) Stats() Result {
	return Result{
		State:     l.State(),
		Submitted: l.xmit.Submitted(),
		Reclaimed: l.reclaimed.Load(),
		Completed: l.xmit.Completed(),
		Failed:    l.xmit.Failed(),
	}
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	metrics.SetHogState(int(s))
	l.log.Debug("hog_state", "state", s.String())
}

func (l *Loop) updateDepth() {
	metrics.SetPipelineDepth(int(l.xmit.Submitted() - l.reclaimed.Load()))
}

func (l *Loop) stop(reason Reason, err error) (Result, error) {
	l.setState(StateStopped)
	res := l.Stats()
	res.Reason = reason
	attrs := []any{"reason", string(reason), "submitted", res.Submitted, "reclaimed", res.Reclaimed, "failed", res.Failed}
	if err != nil && !reason.Graceful() {
		l.log.Error("hog_stopped", append(attrs, "error", err)...)
	} else {
		l.log.Info("hog_stopped", attrs...)
	}
	return res, err
}

func (l *Loop) limitReached() bool {
	return l.cfg.MaxFrames > 0 && l.xmit.Submitted() >= l.cfg.MaxFrames
}

// Run drives INIT → PRIMED → RUNNING → STOPPED and returns once stopped.
//
// A nil error means the stop was graceful: the latch was observed or the
// MaxFrames limit was reached. Otherwise the error wraps
// transport.ErrDeviceNotReady, gpio.ErrInterruptConfig,
// transport.ErrSubmissionRejected or the context error. In-flight frames are
// not drained; their completions land in the gate and are ignored.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	if !l.started.CompareAndSwap(false, true) {
		return l.Stats(), ErrLoopStarted
	}
	l.setState(StateInit)
	if !l.tx.Ready() {
		return l.stop(ReasonNotReady, fmt.Errorf("%w: transport", transport.ErrDeviceNotReady))
	}
	if l.cfg.StopPin != nil {
		b, err := ArmButton(l.cfg.StopPin, l.cfg.StopEdge, l.latch)
		if err != nil {
			if errors.Is(err, transport.ErrDeviceNotReady) {
				return l.stop(ReasonNotReady, err)
			}
			return l.stop(ReasonInterruptConfig, err)
		}
		l.button.Store(b)
		defer b.Disarm()
	}

	for i := 0; i < l.cfg.Depth && !l.limitReached(); i++ {
		if err := l.xmit.Submit(); err != nil {
			return l.stop(ReasonRejected, err)
		}
	}
	l.updateDepth()
	l.setState(StatePrimed)
	l.log.Info("hog_running", "frame", l.cfg.Frame.String(), "depth", l.cfg.Depth, "gate_cap", l.gate.Cap(), "max_frames", l.cfg.MaxFrames)
	l.setState(StateRunning)

	for {
		if l.latch.TryTake() {
			return l.stop(ReasonCancelled, nil)
		}
		if l.limitReached() {
			return l.stop(ReasonLimit, nil)
		}
		if err := l.xmit.Submit(); err != nil {
			return l.stop(ReasonRejected, err)
		}
		l.updateDepth()
		if err := l.gate.Take(ctx); err != nil {
			return l.stop(ReasonContext, err)
		}
		l.reclaimed.Add(1)
		l.updateDepth()
	}
}
