package hog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kstaniek/go-can-hog/internal/gpio"
	"github.com/kstaniek/go-can-hog/internal/transport"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = time.Millisecond
)

type runResult struct {
	res Result
	err error
}

func start(t *testing.T, ctx context.Context, l *Loop) <-chan runResult {
	t.Helper()
	out := make(chan runResult, 1)
	go func() {
		res, err := l.Run(ctx)
		out <- runResult{res, err}
	}()
	return out
}

func wait(t *testing.T, ch <-chan runResult) runResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(waitFor):
		t.Fatal("loop did not stop")
		return runResult{}
	}
}

func TestLatchSaturates(t *testing.T) {
	l := NewLatch()
	require.False(t, l.TryTake())
	for i := 0; i < 10; i++ {
		l.Set()
	}
	require.True(t, l.IsSet())
	require.True(t, l.TryTake())
	require.False(t, l.TryTake())
	require.False(t, l.IsSet())
}

func TestGateBoundAndContext(t *testing.T) {
	g := NewGate(2)
	require.Equal(t, 2, g.Cap())
	require.True(t, g.Give())
	require.True(t, g.Give())
	require.False(t, g.Give())
	require.Equal(t, 2, g.Count())
	require.NoError(t, g.Take(context.Background()))
	require.True(t, g.TryTake())
	require.False(t, g.TryTake())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, g.Take(ctx), context.DeadlineExceeded)
}

func TestLoopTransportNotReady(t *testing.T) {
	tr := newManualTransport()
	tr.ready = false
	l := NewLoop(tr, Config{Frame: DefaultFrame})
	res, err := l.Run(context.Background())
	require.ErrorIs(t, err, transport.ErrDeviceNotReady)
	require.Equal(t, StateStopped, res.State)
	require.Equal(t, ReasonNotReady, res.Reason)
	require.Zero(t, tr.Calls())
}

func TestLoopStopInputNotReady(t *testing.T) {
	tr := newManualTransport()
	pin := gpio.NewSoftPin("sw0")
	pin.SetReady(false)
	l := NewLoop(tr, Config{Frame: DefaultFrame, StopPin: pin})
	res, err := l.Run(context.Background())
	require.ErrorIs(t, err, transport.ErrDeviceNotReady)
	require.Equal(t, ReasonNotReady, res.Reason)
	require.Zero(t, tr.Calls())
}

func TestLoopInterruptConfigFailure(t *testing.T) {
	tr := newManualTransport()
	l := NewLoop(tr, Config{Frame: DefaultFrame, StopPin: brokenPin{gpio.NewSoftPin("sw0")}})
	res, err := l.Run(context.Background())
	require.ErrorIs(t, err, gpio.ErrInterruptConfig)
	require.Equal(t, ReasonInterruptConfig, res.Reason)
	require.Equal(t, StateStopped, l.State())
	require.Zero(t, tr.Calls())
}

func TestLoopKeepsPipelineDepth(t *testing.T) {
	tr := newManualTransport()
	l := NewLoop(tr, Config{Frame: DefaultFrame})
	require.Equal(t, DefaultDepth+1, l.gate.Cap())
	done := start(t, context.Background(), l)

	// Two primed frames plus the submission that precedes the first wait.
	require.Eventually(t, func() bool { return tr.Calls() == DefaultDepth+1 }, waitFor, tick)
	require.Equal(t, StateRunning, l.State())

	for k := 1; k <= 5; k++ {
		tr.finish(1, nil)
		require.Eventually(t, func() bool { return l.Stats().Submitted == uint64(DefaultDepth+1+k) }, waitFor, tick)
		st := l.Stats()
		require.EqualValues(t, k, st.Reclaimed)
		require.EqualValues(t, DefaultDepth+1, st.Submitted-st.Reclaimed)
	}
	require.LessOrEqual(t, tr.MaxInflight(), DefaultDepth+1)

	l.Cancel()
	tr.finish(1, nil)
	r := wait(t, done)
	require.NoError(t, r.err)
	require.Equal(t, ReasonCancelled, r.res.Reason)
	require.EqualValues(t, DefaultDepth+1+5, r.res.Submitted)
	require.Equal(t, DefaultDepth+1+5, tr.Calls())
}

func TestLoopStopInputObservedWithinOneIteration(t *testing.T) {
	tr := newManualTransport()
	pin := gpio.NewSoftPin("sw0")
	l := NewLoop(tr, Config{Frame: DefaultFrame, StopPin: pin, StopEdge: gpio.EdgeToActive})
	done := start(t, context.Background(), l)
	require.Eventually(t, func() bool { return tr.Calls() == 3 }, waitFor, tick)

	// Many activations while the loop waits behave as one.
	for i := 0; i < 5; i++ {
		pin.Trigger()
	}
	require.EqualValues(t, 5, l.Button().Activations())

	tr.finish(1, nil)
	r := wait(t, done)
	require.NoError(t, r.err)
	require.Equal(t, ReasonCancelled, r.res.Reason)
	require.Equal(t, StateStopped, r.res.State)

	// Late completions are absorbed and nothing else is submitted.
	tr.finish(2, nil)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 3, tr.Calls())
}

func TestLoopRejectionOnFifthSubmit(t *testing.T) {
	tr := newAutoTransport()
	defer tr.Close()
	tr.rejectAt = 5
	l := NewLoop(tr, Config{Frame: DefaultFrame})
	res, err := l.Run(context.Background())
	require.ErrorIs(t, err, transport.ErrSubmissionRejected)
	require.Equal(t, ReasonRejected, res.Reason)
	require.EqualValues(t, 4, res.Submitted)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 5, tr.Calls())
}

func TestLoopRejectionWhilePriming(t *testing.T) {
	tr := newManualTransport()
	tr.rejectAt = 2
	l := NewLoop(tr, Config{Frame: DefaultFrame})
	res, err := l.Run(context.Background())
	require.ErrorIs(t, err, transport.ErrSubmissionRejected)
	require.Equal(t, ReasonRejected, res.Reason)
	require.EqualValues(t, 1, res.Submitted)
}

func TestLoopSubmitsConstantFrame(t *testing.T) {
	tr := newAutoTransport()
	defer tr.Close()
	l := NewLoop(tr, Config{Frame: DefaultFrame, MaxFrames: 200})
	res, err := l.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, ReasonLimit, res.Reason)
	require.EqualValues(t, 200, res.Submitted)

	frames := tr.Frames()
	require.Len(t, frames, 200)
	for _, fr := range frames {
		require.Equal(t, DefaultFrame, fr)
	}
	require.LessOrEqual(t, tr.MaxInflight(), DefaultDepth+1)
}

func TestLoopTransmissionFailureIsNotFatal(t *testing.T) {
	tr := newManualTransport()
	l := NewLoop(tr, Config{Frame: DefaultFrame})
	done := start(t, context.Background(), l)
	require.Eventually(t, func() bool { return tr.Calls() == 3 }, waitFor, tick)

	tr.finish(1, errors.New("bus off"))
	require.Eventually(t, func() bool { return tr.Calls() == 4 }, waitFor, tick)
	require.EqualValues(t, 1, l.Stats().Failed)

	l.Cancel()
	tr.finish(1, nil)
	r := wait(t, done)
	require.NoError(t, r.err)
}

func TestLoopContextCancel(t *testing.T) {
	tr := newManualTransport()
	l := NewLoop(tr, Config{Frame: DefaultFrame})
	ctx, cancel := context.WithCancel(context.Background())
	done := start(t, ctx, l)
	require.Eventually(t, func() bool { return tr.Calls() == 3 }, waitFor, tick)
	cancel()
	r := wait(t, done)
	require.ErrorIs(t, r.err, context.Canceled)
	require.Equal(t, ReasonContext, r.res.Reason)
	require.True(t, r.res.Reason.Graceful())
}

func TestLoopRunsOnce(t *testing.T) {
	tr := newAutoTransport()
	defer tr.Close()
	l := NewLoop(tr, Config{Frame: DefaultFrame, MaxFrames: 4})
	_, err := l.Run(context.Background())
	require.NoError(t, err)
	_, err = l.Run(context.Background())
	require.ErrorIs(t, err, ErrLoopStarted)
}
