package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kstaniek/go-can-hog/internal/can"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errOverflow = errors.New("overflow")
	errSendFail = errors.New("send fail")
)

const (
	waitFor = 200 * time.Millisecond
	tick    = 2 * time.Millisecond
)

// TestAsyncTxSuccess verifies frames are written, hooks fire and each
// completion reports success.
func TestAsyncTxSuccess(t *testing.T) {
	var sent, after, done atomic.Int64
	ax := NewAsyncTx(context.Background(), 4, func(fr can.Frame) error {
		sent.Add(1)
		return nil
	}, nil, Hooks{OnAfter: func() { after.Add(1) }})
	defer ax.Close()
	for i := 0; i < 3; i++ {
		err := ax.Submit(can.Frame{ID: uint32(i)}, func(err error) {
			assert.NoError(t, err)
			done.Add(1)
		})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return done.Load() == 3 }, waitFor, tick)
	require.EqualValues(t, 3, sent.Load())
	require.EqualValues(t, 3, after.Load())
}

// TestAsyncTxCompletionOrder checks completions follow submission order.
func TestAsyncTxCompletionOrder(t *testing.T) {
	var mu sync.Mutex
	var order []uint32
	ax := NewAsyncTx(context.Background(), 16, func(fr can.Frame) error { return nil }, nil, Hooks{})
	defer ax.Close()
	for i := 0; i < 10; i++ {
		id := uint32(i)
		require.NoError(t, ax.Submit(can.Frame{ID: id}, func(error) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}))
	}
	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(order) == 10 }, waitFor, tick)
	mu.Lock()
	defer mu.Unlock()
	for i, id := range order {
		require.EqualValues(t, i, id)
	}
}

// TestAsyncTxOverflow ensures OnDrop is invoked when buffer full and the
// rejection is classified as ErrSubmissionRejected.
func TestAsyncTxOverflow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	release := make(chan struct{})
	var drops atomic.Int64
	ax := NewAsyncTx(ctx, 1, func(fr can.Frame) error { <-release; return nil }, nil,
		Hooks{OnDrop: func() error { drops.Add(1); return errOverflow }})
	defer ax.Close()
	defer close(release)
	// First frame is picked up by the worker, which then blocks in write.
	require.NoError(t, ax.Submit(can.Frame{}, nil))
	require.Eventually(t, func() bool { return ax.Pending() == 0 }, waitFor, tick)
	require.NoError(t, ax.Submit(can.Frame{}, nil))

	err := ax.Submit(can.Frame{}, func(error) { t.Error("completion must not fire for rejected frame") })
	require.ErrorIs(t, err, errOverflow)
	require.ErrorIs(t, err, ErrSubmissionRejected)
	require.EqualValues(t, 1, drops.Load())
}

// TestAsyncTxSendError triggers OnError and a failed completion.
func TestAsyncTxSendError(t *testing.T) {
	var errs atomic.Int64
	got := make(chan error, 1)
	ax := NewAsyncTx(context.Background(), 2, func(fr can.Frame) error { return errSendFail }, nil,
		Hooks{OnError: func(error) { errs.Add(1) }})
	defer ax.Close()
	require.NoError(t, ax.Submit(can.Frame{}, func(err error) { got <- err }))
	select {
	case err := <-got:
		require.ErrorIs(t, err, ErrTransmissionFailed)
	case <-time.After(waitFor):
		t.Fatal("timeout waiting for completion")
	}
	require.EqualValues(t, 1, errs.Load())
}

// TestAsyncTxCloseCompletesQueued makes sure frames queued at Close still
// receive exactly one completion.
func TestAsyncTxCloseCompletesQueued(t *testing.T) {
	release := make(chan struct{})
	var completions, closedErrs atomic.Int64
	ax := NewAsyncTx(context.Background(), 4, func(fr can.Frame) error { <-release; return nil }, nil, Hooks{})
	done := func(err error) {
		completions.Add(1)
		if errors.Is(err, ErrAsyncTxClosed) {
			closedErrs.Add(1)
		}
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, ax.Submit(can.Frame{}, done))
	}
	go func() { time.Sleep(20 * time.Millisecond); close(release) }()
	ax.Close()
	require.EqualValues(t, 3, completions.Load())
	require.NotZero(t, closedErrs.Load(), "queued frames complete with ErrAsyncTxClosed")
}

func TestAsyncTxSubmitAfterClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tx := NewAsyncTx(ctx, 2, func(fr can.Frame) error { return nil }, nil, Hooks{})
	tx.Close()
	err := tx.Submit(can.Frame{ID: 123}, nil)
	require.ErrorIs(t, err, ErrAsyncTxClosed)
	require.ErrorIs(t, err, ErrSubmissionRejected)
	require.False(t, tx.Ready())
}

func TestAsyncTxReadyFunc(t *testing.T) {
	var up atomic.Bool
	tx := NewAsyncTx(context.Background(), 1, func(fr can.Frame) error { return nil }, up.Load, Hooks{})
	defer tx.Close()
	require.False(t, tx.Ready())
	up.Store(true)
	require.True(t, tx.Ready())
}

func TestAsyncTxCloseConcurrentSubmit(t *testing.T) {
	for i := 0; i < 100; i++ {
		ax := NewAsyncTx(context.Background(), 1, func(fr can.Frame) error { return nil }, nil, Hooks{})
		done := make(chan error, 1)
		go func() {
			done <- ax.Submit(can.Frame{}, nil)
		}()
		time.Sleep(1 * time.Millisecond)
		ax.Close()
		if err := <-done; err != nil {
			require.ErrorIs(t, err, ErrAsyncTxClosed, "iteration %d", i)
		}
	}
}
