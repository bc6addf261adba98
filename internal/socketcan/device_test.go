//go:build linux

package socketcan

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kstaniek/go-can-hog/internal/can"
	"github.com/kstaniek/go-can-hog/internal/metrics"
	"github.com/kstaniek/go-can-hog/internal/transport"
	"github.com/stretchr/testify/require"
)

func TestMarshalClassicFrame(t *testing.T) {
	fr := can.NewFrame(0x123, []byte{1, 2, 3})
	buf := marshalFrame(fr)
	require.Len(t, buf, 16)
	require.EqualValues(t, 0x123, binary.LittleEndian.Uint32(buf[0:4]))
	require.EqualValues(t, 3, buf[4])
	require.EqualValues(t, 1, buf[8])
	require.EqualValues(t, 3, buf[10])
}

func TestMarshalRemoteExtendedFrame(t *testing.T) {
	fr := can.Frame{ID: 0x1ABCDE, Extended: true, RTR: true, DLC: 4}
	buf := marshalFrame(fr)
	require.EqualValues(t, 0x1ABCDE|can.CAN_EFF_FLAG|can.CAN_RTR_FLAG, binary.LittleEndian.Uint32(buf[0:4]))
	require.EqualValues(t, 4, buf[4], "requested length")
	require.Equal(t, make([]byte, len(buf)-8), buf[8:], "remote request must not carry data")
}

func TestMarshalFDFrame(t *testing.T) {
	fr := can.Frame{ID: 0x10, FD: true, BRS: true, DLC: 12}
	fr.Data[11] = 0xEE
	buf := marshalFrame(fr)
	require.Len(t, buf, canfdMTU)
	require.EqualValues(t, canfdFDF|canfdBRS, buf[5])
	require.EqualValues(t, 0xEE, buf[8+11])
}

type fakeDev struct {
	writes atomic.Int64
	fail   error
	closed atomic.Bool
}

func (d *fakeDev) WriteFrame(can.Frame) error { d.writes.Add(1); return d.fail }
func (d *fakeDev) Ready() bool                { return !d.closed.Load() }
func (d *fakeDev) Close() error               { d.closed.Store(true); return nil }

func TestTXWriterCompletionAndMetrics(t *testing.T) {
	before := metrics.Snap().SocketCANTx
	dev := &fakeDev{}
	w := NewTXWriter(context.Background(), dev, 4)
	got := make(chan error, 1)
	require.NoError(t, w.Submit(can.Frame{ID: 0x10}, func(err error) { got <- err }))
	select {
	case err := <-got:
		require.NoError(t, err)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for completion")
	}
	require.Equal(t, before+1, metrics.Snap().SocketCANTx)
	w.Close()
	require.True(t, dev.closed.Load())
	require.False(t, w.Ready())
}

func TestTXWriterWriteError(t *testing.T) {
	dev := &fakeDev{fail: errors.New("ENOBUFS")}
	w := NewTXWriter(context.Background(), dev, 4)
	defer w.Close()
	got := make(chan error, 1)
	require.NoError(t, w.Submit(can.Frame{ID: 0x10}, func(err error) { got <- err }))
	select {
	case err := <-got:
		require.ErrorIs(t, err, transport.ErrTransmissionFailed)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for completion")
	}
}
