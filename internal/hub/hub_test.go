package hub

import (
	"errors"
	"testing"
	"time"

	"github.com/kstaniek/go-can-hog/internal/can"
	"github.com/kstaniek/go-can-hog/internal/metrics"
	"github.com/stretchr/testify/require"
)

func ev(id uint32) Event { return Event{Kind: EventTransmitted, Frame: can.NewFrame(id, nil)} }

func TestHub_Publish_DropDoesNotBlock(t *testing.T) {
	h := New()
	cl := NewClient(4)
	h.Add(cl)
	defer h.Remove(cl)

	before := metrics.Snap().HubDrops
	start := time.Now()
	for i := 0; i < 1000; i++ {
		h.Publish(ev(0x123))
	}
	require.True(t, time.Since(start) < time.Second, "Publish must not block")
	require.Len(t, cl.Out, cap(cl.Out))
	require.EqualValues(t, 996, metrics.Snap().HubDrops-before)
}

func TestHub_Publish_DropKeepsOthersFlowing(t *testing.T) {
	h := New()
	slow := NewClient(1)
	fast := NewClient(16)
	h.Add(slow)
	h.Add(fast)
	defer h.Remove(slow)
	defer h.Remove(fast)

	for i := 0; i < 10; i++ {
		h.Publish(ev(0x2))
	}
	require.Len(t, fast.Out, 10)
	require.Len(t, slow.Out, 1)
}

func TestHub_Publish_KickClosesSlowClient(t *testing.T) {
	h := New()
	h.Policy = PolicyKick
	slow := NewClient(1)
	h.Add(slow)
	defer h.Remove(slow)

	h.Publish(ev(0x1))
	h.Publish(ev(0x1))
	select {
	case <-slow.Closed:
	default:
		t.Fatal("expected slow client to be kicked")
	}
}

func TestHub_RemoveIdempotent(t *testing.T) {
	h := New()
	cl := NewClient(1)
	h.Add(cl)
	require.Equal(t, 1, h.Count())
	h.Remove(cl)
	h.Remove(cl)
	require.Zero(t, h.Count())
	require.Zero(t, metrics.Snap().ShellClients)
}

func TestEventString(t *testing.T) {
	require.Equal(t, "Queued TX frame transmitted (010#)", ev(0x10).String())
	bad := Event{Kind: EventFailed, Frame: can.NewFrame(0x10, nil), Err: errors.New("bus off")}
	require.Equal(t, "Failed to send TX frame 010#: bus off", bad.String())
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("kick")
	require.NoError(t, err)
	require.Equal(t, PolicyKick, p)
	_, err = ParsePolicy("block")
	require.Error(t, err)
}
