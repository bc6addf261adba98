package cnl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-can-hog/internal/can"
	"github.com/kstaniek/go-can-hog/internal/logging"
	"github.com/kstaniek/go-can-hog/internal/metrics"
	"github.com/kstaniek/go-can-hog/internal/transport"
)

var ErrTxOverflow = errors.New("cannelloni tx overflow")

// Conn is a connected, handshaken cannelloni TCP session towards a can-server.
type Conn struct {
	c            net.Conn
	codec        Codec
	writeTimeout time.Duration
	broken       atomic.Bool
}

// Dial connects to addr and performs the hello exchange.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Conn, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if tcp, ok := c.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	if err := Handshake(ctx, c, timeout); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &Conn{c: c, writeTimeout: timeout}, nil
}

// WriteFrame sends one frame. A write error marks the session unusable.
func (c *Conn) WriteFrame(fr can.Frame) error {
	if c.broken.Load() {
		return net.ErrClosed
	}
	if c.writeTimeout > 0 {
		_ = c.c.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.codec.EncodeTo(c.c, []can.Frame{fr}); err != nil {
		if !errors.Is(err, ErrInvalidFrame) {
			c.broken.Store(true)
		}
		return err
	}
	return nil
}

// Ready is true while the TCP session is healthy.
func (c *Conn) Ready() bool { return !c.broken.Load() }

func (c *Conn) Close() error {
	c.broken.Store(true)
	return c.c.Close()
}

// TXWriter funnels all writes to the remote can-server through one goroutine.
type TXWriter struct {
	base *transport.AsyncTx
	conn *Conn
}

var _ transport.Transport = (*TXWriter)(nil)

// NewTXWriter wraps conn with a queue of buf frames.
func NewTXWriter(parent context.Context, conn *Conn, buf int) *TXWriter {
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrCannelloniWrite)
			logging.L().Error("cannelloni_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncCannelloniTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrCannelloniOver)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, conn.WriteFrame, conn.Ready, hooks), conn: conn}
}

// Submit queues a frame for asynchronous write (rejects with ErrTxOverflow if the queue is full).
func (w *TXWriter) Submit(fr can.Frame, done transport.Completion) error {
	return w.base.Submit(fr, done)
}

func (w *TXWriter) Ready() bool { return w.base.Ready() }

// Close stops the writer and closes the TCP session.
func (w *TXWriter) Close() {
	w.base.Close()
	_ = w.conn.Close()
}
