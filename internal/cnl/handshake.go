package cnl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Hello is exchanged by both peers right after the TCP connection opens.
const Hello = "CANNELLONIv1"

// ErrHandshake wraps every failure of the hello exchange.
var ErrHandshake = errors.New("cannelloni handshake")

// Handshake writes Hello and expects the peer's Hello back, within timeout.
// Both directions run concurrently so neither side can deadlock on a
// synchronous transport such as net.Pipe.
func Handshake(ctx context.Context, c net.Conn, timeout time.Duration) error {
	if err := c.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("%w: set deadline: %v", ErrHandshake, err)
	}
	defer c.SetDeadline(time.Time{})

	errCh := make(chan error, 2)
	go func() {
		_, err := io.WriteString(c, Hello)
		errCh <- err
	}()
	go func() {
		buf := make([]byte, len(Hello))
		_, err := io.ReadFull(c, buf)
		if err == nil && string(buf) != Hello {
			err = fmt.Errorf("bad hello %q", buf)
		}
		errCh <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrHandshake, ctx.Err())
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("%w: %w", ErrHandshake, err)
			}
		}
	}
	return nil
}
