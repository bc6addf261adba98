package cnl

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandshakeLoopback(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()

	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- Handshake(ctx, srv, 2*time.Second) }()

	require.NoError(t, Handshake(ctx, cli, 2*time.Second), "client handshake")
	require.NoError(t, <-done, "server handshake")
}

func TestHandshakeBadHello(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()
	go func() {
		buf := make([]byte, len(Hello))
		_, _ = io.ReadFull(srv, buf)
		_, _ = io.WriteString(srv, "NOTCANNELLON")
	}()
	err := Handshake(context.Background(), cli, time.Second)
	require.ErrorIs(t, err, ErrHandshake)
}
