//go:build !linux

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kstaniek/go-can-hog/internal/transport"
)

// Placeholder so non-linux builds compile; socketcan not supported.
func initSocketCANBackend(ctx context.Context, cfg *appConfig, l *slog.Logger) (transport.Transport, error) {
	return nil, fmt.Errorf("%w: socketcan backend unsupported on this platform", transport.ErrDeviceNotReady)
}
