//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kstaniek/go-can-hog/internal/socketcan"
	"github.com/kstaniek/go-can-hog/internal/transport"
)

// openSocketCANDevice is a hook for tests (overridden in unit tests).
var openSocketCANDevice = func(iface string, fd bool) (socketcan.Dev, error) { return socketcan.Open(iface, fd) }

func initSocketCANBackend(ctx context.Context, cfg *appConfig, l *slog.Logger) (transport.Transport, error) {
	dev, err := openSocketCANDevice(cfg.canIf, cfg.fd)
	if err != nil {
		return nil, fmt.Errorf("%w: socketcan open %s: %v", transport.ErrDeviceNotReady, cfg.canIf, err)
	}
	l.Info("socketcan_open", "if", cfg.canIf, "fd", cfg.fd)
	return socketcan.NewTXWriter(ctx, dev, cfg.txQueue), nil
}
