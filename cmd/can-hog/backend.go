package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kstaniek/go-can-hog/internal/cnl"
	"github.com/kstaniek/go-can-hog/internal/serial"
	"github.com/kstaniek/go-can-hog/internal/transport"
)

// openSerialPort is a hook for tests (overridden in unit tests).
var openSerialPort = serial.Open

// dialRemote is a hook for tests (overridden in unit tests).
var dialRemote = cnl.Dial

// initBackend opens the selected CAN device and wraps it in its asynchronous
// transport. Closing the transport releases the device.
func initBackend(ctx context.Context, cfg *appConfig, l *slog.Logger) (transport.Transport, error) {
	switch cfg.backend {
	case "serial":
		return initSerialBackend(ctx, cfg, l)
	case "socketcan":
		return initSocketCANBackend(ctx, cfg, l)
	case "cannelloni":
		return initCannelloniBackend(ctx, cfg, l)
	default:
		return nil, fmt.Errorf("unknown backend %q (use socketcan|serial|cannelloni)", cfg.backend)
	}
}

func initSerialBackend(ctx context.Context, cfg *appConfig, l *slog.Logger) (transport.Transport, error) {
	sp, err := openSerialPort(cfg.serialDev, cfg.baud, cfg.serialReadTO)
	if err != nil {
		return nil, fmt.Errorf("%w: open serial %s: %v", transport.ErrDeviceNotReady, cfg.serialDev, err)
	}
	l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud)
	return serial.NewTXWriter(ctx, sp, serial.Codec{}, cfg.txQueue), nil
}

func initCannelloniBackend(ctx context.Context, cfg *appConfig, l *slog.Logger) (transport.Transport, error) {
	conn, err := dialRemote(ctx, cfg.remote, cfg.remoteTO)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrDeviceNotReady, err)
	}
	l.Info("cannelloni_connected", "remote", cfg.remote)
	return cnl.NewTXWriter(ctx, conn, cfg.txQueue), nil
}
