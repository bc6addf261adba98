package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-can-hog/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"submitted", snap.Submitted,
					"completed", snap.Completed,
					"failed", snap.Failed,
					"rejected", snap.Rejected,
					"depth", snap.Depth,
					"socketcan_tx", snap.SocketCANTx,
					"serial_tx", snap.SerialTx,
					"cannelloni_tx", snap.CannelloniTx,
					"oneshot", snap.OneShot,
					"stops", snap.Stops,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
