package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-can-hog/internal/hog"
	"github.com/kstaniek/go-can-hog/internal/hub"
	"github.com/kstaniek/go-can-hog/internal/logging"
	"github.com/kstaniek/go-can-hog/internal/metrics"
	"github.com/kstaniek/go-can-hog/internal/oneshot"
	"github.com/kstaniek/go-can-hog/internal/shell"
)

const shutdownTimeout = 2 * time.Second

// runHog saturates the bus until the stop input, a signal or a failure. When
// the shell listener is enabled it keeps serving one-shot commands after the
// loop stopped, until the process is signalled.
func runHog(parent context.Context, cfg *appConfig) error {
	l := logging.L()
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	fr, err := cfg.hogFrame()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	tr, err := initBackend(ctx, cfg, l)
	if err != nil {
		l.Error("backend_init_error", "error", err)
		cancel()
		wg.Wait()
		return err
	}
	defer tr.Close()
	pin, edge, err := initStopInput(cfg, l)
	if err != nil {
		cancel()
		wg.Wait()
		return err
	}
	h := initHub(cfg, l)
	loop := hog.NewLoop(tr, hog.Config{
		Frame:     fr,
		Depth:     cfg.depth,
		MaxFrames: cfg.maxFrames,
		StopPin:   pin,
		StopEdge:  edge,
	})
	metrics.SetReadinessFunc(func() bool { return tr.Ready() && loop.State() == hog.StateRunning })
	stopHTTP := startMetricsHTTP(cfg)
	defer stopHTTP()

	g, gctx := errgroup.WithContext(ctx)
	serving := false
	if cfg.shellListen != "" {
		serveShell(gctx, g, cfg, h, oneshot.NewSender(tr, h), l)
		serving = true
	}
	g.Go(func() error {
		res, err := loop.Run(gctx)
		if err != nil && !res.Reason.Graceful() {
			return fmt.Errorf("hog stopped (%s): %w", res.Reason, err)
		}
		if serving && parent.Err() == nil {
			l.Info("hog_done_shell_serving", "addr", cfg.shellListen)
			return nil
		}
		cancel()
		return nil
	})
	err = g.Wait()
	cancel()
	wg.Wait()
	return err
}

// serveShell runs the TCP shell, its shutdown and the optional mDNS advertisement under g.
func serveShell(ctx context.Context, g *errgroup.Group, cfg *appConfig, h *hub.Hub, sender *oneshot.Sender, l *slog.Logger) {
	srv := shell.NewServer(
		shell.WithHub(h),
		shell.WithSender(sender),
		shell.WithListenAddr(cfg.shellListen),
		shell.WithMaxClients(cfg.shellMaxClients),
		shell.WithReadDeadline(cfg.shellReadTO),
		shell.WithLogger(l.With("component", "shell")),
	)
	g.Go(func() error { return srv.Serve(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			l.Warn("shell_shutdown", "error", err)
		}
		return nil
	})
	if !cfg.mdnsEnable {
		return
	}
	g.Go(func() error {
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return nil
		}
		cleanup, err := startMDNS(ctx, cfg, srv.Port())
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return nil
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", srv.Port())
		<-ctx.Done()
		cleanup()
		return nil
	})
}

func startMetricsHTTP(cfg *appConfig) func() {
	if cfg.metricsAddr == "" {
		return func() {}
	}
	metrics.InitBuildInfo(version, commit, date)
	srv := metrics.StartHTTP(cfg.metricsAddr)
	return func() { _ = srv.Shutdown(context.Background()) }
}

// outcome captures the first transmit event of a one-shot send.
type outcome chan hub.Event

func (o outcome) Publish(ev hub.Event) {
	select {
	case o <- ev:
	default:
	}
}

// runSend queues one frame, then waits up to wait for its outcome. Only a
// parse error, a refused submission or a failed transmission is an error.
func runSend(ctx context.Context, cfg *appConfig, arg string, wait time.Duration, out io.Writer) error {
	id, err := oneshot.ParseID(arg)
	if err != nil {
		return err
	}
	l := logging.L()
	tr, err := initBackend(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer tr.Close()
	res := make(outcome, 1)
	sender := oneshot.NewSender(tr, res)
	if err := sender.CheckReady(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Queuing TX frame with CAN ID 0x%03x\n", id)
	if err := sender.Send(id); err != nil {
		return fmt.Errorf("failed to enqueue TX frame: %w", err)
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case ev := <-res:
		fmt.Fprintln(out, ev.String())
		if ev.Kind == hub.EventFailed {
			return ev.Err
		}
	case <-t.C:
		l.Warn("oneshot_no_outcome", "id", fmt.Sprintf("0x%X", id), "waited", wait)
	case <-ctx.Done():
	}
	return nil
}

// runShell serves commands from in until EOF or exit, plus TCP sessions when
// --shell-listen is set.
func runShell(parent context.Context, cfg *appConfig, in io.Reader, out io.Writer) error {
	l := logging.L()
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	tr, err := initBackend(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer tr.Close()
	h := initHub(cfg, l)
	sender := oneshot.NewSender(tr, h)
	stopHTTP := startMetricsHTTP(cfg)
	defer stopHTTP()
	metrics.SetReadinessFunc(tr.Ready)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.shellListen != "" {
		serveShell(gctx, g, cfg, h, sender, l)
	}
	g.Go(func() error {
		defer cancel()
		err := shell.RunLocal(gctx, in, out, sender, h)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}
