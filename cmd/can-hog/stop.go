package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kstaniek/go-can-hog/internal/gpio"
)

// newSysfsPin is a hook for tests (overridden in unit tests).
var newSysfsPin = func(n int, activeLow bool) gpio.Pin { return gpio.NewSysfsPin(n, activeLow) }

// initStopInput returns the pin acting as the stop button, or nil for --stop=none.
func initStopInput(cfg *appConfig, l *slog.Logger) (gpio.Pin, gpio.Edge, error) {
	switch cfg.stop {
	case "gpio":
		edge, err := gpio.ParseEdge(cfg.gpioEdge)
		if err != nil {
			return nil, 0, err
		}
		pin := newSysfsPin(cfg.gpioPin, cfg.gpioActiveLow)
		l.Info("stop_input", "kind", "gpio", "pin", pin.Name(), "edge", edge.String(), "active_low", cfg.gpioActiveLow)
		return pin, edge, nil
	case "signal":
		sig, ok := lookupSignal(cfg.stopSignal)
		if !ok {
			return nil, 0, fmt.Errorf("unknown stop signal %q", cfg.stopSignal)
		}
		l.Info("stop_input", "kind", "signal", "signal", sig.String(), "pid", os.Getpid())
		return gpio.NewSignalPin(sig), gpio.EdgeToActive, nil
	case "none":
		return nil, 0, nil
	}
	return nil, 0, fmt.Errorf("unknown stop input %q", cfg.stop)
}

// lookupSignal accepts "SIGUSR1", "USR1" or "usr1".
func lookupSignal(name string) (os.Signal, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "SIG") {
		n = "SIG" + n
	}
	sig, ok := stopSignals[n]
	return sig, ok
}
