package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kstaniek/go-can-hog/internal/can"
	"github.com/kstaniek/go-can-hog/internal/gpio"
	"github.com/kstaniek/go-can-hog/internal/hog"
	"github.com/kstaniek/go-can-hog/internal/oneshot"
	"github.com/spf13/pflag"
)

const envPrefix = "CAN_HOG_"

// notLayered are flags that only make sense on the command line.
var notLayered = map[string]bool{"config": true, "help": true, "version": true}

type appConfig struct {
	configFile string

	backend      string
	canIf        string
	fd           bool
	serialDev    string
	baud         int
	serialReadTO time.Duration
	remote       string
	remoteTO     time.Duration
	txQueue      int

	hogID       string
	hogExtended bool
	hogDLC      int
	depth       int
	maxFrames   uint64

	stop          string
	gpioPin       int
	gpioActiveLow bool
	gpioEdge      string
	stopSignal    string

	shellListen     string
	shellMaxClients int
	shellReadTO     time.Duration
	shellBuffer     int
	shellPolicy     string
	mdnsEnable      bool
	mdnsName        string

	metricsAddr     string
	logFormat       string
	logLevel        string
	logMetricsEvery time.Duration
}

// registerFlags binds every option to fs with its default.
func registerFlags(fs *pflag.FlagSet, cfg *appConfig) {
	fs.StringVar(&cfg.configFile, "config", "", "YAML config file; keys are flag names")

	fs.StringVar(&cfg.backend, "backend", "socketcan", "CAN backend: socketcan|serial|cannelloni")
	fs.StringVar(&cfg.canIf, "can-if", "can0", "SocketCAN interface (when --backend=socketcan)")
	fs.BoolVar(&cfg.fd, "fd", false, "Enable CAN FD frames on the SocketCAN socket")
	fs.StringVar(&cfg.serialDev, "serial", "/dev/ttyUSB0", "Serial device path (when --backend=serial)")
	fs.IntVar(&cfg.baud, "baud", 115200, "Serial baud rate")
	fs.DurationVar(&cfg.serialReadTO, "serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	fs.StringVar(&cfg.remote, "remote", "", "can-server address host:port (when --backend=cannelloni)")
	fs.DurationVar(&cfg.remoteTO, "remote-timeout", 3*time.Second, "Dial, handshake and write timeout for --remote")
	fs.IntVar(&cfg.txQueue, "tx-queue", 64, "Transmit queue capacity (frames); must exceed --depth")

	fs.StringVar(&cfg.hogID, "hog-id", "16", "Identifier of the hog frame (C literal: 0x10, 020, 16)")
	fs.BoolVar(&cfg.hogExtended, "hog-extended", false, "Send the hog frame with an extended identifier")
	fs.IntVar(&cfg.hogDLC, "hog-dlc", 0, "Hog frame data length (payload is zeros)")
	fs.IntVar(&cfg.depth, "depth", hog.DefaultDepth, "Frames kept in flight")
	fs.Uint64Var(&cfg.maxFrames, "max-frames", 0, "Stop after this many frames (0 = until stopped)")

	fs.StringVar(&cfg.stop, "stop", "signal", "Stop input: gpio|signal|none")
	fs.IntVar(&cfg.gpioPin, "gpio-pin", 0, "Sysfs GPIO number of the stop button (when --stop=gpio)")
	fs.BoolVar(&cfg.gpioActiveLow, "gpio-active-low", true, "Stop button pulls the line low when pressed")
	fs.StringVar(&cfg.gpioEdge, "gpio-edge", "to-active", "Stop button edge: to-active|rising|falling|both")
	fs.StringVar(&cfg.stopSignal, "stop-signal", "SIGUSR1", "Signal acting as the stop input (when --stop=signal)")

	fs.StringVar(&cfg.shellListen, "shell-listen", "", "TCP listen address of the command shell; empty disables")
	fs.IntVar(&cfg.shellMaxClients, "shell-max-clients", 4, "Maximum simultaneous shell sessions (0 = unlimited)")
	fs.DurationVar(&cfg.shellReadTO, "shell-read-timeout", 5*time.Minute, "Idle timeout of a shell session")
	fs.IntVar(&cfg.shellBuffer, "shell-buffer", 64, "Per-session event buffer")
	fs.StringVar(&cfg.shellPolicy, "shell-policy", "drop", "Event backpressure policy: drop|kick")
	fs.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Advertise the shell via mDNS")
	fs.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default can-hog-<hostname>)")

	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	fs.StringVar(&cfg.logFormat, "log-format", "text", "Log format: text|json")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters")
}

// loadConfig layers the config file and CAN_HOG_* variables under the flags
// given on the command line (flags > env > file > defaults), then validates.
func loadConfig(fs *pflag.FlagSet, cfg *appConfig) error {
	set := map[string]struct{}{}
	fs.Visit(func(f *pflag.Flag) { set[f.Name] = struct{}{} })
	path := cfg.configFile
	if _, ok := set["config"]; !ok {
		if v, ok := os.LookupEnv(envPrefix + "CONFIG"); ok && strings.TrimSpace(v) != "" {
			path = strings.TrimSpace(v)
		}
	}
	if path != "" {
		if err := applyConfigFile(fs, path, set); err != nil {
			return err
		}
	}
	if err := applyEnvOverrides(fs, set); err != nil {
		return fmt.Errorf("environment override error: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	return nil
}

func envName(flag string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// applyEnvOverrides maps CAN_HOG_<FLAG_NAME> environment variables onto flags
// unless the flag was explicitly set (flag wins). Empty values are ignored.
// The first parse error is returned after all variables were tried.
func applyEnvOverrides(fs *pflag.FlagSet, set map[string]struct{}) error {
	var firstErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if _, ok := set[f.Name]; ok || notLayered[f.Name] {
			return
		}
		v, ok := os.LookupEnv(envName(f.Name))
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			return
		}
		if err := fs.Set(f.Name, v); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", envName(f.Name), err)
		}
	})
	return firstErr
}

// applyConfigFile reads a flat YAML mapping of flag names to scalar values.
func applyConfigFile(fs *pflag.FlagSet, path string, set map[string]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()
	var values map[string]any
	if err := yaml.NewDecoder(f, yaml.Strict()).Decode(&values); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	for key, raw := range values {
		fl := fs.Lookup(key)
		if fl == nil || notLayered[key] {
			return fmt.Errorf("config file %s: unknown key %q", path, key)
		}
		if _, ok := set[key]; ok {
			continue
		}
		switch raw.(type) {
		case map[string]any, []any:
			return fmt.Errorf("config file %s: %s must be a scalar", path, key)
		}
		if raw == nil {
			continue
		}
		if err := fs.Set(key, fmt.Sprint(raw)); err != nil {
			return fmt.Errorf("config file %s: %s: %w", path, key, err)
		}
	}
	return nil
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners, only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "socketcan":
		if c.canIf == "" {
			return errors.New("can-if must not be empty")
		}
	case "serial":
		if c.baud <= 0 {
			return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
		}
		if c.serialReadTO <= 0 {
			return errors.New("serial-read-timeout must be > 0")
		}
	case "cannelloni":
		if c.remote == "" {
			return errors.New("remote must be set for the cannelloni backend")
		}
		if c.remoteTO <= 0 {
			return errors.New("remote-timeout must be > 0")
		}
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if c.txQueue <= 0 {
		return fmt.Errorf("tx-queue must be > 0 (got %d)", c.txQueue)
	}
	if _, err := c.hogFrame(); err != nil {
		return err
	}
	if c.depth < 1 {
		return fmt.Errorf("depth must be >= 1 (got %d)", c.depth)
	}
	// The loop submits one frame before reclaiming, so depth+1 may be queued.
	if c.txQueue <= c.depth {
		return fmt.Errorf("tx-queue must be > depth (got tx-queue %d, depth %d)", c.txQueue, c.depth)
	}
	switch c.stop {
	case "gpio":
		if c.gpioPin < 0 {
			return fmt.Errorf("gpio-pin must be >= 0 (got %d)", c.gpioPin)
		}
		if _, err := gpio.ParseEdge(c.gpioEdge); err != nil {
			return fmt.Errorf("invalid gpio-edge: %s", c.gpioEdge)
		}
	case "signal":
		if _, ok := lookupSignal(c.stopSignal); !ok {
			return fmt.Errorf("invalid stop-signal: %s", c.stopSignal)
		}
	case "none":
	default:
		return fmt.Errorf("invalid stop: %s", c.stop)
	}
	switch c.shellPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid shell-policy: %s", c.shellPolicy)
	}
	if c.shellBuffer <= 0 {
		return fmt.Errorf("shell-buffer must be > 0 (got %d)", c.shellBuffer)
	}
	if c.shellMaxClients < 0 {
		return errors.New("shell-max-clients must be >= 0")
	}
	if c.shellReadTO <= 0 {
		return errors.New("shell-read-timeout must be > 0")
	}
	if c.logMetricsEvery < 0 {
		return errors.New("log-metrics-interval must be >= 0")
	}
	return nil
}

// hogFrame builds the constant frame sent by the hog loop.
func (c *appConfig) hogFrame() (can.Frame, error) {
	id, err := oneshot.ParseID(c.hogID)
	if err != nil {
		return can.Frame{}, fmt.Errorf("invalid hog-id: %w", err)
	}
	if c.hogDLC < 0 || c.hogDLC > can.MaxClassicLen {
		return can.Frame{}, fmt.Errorf("hog-dlc must be 0..%d (got %d)", can.MaxClassicLen, c.hogDLC)
	}
	fr := can.Frame{ID: id, Extended: c.hogExtended, DLC: uint8(c.hogDLC)}
	if err := fr.Validate(); err != nil {
		return can.Frame{}, fmt.Errorf("invalid hog frame: %w", err)
	}
	return fr, nil
}
