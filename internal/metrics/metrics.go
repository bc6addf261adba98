package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-can-hog/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	SocketCANTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_tx_frames_total",
		Help: "Total CAN frames written to the SocketCAN interface.",
	})
	SerialTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_tx_frames_total",
		Help: "Total CAN frames written to the serial link.",
	})
	CannelloniTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cannelloni_tx_frames_total",
		Help: "Total CAN frames written to the remote can-server.",
	})
	HogSubmittedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hog_submitted_frames_total",
		Help: "Frames accepted by the transport on behalf of the bus hog loop.",
	})
	HogCompletedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hog_completed_frames_total",
		Help: "Completion notifications received for bus hog frames (success or error).",
	})
	HogFailedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hog_failed_frames_total",
		Help: "Bus hog frames whose transmission failed asynchronously.",
	})
	HogRejectedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hog_rejected_frames_total",
		Help: "Bus hog submissions rejected synchronously by the transport.",
	})
	HogPipelineDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hog_pipeline_depth",
		Help: "Frames submitted by the hog loop and not yet reclaimed.",
	})
	HogState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hog_state",
		Help: "Bus hog loop state (0=init 1=primed 2=running 3=stopped).",
	})
	GateOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hog_gate_overflow_total",
		Help: "Completions that found the completion gate saturated.",
	})
	StopActivations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stop_input_activations_total",
		Help: "Stop input activations seen by the interrupt handler.",
	})
	OneShotFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oneshot_frames_total",
		Help: "One-shot frames by outcome (queued, rejected, transmitted, failed).",
	}, []string{"outcome"})
	ShellActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shell_active_clients",
		Help: "Current number of connected shell sessions.",
	})
	ShellRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shell_rejected_clients_total",
		Help: "Total shell connection attempts rejected (max-clients).",
	})
	HubDroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_events_total",
		Help: "Total TX events dropped by the hub due to slow shell sessions.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total shell sessions disconnected due to backpressure kick policy.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrSocketCANWrite  = "socketcan_write"
	ErrSocketCANOver   = "socketcan_tx_overflow"
	ErrSerialWrite     = "serial_write"
	ErrSerialOverflow  = "serial_tx_overflow"
	ErrCannelloniWrite = "cannelloni_write"
	ErrCannelloniOver  = "cannelloni_tx_overflow"
	ErrShellRead       = "shell_read"
	ErrShellWrite      = "shell_write"
	ErrShellAccept     = "shell_accept"
	ErrGPIO            = "gpio"
)

// One-shot outcome labels.
const (
	OneShotQueued      = "queued"
	OneShotRejected    = "rejected"
	OneShotTransmitted = "transmitted"
	OneShotFailed      = "failed"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localSocketCANTx  uint64
	localSerialTx     uint64
	localCannelloniTx uint64
	localSubmitted    uint64
	localCompleted    uint64
	localFailed       uint64
	localRejected     uint64
	localDepth        uint64
	localGateOverflow uint64
	localStops        uint64
	localOneShot      uint64
	localShellClients uint64
	localHubDrop      uint64
	localHubKick      uint64
	localErrors       uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	SocketCANTx   uint64
	SerialTx      uint64
	CannelloniTx  uint64
	Submitted     uint64
	Completed     uint64
	Failed        uint64
	Rejected      uint64
	Depth         uint64
	GateOverflows uint64
	Stops         uint64
	OneShot       uint64 // one-shot frames accepted by the transport
	ShellClients  uint64
	HubDrops      uint64
	HubKicks      uint64
	Errors        uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		SocketCANTx:   atomic.LoadUint64(&localSocketCANTx),
		SerialTx:      atomic.LoadUint64(&localSerialTx),
		CannelloniTx:  atomic.LoadUint64(&localCannelloniTx),
		Submitted:     atomic.LoadUint64(&localSubmitted),
		Completed:     atomic.LoadUint64(&localCompleted),
		Failed:        atomic.LoadUint64(&localFailed),
		Rejected:      atomic.LoadUint64(&localRejected),
		Depth:         atomic.LoadUint64(&localDepth),
		GateOverflows: atomic.LoadUint64(&localGateOverflow),
		Stops:         atomic.LoadUint64(&localStops),
		OneShot:       atomic.LoadUint64(&localOneShot),
		ShellClients:  atomic.LoadUint64(&localShellClients),
		HubDrops:      atomic.LoadUint64(&localHubDrop),
		HubKicks:      atomic.LoadUint64(&localHubKick),
		Errors:        atomic.LoadUint64(&localErrors),
	}
}

// IncSocketCANTx increments SocketCAN transmit counters.
func IncSocketCANTx() {
	SocketCANTxFrames.Inc()
	atomic.AddUint64(&localSocketCANTx, 1)
}

func IncSerialTx() {
	SerialTxFrames.Inc()
	atomic.AddUint64(&localSerialTx, 1)
}

func IncCannelloniTx() {
	CannelloniTxFrames.Inc()
	atomic.AddUint64(&localCannelloniTx, 1)
}

func IncHogSubmitted() {
	HogSubmittedFrames.Inc()
	atomic.AddUint64(&localSubmitted, 1)
}

func IncHogCompleted() {
	HogCompletedFrames.Inc()
	atomic.AddUint64(&localCompleted, 1)
}

func IncHogFailed() {
	HogFailedFrames.Inc()
	atomic.AddUint64(&localFailed, 1)
}

func IncHogRejected() {
	HogRejectedFrames.Inc()
	atomic.AddUint64(&localRejected, 1)
}

// SetPipelineDepth records the number of unreclaimed hog submissions.
func SetPipelineDepth(n int) {
	HogPipelineDepth.Set(float64(n))
	atomic.StoreUint64(&localDepth, uint64(n))
}

func SetHogState(s int) { HogState.Set(float64(s)) }

func IncGateOverflow() {
	GateOverflows.Inc()
	atomic.AddUint64(&localGateOverflow, 1)
}

func IncStopActivation() {
	StopActivations.Inc()
	atomic.AddUint64(&localStops, 1)
}

// IncOneShot counts a one-shot outcome; label is one of the OneShot* constants.
func IncOneShot(label string) {
	OneShotFrames.WithLabelValues(label).Inc()
	if label == OneShotQueued {
		atomic.AddUint64(&localOneShot, 1)
	}
}

func SetShellClients(n int) {
	ShellActiveClients.Set(float64(n))
	atomic.StoreUint64(&localShellClients, uint64(n))
}

func IncShellReject() { ShellRejectedClients.Inc() }

func IncHubDrop() {
	HubDroppedEvents.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrSocketCANWrite, ErrSocketCANOver,
		ErrSerialWrite, ErrSerialOverflow,
		ErrCannelloniWrite, ErrCannelloniOver,
		ErrShellRead, ErrShellWrite, ErrShellAccept, ErrGPIO,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
	for _, lbl := range []string{OneShotQueued, OneShotRejected, OneShotTransmitted, OneShotFailed} {
		OneShotFrames.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
