package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Frame outcomes recorded by RecordFrame.
const (
	FrameOK             = "ok"
	FrameTimeout        = "timeout"
	FrameDecodeError    = "decode_error"
	FrameIntegrityError = "integrity_error"
	FrameForeign        = "foreign"
	FrameUnexpectedKind = "unexpected_kind"
	FrameIDMismatch     = "id_mismatch"
	FrameRejected       = "rejected"
	FrameTransportError = "transport_error"
)

var (
	registerOnce sync.Once

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpnet",
			Subsystem: "cp",
			Name:      "frames_received_total",
			Help:      "Inbound CP receive outcomes by role.",
		},
		[]string{"role", "outcome"},
	)
	cookieAdmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpnet",
			Subsystem: "cookie",
			Name:      "admissions_total",
			Help:      "Cookie requests answered by the cookie server.",
		},
		[]string{"result"},
	)
	cookieStoreSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cpnet",
			Subsystem: "cookie",
			Name:      "store_entries",
			Help:      "Live cookies held by the cookie store.",
		},
	)
	commandExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpnet",
			Subsystem: "client",
			Name:      "command_exchanges_total",
			Help:      "Client command receive cycles by result.",
		},
		[]string{"result"},
	)
	commandExchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cpnet",
			Subsystem: "client",
			Name:      "command_exchange_duration_seconds",
			Help:      "Time from send to terminal receive outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)
	commandsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpnet",
			Subsystem: "command_server",
			Name:      "commands_total",
			Help:      "Commands answered by the command server.",
		},
		[]string{"command", "success"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpnet",
			Subsystem: "admin_http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "role", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cpnet",
			Subsystem: "admin_http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "role", "route", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesReceived,
			cookieAdmissions,
			cookieStoreSize,
			commandExchanges,
			commandExchangeDuration,
			commandsProcessed,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordFrame(role, outcome string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(role, outcome).Inc()
}

func RecordCookieAdmission(result string, storeSize int) {
	RegisterMetrics()
	cookieAdmissions.WithLabelValues(result).Inc()
	cookieStoreSize.Set(float64(storeSize))
}

func RecordCommandExchange(result string, duration time.Duration) {
	RegisterMetrics()
	commandExchanges.WithLabelValues(result).Inc()
	commandExchangeDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func RecordCommandProcessed(command string, success bool) {
	RegisterMetrics()
	commandsProcessed.WithLabelValues(command, strconv.FormatBool(success)).Inc()
}

func RecordHTTPRequest(node, role, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, role, route, statusLabel).Inc()
	httpDuration.WithLabelValues(node, role, route, statusLabel).Observe(duration.Seconds())
}
