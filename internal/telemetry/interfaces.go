package telemetry

import (
	"log"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
)

// Metric keys reported by the relay.
const (
	MetricPacketsSent      = "relay_packets_sent"
	MetricPacketsReceived  = "relay_packets_received"
	MetricBytesSent        = "relay_bytes_sent"
	MetricBytesReceived    = "relay_bytes_received"
	MetricDecodeFailures   = "relay_decode_failures"
	MetricStalePackets     = "relay_stale_packets"
	MetricTimeouts         = "relay_timeouts"
	MetricConnectedClients = "relay_connected_clients"
	MetricResetEpoch       = "relay_reset_epoch"
	MetricSendDrops        = "transport_send_drops"
	MetricDiscoveryReplies = "discovery_replies"
)

// Logger exposes the plain text logging used by relay components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return LoggerFunc(func(string, ...any) {})
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// Metrics exposes the counters relay components report into.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics adapts the logging router metrics into the Metrics interface.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return &metricsAdapter{metrics: metrics}
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m *metricsAdapter) Add(key string, delta uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m *metricsAdapter) Store(key string, value uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}

type nopMetrics struct{}

func (nopMetrics) Add(string, uint64)   {}
func (nopMetrics) Store(string, uint64) {}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return nopMetrics{}
}
