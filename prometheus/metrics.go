// Package prometheus provides a Prometheus implementation of the
// storage.Metrics interface.
//
// # Metric Names
//
// All metrics use the configured namespace prefix (default: "sispop_storage").
//
// # Counters
//
//	sispop_storage_messages_encrypted_total
//	sispop_storage_messages_decrypted_total
//	sispop_storage_bytes_encrypted_total
//	sispop_storage_bytes_decrypted_total
//	sispop_storage_encryption_errors_total
//	sispop_storage_decryption_errors_total{reason="malformed|decryption|peer_key"}
//	sispop_storage_key_derivations_total{cached="true|false"}
//	sispop_storage_probes_total{result="reachable|unreachable"}
//	sispop_storage_reports_total{result="success|failure"}
//	sispop_storage_events_emitted_total{kind="<kind>"}
//	sispop_storage_events_dropped_total
//
// # Histograms
//
//	sispop_storage_probe_duration_seconds
//
// # Gauges
//
//	sispop_storage_unreachable_peers
//
// # Example Usage
//
//	metrics := prommetrics.NewMetrics("")
//	cfg := storage.NewConfig(keys, path, storage.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.Handler())
package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sispop-dev/storage"
)

// DefaultNamespace is the default namespace for all metrics.
const DefaultNamespace = "sispop_storage"

// Metrics implements the storage.Metrics interface using Prometheus metrics.
//
// Metrics is safe for concurrent use.
type Metrics struct {
	// Channel metrics
	messagesEncrypted prometheus.Counter
	messagesDecrypted prometheus.Counter
	bytesEncrypted    prometheus.Counter
	bytesDecrypted    prometheus.Counter
	encryptionErrors  prometheus.Counter
	decryptionErrors  *prometheus.CounterVec
	keyDerivations    *prometheus.CounterVec

	// Reachability metrics
	probes           *prometheus.CounterVec
	probeDuration    prometheus.Histogram
	reports          *prometheus.CounterVec
	unreachablePeers prometheus.Gauge

	// Event metrics
	eventsEmitted *prometheus.CounterVec
	eventsDropped prometheus.Counter
}

// Ensure Metrics implements storage.Metrics.
var _ storage.Metrics = (*Metrics)(nil)

// NewMetrics creates a collector registered with the default Prometheus
// registry. It panics if the metrics are already registered.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a collector registered with registerer.
//
// If namespace is empty, DefaultNamespace is used.
// If registerer is nil, metrics will not be registered automatically.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}
	counterVec := func(name, help, label string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{label})
	}

	m := &Metrics{
		messagesEncrypted: counter("messages_encrypted_total", "Total number of messages encrypted"),
		messagesDecrypted: counter("messages_decrypted_total", "Total number of envelopes decrypted"),
		bytesEncrypted:    counter("bytes_encrypted_total", "Total plaintext bytes encrypted"),
		bytesDecrypted:    counter("bytes_decrypted_total", "Total plaintext bytes decrypted"),
		encryptionErrors:  counter("encryption_errors_total", "Total number of encryption errors"),
		decryptionErrors:  counterVec("decryption_errors_total", "Total number of decryption errors by reason", "reason"),
		keyDerivations:    counterVec("key_derivations_total", "Total number of key derivations by cache status", "cached"),
		probes:            counterVec("probes_total", "Total number of reachability probes by result", "result"),
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Histogram of reachability probe durations",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		reports: counterVec("reports_total", "Total number of reports to the daemon by result", "result"),
		unreachablePeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unreachable_peers",
			Help:      "Current number of peers in the unreachable ledger",
		}),
		eventsEmitted: counterVec("events_emitted_total", "Total number of events emitted by kind", "kind"),
		eventsDropped: counter("events_dropped_total", "Total number of events dropped due to buffer full"),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.messagesEncrypted,
			m.messagesDecrypted,
			m.bytesEncrypted,
			m.bytesDecrypted,
			m.encryptionErrors,
			m.decryptionErrors,
			m.keyDerivations,
			m.probes,
			m.probeDuration,
			m.reports,
			m.unreachablePeers,
			m.eventsEmitted,
			m.eventsDropped,
		)
	}

	return m
}

// MessageEncrypted implements storage.Metrics.
func (m *Metrics) MessageEncrypted(bytes int) {
	m.messagesEncrypted.Inc()
	m.bytesEncrypted.Add(float64(bytes))
}

// MessageDecrypted implements storage.Metrics.
func (m *Metrics) MessageDecrypted(bytes int) {
	m.messagesDecrypted.Inc()
	m.bytesDecrypted.Add(float64(bytes))
}

// EncryptionError implements storage.Metrics.
func (m *Metrics) EncryptionError() {
	m.encryptionErrors.Inc()
}

// DecryptionError implements storage.Metrics.
func (m *Metrics) DecryptionError(reason string) {
	m.decryptionErrors.WithLabelValues(reason).Inc()
}

// KeyDerivation implements storage.Metrics.
func (m *Metrics) KeyDerivation(cached bool) {
	m.keyDerivations.WithLabelValues(strconv.FormatBool(cached)).Inc()
}

// ProbeResult implements storage.Metrics.
func (m *Metrics) ProbeResult(result string) {
	m.probes.WithLabelValues(result).Inc()
}

// ProbeDuration implements storage.Metrics.
func (m *Metrics) ProbeDuration(seconds float64) {
	m.probeDuration.Observe(seconds)
}

// ReportResult implements storage.Metrics.
func (m *Metrics) ReportResult(result string) {
	m.reports.WithLabelValues(result).Inc()
}

// UnreachablePeers implements storage.Metrics.
func (m *Metrics) UnreachablePeers(count int) {
	m.unreachablePeers.Set(float64(count))
}

// EventEmitted implements storage.Metrics.
func (m *Metrics) EventEmitted(kind string) {
	m.eventsEmitted.WithLabelValues(kind).Inc()
}

// EventDropped implements storage.Metrics.
func (m *Metrics) EventDropped() {
	m.eventsDropped.Inc()
}
