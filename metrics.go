package storage

// Metrics defines the metrics collection interface for the storage node.
// It is designed to be compatible with Prometheus and other metrics systems.
//
// Implementations must be safe for concurrent use.
//
// Metric naming convention:
//   - Counters: <name>_total (e.g., messages_encrypted_total)
//   - Histograms: <name>_seconds (e.g., probe_duration_seconds)
//   - Gauges: current_<name> (e.g., current_unreachable_peers)
type Metrics interface {
	// Channel metrics

	// MessageEncrypted records a message sealed for a peer.
	MessageEncrypted(bytes int)

	// MessageDecrypted records an envelope opened from a peer.
	MessageDecrypted(bytes int)

	// EncryptionError records an encryption failure.
	EncryptionError()

	// DecryptionError records a decryption failure.
	// Labels: reason (malformed, decryption, peer_key)
	DecryptionError(reason string)

	// KeyDerivation records a key derivation.
	// Labels: cached (true, false)
	KeyDerivation(cached bool)

	// Reachability metrics

	// ProbeResult records the outcome of a probe.
	// Labels: result (reachable, unreachable)
	ProbeResult(result string)

	// ProbeDuration records how long a probe took.
	ProbeDuration(seconds float64)

	// ReportResult records the outcome of a report to the daemon.
	// Labels: result (success, failure)
	ReportResult(result string)

	// UnreachablePeers sets the number of peers in the ledger.
	UnreachablePeers(count int)

	// Event metrics

	// EventEmitted records an event being emitted.
	// Labels: kind (the event kind)
	EventEmitted(kind string)

	// EventDropped records an event being dropped due to buffer full.
	EventDropped()
}

// NopMetrics is a no-op metrics implementation that discards all metrics.
// It is the default when no metrics collector is configured.
type NopMetrics struct{}

// Ensure NopMetrics implements Metrics.
var _ Metrics = NopMetrics{}

// MessageEncrypted implements Metrics.MessageEncrypted (no-op).
func (NopMetrics) MessageEncrypted(bytes int) {}

// MessageDecrypted implements Metrics.MessageDecrypted (no-op).
func (NopMetrics) MessageDecrypted(bytes int) {}

// EncryptionError implements Metrics.EncryptionError (no-op).
func (NopMetrics) EncryptionError() {}

// DecryptionError implements Metrics.DecryptionError (no-op).
func (NopMetrics) DecryptionError(reason string) {}

// KeyDerivation implements Metrics.KeyDerivation (no-op).
func (NopMetrics) KeyDerivation(cached bool) {}

// ProbeResult implements Metrics.ProbeResult (no-op).
func (NopMetrics) ProbeResult(result string) {}

// ProbeDuration implements Metrics.ProbeDuration (no-op).
func (NopMetrics) ProbeDuration(seconds float64) {}

// ReportResult implements Metrics.ReportResult (no-op).
func (NopMetrics) ReportResult(result string) {}

// UnreachablePeers implements Metrics.UnreachablePeers (no-op).
func (NopMetrics) UnreachablePeers(count int) {}

// EventEmitted implements Metrics.EventEmitted (no-op).
func (NopMetrics) EventEmitted(kind string) {}

// EventDropped implements Metrics.EventDropped (no-op).
func (NopMetrics) EventDropped() {}
