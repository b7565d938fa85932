package prometheus

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func gatheredNames(t *testing.T, registry *prometheus.Registry) map[string]bool {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetrics_DefaultNamespace(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer("", registry)

	m.MessageEncrypted(10)

	if !gatheredNames(t, registry)["sispop_storage_messages_encrypted_total"] {
		t.Error("expected metric with default namespace")
	}
}

func TestNewMetrics_CustomNamespace(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer("myapp", registry)

	m.ProbeResult("reachable")

	if !gatheredNames(t, registry)["myapp_probes_total"] {
		t.Error("expected metric with custom namespace 'myapp'")
	}
}

func TestNewMetrics_NilRegisterer(t *testing.T) {
	m := NewMetricsWithRegisterer("test", nil)
	m.EventDropped()

	if got := testutil.ToFloat64(m.eventsDropped); got != 1 {
		t.Errorf("events dropped = %v, want 1", got)
	}
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetricsWithRegisterer("dup", registry)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewMetricsWithRegisterer("dup", registry)
}

func TestChannelMetrics(t *testing.T) {
	m := NewMetricsWithRegisterer("test", prometheus.NewRegistry())

	m.MessageEncrypted(100)
	m.MessageEncrypted(28)
	m.MessageDecrypted(64)
	m.EncryptionError()
	m.DecryptionError("malformed")
	m.DecryptionError("decryption")
	m.DecryptionError("decryption")
	m.KeyDerivation(true)
	m.KeyDerivation(false)
	m.KeyDerivation(false)

	if got := testutil.ToFloat64(m.messagesEncrypted); got != 2 {
		t.Errorf("messages encrypted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.bytesEncrypted); got != 128 {
		t.Errorf("bytes encrypted = %v, want 128", got)
	}
	if got := testutil.ToFloat64(m.bytesDecrypted); got != 64 {
		t.Errorf("bytes decrypted = %v, want 64", got)
	}
	if got := testutil.ToFloat64(m.encryptionErrors); got != 1 {
		t.Errorf("encryption errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.decryptionErrors.WithLabelValues("decryption")); got != 2 {
		t.Errorf("decryption errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.keyDerivations.WithLabelValues("false")); got != 2 {
		t.Errorf("uncached derivations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.keyDerivations.WithLabelValues("true")); got != 1 {
		t.Errorf("cached derivations = %v, want 1", got)
	}
}

func TestReachabilityMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer("test", registry)

	m.ProbeResult("unreachable")
	m.ProbeResult("unreachable")
	m.ProbeResult("reachable")
	m.ProbeDuration(0.2)
	m.ProbeDuration(1.5)
	m.ReportResult("success")
	m.ReportResult("failure")
	m.UnreachablePeers(7)
	m.UnreachablePeers(3)

	if got := testutil.ToFloat64(m.probes.WithLabelValues("unreachable")); got != 2 {
		t.Errorf("unreachable probes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.reports.WithLabelValues("failure")); got != 1 {
		t.Errorf("failed reports = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.unreachablePeers); got != 3 {
		t.Errorf("unreachable peers = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(m.probeDuration); got != 1 {
		t.Errorf("probe duration series = %d, want 1", got)
	}
	if !gatheredNames(t, registry)["test_probe_duration_seconds"] {
		t.Error("probe duration histogram not gathered")
	}
}

func TestEventMetrics(t *testing.T) {
	m := NewMetricsWithRegisterer("test", prometheus.NewRegistry())

	m.EventEmitted("Unreachable")
	m.EventEmitted("Reported")
	m.EventEmitted("Reported")
	m.EventDropped()

	if got := testutil.ToFloat64(m.eventsEmitted.WithLabelValues("Reported")); got != 2 {
		t.Errorf("reported events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.eventsDropped); got != 1 {
		t.Errorf("dropped events = %v, want 1", got)
	}
}

func TestMetrics_ConcurrentUse(t *testing.T) {
	m := NewMetricsWithRegisterer("test", prometheus.NewRegistry())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.MessageDecrypted(1)
				m.ProbeResult("reachable")
			}
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(m.messagesDecrypted); got != 1000 {
		t.Errorf("messages decrypted = %v, want 1000", got)
	}
}
