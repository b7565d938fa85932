package storage

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sispop-dev/storage/pkg/identity"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	// Name is the name of the check.
	Name string `json:"name"`

	// Healthy indicates whether the check passed.
	Healthy bool `json:"healthy"`

	// Message provides additional context about the check result.
	Message string `json:"message,omitempty"`
}

// HealthStatus represents the overall health status of the node.
type HealthStatus struct {
	// Healthy indicates whether all checks passed.
	Healthy bool `json:"healthy"`

	// Checks contains the results of individual checks.
	Checks []CheckResult `json:"checks"`

	// Timestamp is when the health check was performed.
	Timestamp time.Time `json:"timestamp"`
}

// IsHealthy reports whether the node is started and its key pair usable.
// This is a quick check suitable for liveness probes.
func (n *Node) IsHealthy() bool {
	return n.isStarted() && n.keysUsable()
}

func (n *Node) keysUsable() bool {
	return n.config.Keys.Use(func(*identity.PrivateKey) error { return nil }) == nil
}

// Health performs detailed health checks. This is suitable for readiness
// probes and debugging.
//
// Checks performed:
//   - node_started: whether the node has been started
//   - key_pair: whether the X25519 key pair is still usable
//   - address_book: whether the address book is loaded
//   - unreachable_peers: how many peers are failing (informational)
func (n *Node) Health() HealthStatus {
	status := HealthStatus{
		Healthy:   true,
		Checks:    make([]CheckResult, 0, 4),
		Timestamp: time.Now(),
	}
	add := func(c CheckResult) {
		status.Checks = append(status.Checks, c)
		if !c.Healthy {
			status.Healthy = false
		}
	}

	started := n.isStarted()
	add(CheckResult{
		Name:    "node_started",
		Healthy: started,
		Message: boolToMessage(started, "node is running", "node is not started"),
	})

	keysOK := n.keysUsable()
	add(CheckResult{
		Name:    "key_pair",
		Healthy: keysOK,
		Message: boolToMessage(keysOK, "key pair is available", "key pair was destroyed"),
	})

	add(CheckResult{
		Name:    "address_book",
		Healthy: true,
		Message: plural(n.addressBook.CountActive(), "active peer"),
	})

	add(CheckResult{
		Name:    "unreachable_peers",
		Healthy: true,
		Message: plural(n.ledger.Len(), "unreachable peer"),
	})

	return status
}

func plural(n int, noun string) string {
	s := strconv.Itoa(n) + " " + noun
	if n != 1 {
		s += "s"
	}
	return s
}

// boolToMessage returns trueMsg if b is true, otherwise falseMsg.
func boolToMessage(b bool, trueMsg, falseMsg string) string {
	if b {
		return trueMsg
	}
	return falseMsg
}

// HealthHandler returns an http.Handler that serves health check responses.
// The handler responds with 200 OK when healthy and 503 otherwise; the
// body is the JSON encoding of HealthStatus.
func HealthHandler(node *Node) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := node.Health()

		w.Header().Set("Content-Type", "application/json")
		if status.Healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(status)
	})
}

// LivenessHandler returns an http.Handler that serves liveness check
// responses without running the detailed checks.
func LivenessHandler(node *Node) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if node.IsHealthy() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"healthy":true}`))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"healthy":false}`))
		}
	})
}
