package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sispop-dev/storage/pkg/reachability"
)

// DebugState represents the complete state of a Node for debugging purposes.
type DebugState struct {
	// Node identity
	PublicKey string `json:"pubkey_x25519"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	Started   bool   `json:"started"`
	Uptime    string `json:"uptime,omitempty"`

	AddressBook DebugAddressBook `json:"address_book"`

	// Unreachable lists the reachability ledger, oldest test first.
	Unreachable []DebugUnreachable `json:"unreachable"`

	Config DebugConfig `json:"config"`

	CachedSharedKeys int `json:"cached_shared_keys"`

	// Timestamp when state was captured
	CapturedAt time.Time `json:"captured_at"`
}

// DebugAddressBook represents address book state for debugging.
type DebugAddressBook struct {
	TotalPeers       int `json:"total_peers"`
	ActivePeers      int `json:"active_peers"`
	BlacklistedPeers int `json:"blacklisted_peers"`
}

// DebugUnreachable is one ledger record.
type DebugUnreachable struct {
	Peer           string    `json:"peer"`
	State          string    `json:"state"`
	FirstFailure   time.Time `json:"first_failure"`
	LastTested     time.Time `json:"last_tested"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
}

// DebugConfig represents configuration summary for debugging.
type DebugConfig struct {
	GracePeriod         string `json:"grace_period"`
	RetestInterval      string `json:"retest_interval"`
	ProbeTimeout        string `json:"probe_timeout"`
	ReportTimeout       string `json:"report_timeout"`
	MaxConcurrentProbes int    `json:"max_concurrent_probes"`
	CacheSharedKeys     bool   `json:"cache_shared_keys"`
	ReporterConfigured  bool   `json:"reporter_configured"`
}

// DumpState captures the current state of the node for debugging.
func (n *Node) DumpState() *DebugState {
	n.startMu.Lock()
	started, startedAt := n.started, n.startedAt
	n.startMu.Unlock()

	state := &DebugState{
		PublicKey:        n.PublicKey().String(),
		Version:          CurrentVersion().String(),
		GitCommit:        GitCommit,
		Started:          started,
		CachedSharedKeys: n.channel.CachedPeers(),
		CapturedAt:       time.Now(),
	}
	if started {
		state.Uptime = time.Since(startedAt).Truncate(time.Second).String()
	}

	total, active := n.addressBook.Count(), n.addressBook.CountActive()
	state.AddressBook = DebugAddressBook{
		TotalPeers:       total,
		ActivePeers:      active,
		BlacklistedPeers: total - active,
	}

	state.Unreachable = make([]DebugUnreachable, 0, n.ledger.Len())
	for _, e := range n.ledger.Snapshot() {
		st := reachability.StateSuspected
		if e.Reported {
			st = reachability.StateReported
		}
		state.Unreachable = append(state.Unreachable, DebugUnreachable{
			Peer:           e.Peer.String(),
			State:          st.String(),
			FirstFailure:   e.FirstFailure,
			LastTested:     e.LastTested,
			ElapsedSeconds: int64(e.Elapsed() / time.Second),
		})
	}

	state.Config = DebugConfig{
		GracePeriod:         n.config.GracePeriod.String(),
		RetestInterval:      n.config.RetestInterval.String(),
		ProbeTimeout:        n.config.ProbeTimeout.String(),
		ReportTimeout:       n.config.ReportTimeout.String(),
		MaxConcurrentProbes: n.config.MaxConcurrentProbes,
		CacheSharedKeys:     n.config.CacheSharedKeys,
		ReporterConfigured:  n.config.Reporter != nil,
	}

	return state
}

// DumpStateJSON returns the node state as formatted JSON.
func (n *Node) DumpStateJSON() (string, error) {
	data, err := json.MarshalIndent(n.DumpState(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return string(data), nil
}

// DumpStateString returns a human-readable string representation of the node state.
func (n *Node) DumpStateString() string {
	state := n.DumpState()
	var sb strings.Builder

	sb.WriteString("=== Storage Node Debug State ===\n\n")

	sb.WriteString("IDENTITY:\n")
	fmt.Fprintf(&sb, "  Public Key: %s\n", state.PublicKey)
	fmt.Fprintf(&sb, "  Version:    %s (%s)\n", state.Version, state.GitCommit)
	fmt.Fprintf(&sb, "  Started:    %t\n", state.Started)
	sb.WriteString("\n")

	sb.WriteString("ADDRESS BOOK:\n")
	fmt.Fprintf(&sb, "  Total:       %d peers\n", state.AddressBook.TotalPeers)
	fmt.Fprintf(&sb, "  Active:      %d peers\n", state.AddressBook.ActivePeers)
	fmt.Fprintf(&sb, "  Blacklisted: %d peers\n", state.AddressBook.BlacklistedPeers)
	sb.WriteString("\n")

	sb.WriteString("UNREACHABLE:\n")
	if len(state.Unreachable) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, u := range state.Unreachable {
		fmt.Fprintf(&sb, "  - %s... %s for %ds\n", u.Peer[:16], u.State, u.ElapsedSeconds)
	}
	sb.WriteString("\n")

	sb.WriteString("CONFIGURATION:\n")
	fmt.Fprintf(&sb, "  Grace Period:    %s\n", state.Config.GracePeriod)
	fmt.Fprintf(&sb, "  Retest Interval: %s\n", state.Config.RetestInterval)
	fmt.Fprintf(&sb, "  Probe Timeout:   %s\n", state.Config.ProbeTimeout)
	fmt.Fprintf(&sb, "  Max Probes:      %d\n", state.Config.MaxConcurrentProbes)
	fmt.Fprintf(&sb, "  Key Cache:       %t (%d cached)\n", state.Config.CacheSharedKeys, state.CachedSharedKeys)
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Captured at: %s\n", state.CapturedAt.Format(time.RFC3339))
	sb.WriteString("================================\n")

	return sb.String()
}
