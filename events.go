package storage

import (
	"time"

	"github.com/sispop-dev/storage/pkg/identity"
	"github.com/sispop-dev/storage/pkg/reachability"
)

// EventKind identifies what happened to a peer's reachability.
type EventKind int

const (
	// EventUnreachable is emitted when a probe of a peer fails.
	EventUnreachable EventKind = iota

	// EventRecovered is emitted when a previously failing peer answers.
	EventRecovered

	// EventReported is emitted after the daemon accepted a report.
	EventReported

	// EventReportFailed is emitted when a report could not be delivered.
	EventReportFailed
)

// String returns a human-readable representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventUnreachable:
		return "Unreachable"
	case EventRecovered:
		return "Recovered"
	case EventReported:
		return "Reported"
	case EventReportFailed:
		return "ReportFailed"
	default:
		return "Unknown"
	}
}

// ReachabilityEvent describes a change in a peer's reachability.
type ReachabilityEvent struct {
	// Peer is the peer this event relates to.
	Peer identity.PublicKey

	// Kind is what happened.
	Kind EventKind

	// State is the peer's ledger state after the event.
	State reachability.State

	// Elapsed is the time since the peer's first recorded failure. Zero for
	// EventRecovered and for a first failure.
	Elapsed time.Duration

	// Error is the probe or report error, if any.
	Error error

	// Timestamp is when this event occurred.
	Timestamp time.Time
}

// IsError returns true if this event represents an error condition.
func (e ReachabilityEvent) IsError() bool {
	return e.Error != nil
}
