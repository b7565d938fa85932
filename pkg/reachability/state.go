package reachability

import "fmt"

// State is the reachability state of a single peer.
type State int

const (
	// StateUnknown means the ledger holds no record: the peer is presumed
	// reachable.
	StateUnknown State = iota

	// StateSuspected means at least one probe failed and the peer has not
	// been reported yet.
	StateSuspected

	// StateReported means the peer was reported to the daemon as unreachable.
	StateReported
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "Unknown"
	case StateSuspected:
		return "Suspected"
	case StateReported:
		return "Reported"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// CanTransitionTo reports whether the ledger can move a peer from s to
// target. Expire returns any state to Unknown; reporting never goes back.
func (s State) CanTransitionTo(target State) bool {
	switch s {
	case StateUnknown:
		return target == StateSuspected
	case StateSuspected:
		return target == StateReported || target == StateUnknown
	case StateReported:
		return target == StateUnknown
	default:
		return false
	}
}
