// Package reachability tracks service nodes that failed reachability
// probes and decides when one has been failing long enough to be reported.
//
// A peer enters the ledger on its first failed probe. Each further failure
// refreshes its last tested time; once a failure arrives more than the grace
// period after the first one, RecordUnreachable returns true exactly until
// the caller marks the peer reported. A successful probe removes the peer.
package reachability

import (
	"sort"
	"sync"
	"time"

	"github.com/sispop-dev/storage/pkg/identity"
)

// GracePeriod is how long a peer must keep failing before it is reported.
const GracePeriod = 120 * time.Minute

// Logger is the logging sink used by the ledger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}

// Record is a snapshot of one peer's failure history.
type Record struct {
	FirstFailure time.Time
	LastTested   time.Time
	Reported     bool
}

// Elapsed returns how long the peer has been failing as of its last test.
func (r Record) Elapsed() time.Duration {
	return r.LastTested.Sub(r.FirstFailure)
}

// State returns the state of a peer holding this record.
func (r Record) State() State {
	if r.Reported {
		return StateReported
	}
	return StateSuspected
}

// Entry pairs a peer with its record.
type Entry struct {
	Peer identity.PublicKey
	Record
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(l *Ledger) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithGracePeriod overrides GracePeriod.
func WithGracePeriod(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.grace = d
		}
	}
}

// WithLogger sets the logging sink.
func WithLogger(logger Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Ledger is the table of peers currently suspected offline.
// It is safe for concurrent use.
type Ledger struct {
	clock  Clock
	grace  time.Duration
	logger Logger

	mu      sync.Mutex
	records map[identity.PublicKey]*Record
}

// NewLedger creates an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		clock:   SystemClock{},
		grace:   GracePeriod,
		logger:  nopLogger{},
		records: make(map[identity.PublicKey]*Record),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// GracePeriod returns the configured grace period.
func (l *Ledger) GracePeriod() time.Duration {
	return l.grace
}

// RecordUnreachable notes a failed probe of peer. It returns true when the
// peer has been failing for longer than the grace period and has not been
// reported; the caller should report it and then call SetReported.
func (l *Ledger) RecordUnreachable(peer identity.PublicKey) bool {
	_, due := l.RecordFailure(peer)
	return due
}

// RecordFailure is RecordUnreachable that also returns the record as it
// stands after this failure, read under the same lock.
func (l *Ledger) RecordFailure(peer identity.PublicKey) (Record, bool) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[peer]
	if !ok {
		l.logger.Debug("adding a new node to unreachable list", "peer", peer.String())
		rec = &Record{FirstFailure: now, LastTested: now}
		l.records[peer] = rec
		return *rec, false
	}

	if now.After(rec.LastTested) {
		rec.LastTested = now
	}
	elapsed := rec.Elapsed()
	l.logger.Debug("node is already known to be unreachable",
		"peer", peer.String(), "elapsed_seconds", int64(elapsed/time.Second))

	if rec.Reported {
		l.logger.Debug("already reported node", "peer", peer.String())
		return *rec, false
	}

	if elapsed > l.grace {
		l.logger.Debug("will report node", "peer", peer.String())
		return *rec, true
	}
	return *rec, false
}

// Expire removes peer, typically after it answered a probe. It reports
// whether a record existed.
func (l *Ledger) Expire(peer identity.PublicKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[peer]; !ok {
		return false
	}
	delete(l.records, peer)
	return true
}

// SetReported marks peer as reported. It is a no-op for unknown peers.
func (l *Ledger) SetReported(peer identity.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records[peer]; ok {
		rec.Reported = true
	}
}

// NextToTest returns the peer whose last test is the oldest. Ties go to the
// smaller key. ok is false when the ledger is empty.
func (l *Ledger) NextToTest() (peer identity.PublicKey, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var oldest time.Time
	for pk, rec := range l.records {
		if !ok || rec.LastTested.Before(oldest) ||
			(rec.LastTested.Equal(oldest) && pk.Compare(peer) < 0) {
			peer, oldest, ok = pk, rec.LastTested, true
		}
	}
	return peer, ok
}

// Lookup returns a copy of peer's record.
func (l *Ledger) Lookup(peer identity.PublicKey) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[peer]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// State returns peer's current state.
func (l *Ledger) State(peer identity.PublicKey) State {
	rec, ok := l.Lookup(peer)
	if !ok {
		return StateUnknown
	}
	return rec.State()
}

// Len returns the number of peers currently suspected offline.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Snapshot returns every record, oldest last tested first.
func (l *Ledger) Snapshot() []Entry {
	l.mu.Lock()
	entries := make([]Entry, 0, len(l.records))
	for pk, rec := range l.records {
		entries = append(entries, Entry{Peer: pk, Record: *rec})
	}
	l.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.LastTested.Equal(b.LastTested) {
			return a.LastTested.Before(b.LastTested)
		}
		return a.Peer.Compare(b.Peer) < 0
	})
	return entries
}
