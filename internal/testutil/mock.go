// Package testutil provides fakes for the node's collaborators: a manual
// clock, a scripted prober, a recording reporter and a recording logger.
package testutil

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sispop-dev/storage/pkg/addressbook"
	"github.com/sispop-dev/storage/pkg/identity"
)

// ErrUnreachable is the default failure returned by MockProber.
var ErrUnreachable = errors.New("peer unreachable")

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockProber answers probes from a per-peer script. Peers without a result
// are reachable.
type MockProber struct {
	mu      sync.Mutex
	results map[identity.PublicKey]error
	probes  []identity.PublicKey
}

// NewMockProber creates a prober where every peer is reachable.
func NewMockProber() *MockProber {
	return &MockProber{results: make(map[identity.PublicKey]error)}
}

// SetUnreachable makes probes of peer fail with ErrUnreachable.
func (p *MockProber) SetUnreachable(peer identity.PublicKey) {
	p.SetResult(peer, ErrUnreachable)
}

// SetReachable makes probes of peer succeed.
func (p *MockProber) SetReachable(peer identity.PublicKey) {
	p.SetResult(peer, nil)
}

// SetResult sets the error returned for peer.
func (p *MockProber) SetResult(peer identity.PublicKey, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[peer] = err
}

// Probe implements probe.Prober.
func (p *MockProber) Probe(ctx context.Context, entry *addressbook.PeerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes = append(p.probes, entry.PublicKey)
	return p.results[entry.PublicKey]
}

// Probes returns the peers probed so far, in order.
func (p *MockProber) Probes() []identity.PublicKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]identity.PublicKey, len(p.probes))
	copy(out, p.probes)
	return out
}

// MockReporter records reports and optionally fails or delays them.
type MockReporter struct {
	mu      sync.Mutex
	reports []identity.PublicKey
	calls   int
	err     error
	delay   time.Duration
}

// ReportUnreachable implements the node's reporter interface.
func (r *MockReporter) ReportUnreachable(ctx context.Context, peer identity.PublicKey) error {
	r.mu.Lock()
	r.calls++
	delay := r.delay
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.reports = append(r.reports, peer)
	return nil
}

// SetError makes subsequent reports fail with err. Pass nil to clear.
func (r *MockReporter) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// SetDelay makes each report take d before it completes.
func (r *MockReporter) SetDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

// Calls returns how many reports were attempted, failed ones included.
func (r *MockReporter) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Reports returns the successfully reported peers.
func (r *MockReporter) Reports() []identity.PublicKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]identity.PublicKey, len(r.reports))
	copy(out, r.reports)
	return out
}

// LogEntry is one call recorded by Logger.
type LogEntry struct {
	Level string
	Msg   string
	KVs   []any
}

// Logger records log calls.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *Logger) add(level, msg string, kvs []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, KVs: kvs})
}

func (l *Logger) Debug(msg string, kvs ...any) { l.add("debug", msg, kvs) }
func (l *Logger) Info(msg string, kvs ...any)  { l.add("info", msg, kvs) }
func (l *Logger) Warn(msg string, kvs ...any)  { l.add("warn", msg, kvs) }
func (l *Logger) Error(msg string, kvs ...any) { l.add("error", msg, kvs) }

// Entries returns a copy of the recorded calls.
func (l *Logger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Contains reports whether any recorded message equals msg.
func (l *Logger) Contains(msg string) bool {
	for _, e := range l.Entries() {
		if e.Msg == msg {
			return true
		}
	}
	return false
}

// MustKeyPair generates a random X25519 key pair or panics.
func MustKeyPair() *identity.KeyPair {
	kp, err := identity.GenerateKeyPair(rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("testutil: generate key pair: %v", err))
	}
	return kp
}

// PeerKey returns a deterministic public key whose first byte is b.
func PeerKey(b byte) identity.PublicKey {
	var pk identity.PublicKey
	pk[0] = b
	pk[31] = 0x40
	return pk
}
