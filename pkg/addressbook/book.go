package addressbook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sispop-dev/storage/pkg/identity"
)

// flushInterval is how often batched LastSeen updates are written out.
const flushInterval = 5 * time.Second

var (
	// ErrPeerNotFound is returned for operations on an unknown peer.
	ErrPeerNotFound = errors.New("peer not found")

	// ErrPeerBlacklisted is returned when updating a blacklisted peer.
	ErrPeerBlacklisted = errors.New("peer is blacklisted")
)

// Book is the persistent set of known service nodes. Membership changes are
// written immediately; LastSeen updates are batched and flushed every few
// seconds. Book is safe for concurrent use.
type Book struct {
	storage *storage

	mu    sync.RWMutex
	peers map[identity.PublicKey]*PeerEntry
	dirty bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New opens the book stored at path, creating an empty one if the file does
// not exist. Close must be called to persist batched changes.
func New(path string) (*Book, error) {
	s := newStorage(path)

	data, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load address book: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Book{
		storage: s,
		peers:   data.Peers,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go b.flushLoop(ctx)

	return b, nil
}

// AddPeer inserts entry or updates the addresses and metadata of an existing
// one. The entry is copied.
func (b *Book) AddPeer(entry *PeerEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	in := entry.Clone()

	existing, ok := b.peers[in.PublicKey]
	if !ok {
		in.CreatedAt = now
		in.UpdatedAt = now
		in.Blacklisted = false
		b.peers[in.PublicKey] = in
		return b.saveLocked()
	}

	if existing.Blacklisted {
		return fmt.Errorf("%w: %s", ErrPeerBlacklisted, in.PublicKey)
	}
	existing.Address = in.Address
	existing.Multiaddrs = in.Multiaddrs
	if in.Ed25519Key != nil {
		existing.Ed25519Key = in.Ed25519Key
	}
	if in.Metadata != nil {
		existing.Metadata = in.Metadata
	}
	existing.UpdatedAt = now
	return b.saveLocked()
}

// RemovePeer deletes a peer.
func (b *Book) RemovePeer(pk identity.PublicKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.peers[pk]; !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, pk)
	}
	delete(b.peers, pk)
	return b.saveLocked()
}

// GetPeer returns a copy of the peer's entry.
func (b *Book) GetPeer(pk identity.PublicKey) (*PeerEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.peers[pk]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerNotFound, pk)
	}
	return entry.Clone(), nil
}

// HasPeer reports whether the peer is in the book.
func (b *Book) HasPeer(pk identity.PublicKey) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.peers[pk]
	return ok
}

// ListPeers returns copies of every entry, blacklisted ones included,
// ordered by public key.
func (b *Book) ListPeers() []*PeerEntry {
	return b.list(func(*PeerEntry) bool { return true })
}

// ListActivePeers returns copies of the non-blacklisted entries, ordered by
// public key.
func (b *Book) ListActivePeers() []*PeerEntry {
	return b.list(func(e *PeerEntry) bool { return !e.Blacklisted })
}

func (b *Book) list(keep func(*PeerEntry) bool) []*PeerEntry {
	b.mu.RLock()
	result := make([]*PeerEntry, 0, len(b.peers))
	for _, entry := range b.peers {
		if keep(entry) {
			result = append(result, entry.Clone())
		}
	}
	b.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].PublicKey.Compare(result[j].PublicKey) < 0
	})
	return result
}

// BlacklistPeer stops the peer from being probed.
func (b *Book) BlacklistPeer(pk identity.PublicKey) error {
	return b.setBlacklisted(pk, true)
}

// UnblacklistPeer clears the blacklist flag.
func (b *Book) UnblacklistPeer(pk identity.PublicKey) error {
	return b.setBlacklisted(pk, false)
}

func (b *Book) setBlacklisted(pk identity.PublicKey, v bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.peers[pk]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, pk)
	}
	entry.Blacklisted = v
	entry.UpdatedAt = time.Now()
	return b.saveLocked()
}

// IsBlacklisted reports whether the peer is blacklisted. Unknown peers are not.
func (b *Book) IsBlacklisted(pk identity.PublicKey) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.peers[pk]
	return ok && entry.Blacklisted
}

// UpdateLastSeen records a successful probe. The change is batched.
func (b *Book) UpdateLastSeen(pk identity.PublicKey, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.peers[pk]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, pk)
	}
	entry.LastSeen = at
	entry.UpdatedAt = at
	b.dirty = true
	return nil
}

// Count returns the number of peers, blacklisted ones included.
func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}

// CountActive returns the number of non-blacklisted peers.
func (b *Book) CountActive() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, entry := range b.peers {
		if !entry.Blacklisted {
			n++
		}
	}
	return n
}

// Reload replaces the in-memory state with the file contents.
func (b *Book) Reload() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.storage.load()
	if err != nil {
		return fmt.Errorf("failed to reload address book: %w", err)
	}
	b.peers = data.Peers
	b.dirty = false
	return nil
}

// Flush writes pending batched changes.
func (b *Book) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.dirty {
		return nil
	}
	return b.saveLocked()
}

// Close stops the flush loop and writes pending changes.
func (b *Book) Close() error {
	b.cancel()
	<-b.done
	return b.Flush()
}

// saveLocked must be called with the write lock held.
func (b *Book) saveLocked() error {
	if err := b.storage.save(&bookFile{Version: currentVersion, Peers: b.peers}); err != nil {
		return err
	}
	b.dirty = false
	return nil
}

func (b *Book) flushLoop(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// errors are retried on the next tick
			_ = b.Flush()
		}
	}
}
