package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sispop-dev/storage/internal/eventdispatch"
	storageotel "github.com/sispop-dev/storage/otel"
	"github.com/sispop-dev/storage/pkg/addressbook"
	"github.com/sispop-dev/storage/pkg/crypto"
	"github.com/sispop-dev/storage/pkg/identity"
	"github.com/sispop-dev/storage/pkg/reachability"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Reporter delivers a verdict that a peer is unreachable to the daemon.
// *sispopd.Client implements it.
type Reporter interface {
	ReportUnreachable(ctx context.Context, peer identity.PublicKey) error
}

// Node is a storage server's view of the swarm: it encrypts traffic to
// peers and tracks which of them stopped answering.
//
// All public methods are thread-safe.
type Node struct {
	config *Config

	// Core components
	channel     *crypto.Channel[[]byte]
	ledger      *reachability.Ledger
	addressBook *addressbook.Book
	events      *eventdispatch.Dispatcher[ReachabilityEvent]
	tracer      *storageotel.Tracer
	probes      *semaphore.Weighted
	reports     singleflight.Group

	// Lifecycle
	cancel    context.CancelFunc
	group     *errgroup.Group
	started   bool
	stopped   bool
	startedAt time.Time
	startMu   sync.Mutex
}

// New creates a new node with the given configuration.
// The node is not started until Start() is called.
func New(cfg *Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.applyDefaults()

	book, err := addressbook.New(cfg.AddressBookPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open address book: %w", err)
	}

	n := &Node{
		config:      cfg,
		addressBook: book,
		events:      eventdispatch.NewDispatcher[ReachabilityEvent](cfg.EventBufferSize),
		tracer:      storageotel.NewTracer(cfg.TracerProvider),
		probes:      semaphore.NewWeighted(int64(cfg.MaxConcurrentProbes)),
	}

	opts := []crypto.ChannelOption{
		crypto.WithRandom(cfg.Random),
		crypto.WithKeyObserver(func(_ identity.PublicKey, cached bool) {
			cfg.Metrics.KeyDerivation(cached)
		}),
	}
	if cfg.CacheSharedKeys {
		opts = append(opts, crypto.WithKeyCache())
	}
	n.channel = crypto.NewChannel[[]byte](cfg.Keys, opts...)

	n.ledger = reachability.NewLedger(
		reachability.WithClock(cfg.Clock),
		reachability.WithGracePeriod(cfg.GracePeriod),
		reachability.WithLogger(cfg.Logger),
	)

	return n, nil
}

// Start launches the background monitor that re-probes failing peers.
// The monitor runs until ctx is done or Stop is called.
func (n *Node) Start(ctx context.Context) error {
	n.startMu.Lock()
	defer n.startMu.Unlock()

	if n.started {
		return ErrNodeAlreadyStarted
	}
	if n.stopped {
		return NewError(ErrCodeNodeNotStarted, "node was stopped")
	}

	ctx, n.cancel = context.WithCancel(ctx)
	n.group, ctx = errgroup.WithContext(ctx)
	n.group.Go(func() error {
		n.monitor(ctx)
		return nil
	})

	n.started = true
	n.startedAt = time.Now()
	n.config.Logger.Info("storage node started",
		"pubkey", n.PublicKey().String(),
		"retest_interval", n.config.RetestInterval.String(),
		"grace_period", n.config.GracePeriod.String())
	return nil
}

// Stop shuts down the monitor, persists the address book and closes the
// events channel. The key pair is left to its owner.
func (n *Node) Stop() error {
	n.startMu.Lock()
	if !n.started {
		n.startMu.Unlock()
		return ErrNodeNotStarted
	}
	n.started = false
	n.stopped = true
	n.cancel()
	n.startMu.Unlock()

	// Monitor tests check isStarted, so wait outside the lock.
	_ = n.group.Wait()

	n.channel.Close()
	n.events.Close()

	if err := n.addressBook.Close(); err != nil {
		return fmt.Errorf("failed to close address book: %w", err)
	}
	n.config.Logger.Info("storage node stopped")
	return nil
}

func (n *Node) isStarted() bool {
	n.startMu.Lock()
	defer n.startMu.Unlock()
	return n.started
}

// PublicKey returns the local X25519 public key.
func (n *Node) PublicKey() identity.PublicKey {
	return n.channel.PublicKey()
}

// Encrypt seals plaintext for peer. The result is IV || ciphertext.
func (n *Node) Encrypt(plaintext []byte, peer identity.PublicKey) ([]byte, error) {
	_, span := n.tracer.StartEncrypt(context.Background(), peer, len(plaintext))
	out, err := n.channel.Encrypt(plaintext, peer)
	if err != nil {
		n.config.Metrics.EncryptionError()
		sErr := wrapError(peer, err)
		if IsFatal(sErr) {
			n.config.Logger.Error("random source unavailable", "error", err)
		}
		n.tracer.EndSpan(span, sErr)
		return nil, sErr
	}
	n.config.Metrics.MessageEncrypted(len(plaintext))
	n.tracer.EndSpan(span, nil)
	return out, nil
}

// Decrypt opens an envelope sent by peer. Every failure to decrypt is
// reported with the same error code; the cause is only logged.
func (n *Node) Decrypt(envelope []byte, peer identity.PublicKey) ([]byte, error) {
	_, span := n.tracer.StartDecrypt(context.Background(), peer, len(envelope))
	out, err := n.channel.Decrypt(envelope, peer)
	if err != nil {
		n.config.Metrics.DecryptionError(decryptionReason(err))
		n.config.Logger.Debug("could not decrypt message", "peer", peer.Short(), "error", err)
		sErr := wrapError(peer, err)
		n.tracer.EndSpan(span, sErr)
		return nil, sErr
	}
	n.config.Metrics.MessageDecrypted(len(out))
	n.tracer.EndSpan(span, nil)
	return out, nil
}

// EncryptHex is Encrypt with the peer key given as 64 hex characters.
func (n *Node) EncryptHex(plaintext []byte, peerHex string) ([]byte, error) {
	peer, err := crypto.ParsePeerKey(peerHex)
	if err != nil {
		n.config.Metrics.EncryptionError()
		return nil, wrapError(identity.PublicKey{}, err)
	}
	return n.Encrypt(plaintext, peer)
}

// DecryptHex is Decrypt with the peer key given as 64 hex characters.
func (n *Node) DecryptHex(envelope []byte, peerHex string) ([]byte, error) {
	peer, err := crypto.ParsePeerKey(peerHex)
	if err != nil {
		n.config.Metrics.DecryptionError(decryptionReason(err))
		return nil, wrapError(identity.PublicKey{}, err)
	}
	return n.Decrypt(envelope, peer)
}

func decryptionReason(err error) string {
	switch {
	case errors.Is(err, crypto.ErrMalformedEnvelope):
		return "malformed"
	case errors.Is(err, crypto.ErrInvalidPeerKey), errors.Is(err, crypto.ErrKeyAgreementFailure):
		return "peer_key"
	default:
		return "decryption"
	}
}

// AddPeer adds or updates a peer in the address book.
func (n *Node) AddPeer(entry *addressbook.PeerEntry) error {
	return n.addressBook.AddPeer(entry)
}

// RemovePeer removes a peer from the address book and forgets its cached
// secret and reachability record.
func (n *Node) RemovePeer(peer identity.PublicKey) error {
	if err := n.addressBook.RemovePeer(peer); err != nil {
		return wrapError(peer, err)
	}
	n.channel.Forget(peer)
	n.ledger.Expire(peer)
	n.config.Metrics.UnreachablePeers(n.ledger.Len())
	return nil
}

// GetPeer retrieves peer information from the address book.
func (n *Node) GetPeer(peer identity.PublicKey) (*addressbook.PeerEntry, error) {
	entry, err := n.addressBook.GetPeer(peer)
	if err != nil {
		return nil, wrapError(peer, err)
	}
	return entry, nil
}

// ListPeers returns all non-blacklisted peers.
func (n *Node) ListPeers() []*addressbook.PeerEntry {
	return n.addressBook.ListActivePeers()
}

// BlacklistPeer blacklists a peer. It is no longer probed and its
// reachability record is dropped.
func (n *Node) BlacklistPeer(peer identity.PublicKey) error {
	if err := n.addressBook.BlacklistPeer(peer); err != nil {
		return wrapError(peer, err)
	}
	n.ledger.Expire(peer)
	n.config.Metrics.UnreachablePeers(n.ledger.Len())
	return nil
}

// UnblacklistPeer removes a peer from the blacklist.
func (n *Node) UnblacklistPeer(peer identity.PublicKey) error {
	if err := n.addressBook.UnblacklistPeer(peer); err != nil {
		return wrapError(peer, err)
	}
	return nil
}

// UnreachablePeers returns the reachability ledger, oldest test first.
func (n *Node) UnreachablePeers() []reachability.Entry {
	return n.ledger.Snapshot()
}

// PeerState returns the ledger state of peer.
func (n *Node) PeerState(peer identity.PublicKey) reachability.State {
	return n.ledger.State(peer)
}

// Events returns the channel of reachability events. Events are dropped
// when the consumer falls behind. The channel is closed by Stop.
func (n *Node) Events() <-chan ReachabilityEvent {
	return n.events.Events()
}

func (n *Node) emit(evt ReachabilityEvent) {
	if n.events.Emit(evt) {
		n.config.Metrics.EventEmitted(evt.Kind.String())
		return
	}
	n.config.Metrics.EventDropped()
}
