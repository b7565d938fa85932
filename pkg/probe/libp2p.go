package probe

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	"github.com/multiformats/go-multiaddr"
	"github.com/sispop-dev/storage/pkg/addressbook"
)

// HostConfig configures the libp2p host used for probing.
type HostConfig struct {
	// PrivateKey is the node's Ed25519 key; it fixes the host's peer ID.
	PrivateKey ed25519.PrivateKey

	ListenAddrs []multiaddr.Multiaddr

	// Connections above HighWater are trimmed down to LowWater.
	ConnMgrLowWater  int
	ConnMgrHighWater int
}

// NewHost creates a libp2p host with the ping protocol enabled.
func NewHost(cfg HostConfig) (host.Host, error) {
	priv, err := crypto.UnmarshalEd25519PrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to convert private key: %w", err)
	}

	low, high := cfg.ConnMgrLowWater, cfg.ConnMgrHighWater
	if high <= 0 {
		low, high = 50, 200
	}
	cm, err := connmgr.NewConnManager(low, high, connmgr.WithGracePeriod(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	opts := []libp2p.Option{
		libp2p.Identity(priv),
		libp2p.ConnectionManager(cm),
		libp2p.Ping(true),
	}
	if len(cfg.ListenAddrs) > 0 {
		opts = append(opts, libp2p.ListenAddrs(cfg.ListenAddrs...))
	} else {
		opts = append(opts, libp2p.NoListenAddrs)
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}
	return h, nil
}

// PeerID derives a libp2p peer ID from an Ed25519 public key.
func PeerID(edPub ed25519.PublicKey) (peer.ID, error) {
	pub, err := crypto.UnmarshalEd25519PublicKey(edPub)
	if err != nil {
		return "", fmt.Errorf("invalid Ed25519 key: %w", err)
	}
	return peer.IDFromPublicKey(pub)
}

// Libp2pProber connects to the peer over libp2p and sends one ping.
type Libp2pProber struct {
	host    host.Host
	timeout time.Duration
}

// NewLibp2pProber probes from h.
func NewLibp2pProber(h host.Host, timeout time.Duration) *Libp2pProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Libp2pProber{host: h, timeout: timeout}
}

// Probe implements Prober.
func (p *Libp2pProber) Probe(ctx context.Context, entry *addressbook.PeerEntry) error {
	if len(entry.Ed25519Key) == 0 || len(entry.Multiaddrs) == 0 {
		return ErrNoAddress
	}
	id, err := PeerID(entry.Ed25519Key)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.host.Peerstore().AddAddrs(id, entry.Multiaddrs, peerstore.TempAddrTTL)
	if err := p.host.Connect(ctx, peer.AddrInfo{ID: id, Addrs: entry.Multiaddrs}); err != nil {
		return fmt.Errorf("connect %s: %w", id, err)
	}

	select {
	case res := <-ping.Ping(ctx, p.host, id):
		if res.Error != nil {
			return fmt.Errorf("ping %s: %w", id, res.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
