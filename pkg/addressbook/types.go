// Package addressbook persists the service nodes this node knows about and
// how to reach them.
package addressbook

import (
	"crypto/ed25519"
	"encoding/json"
	"time"

	"github.com/multiformats/go-multiaddr"
	"github.com/sispop-dev/storage/pkg/identity"
)

// PeerEntry is one service node in the address book.
type PeerEntry struct {
	// PublicKey is the node's X25519 identity.
	PublicKey identity.PublicKey `json:"pubkey_x25519"`

	// Ed25519Key is the node's Ed25519 key, when known. The libp2p prober
	// derives the peer ID from it.
	Ed25519Key ed25519.PublicKey `json:"pubkey_ed25519,omitempty"`

	// Address is the host:port the node's storage server listens on.
	Address string `json:"address,omitempty"`

	// Multiaddrs are libp2p addresses of the node; serialized as strings.
	Multiaddrs []multiaddr.Multiaddr `json:"-"`

	Metadata map[string]string `json:"metadata,omitempty"`

	// LastSeen is the time of the last successful probe.
	LastSeen time.Time `json:"last_seen,omitempty"`

	// Blacklisted peers are kept but never probed.
	Blacklisted bool `json:"blacklisted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type entryAlias PeerEntry

type entryJSON struct {
	*entryAlias
	Multiaddrs []string `json:"multiaddrs,omitempty"`
}

// MarshalJSON writes multiaddrs in their string form.
func (p *PeerEntry) MarshalJSON() ([]byte, error) {
	addrs := make([]string, len(p.Multiaddrs))
	for i, ma := range p.Multiaddrs {
		addrs[i] = ma.String()
	}
	return json.Marshal(entryJSON{entryAlias: (*entryAlias)(p), Multiaddrs: addrs})
}

// UnmarshalJSON parses multiaddrs, skipping any that no longer parse.
func (p *PeerEntry) UnmarshalJSON(data []byte) error {
	aux := entryJSON{entryAlias: (*entryAlias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	p.Multiaddrs = make([]multiaddr.Multiaddr, 0, len(aux.Multiaddrs))
	for _, s := range aux.Multiaddrs {
		ma, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			continue
		}
		p.Multiaddrs = append(p.Multiaddrs, ma)
	}
	return nil
}

// Clone returns a deep copy.
func (p *PeerEntry) Clone() *PeerEntry {
	if p == nil {
		return nil
	}

	c := *p
	if p.Ed25519Key != nil {
		c.Ed25519Key = append(ed25519.PublicKey(nil), p.Ed25519Key...)
	}
	if p.Multiaddrs != nil {
		c.Multiaddrs = append([]multiaddr.Multiaddr(nil), p.Multiaddrs...)
	}
	if p.Metadata != nil {
		c.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// bookFile is the on-disk layout.
type bookFile struct {
	Version int                               `json:"version"`
	Peers   map[identity.PublicKey]*PeerEntry `json:"peers"`
}

func emptyBookFile() *bookFile {
	return &bookFile{
		Version: currentVersion,
		Peers:   make(map[identity.PublicKey]*PeerEntry),
	}
}
