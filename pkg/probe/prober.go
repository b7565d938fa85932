// Package probe checks whether a service node answers on the network.
package probe

import (
	"context"
	"errors"

	"github.com/sispop-dev/storage/pkg/addressbook"
)

// ErrNoAddress is returned when an entry lacks the address a prober needs.
var ErrNoAddress = errors.New("peer has no usable address")

// Prober tests reachability of one peer. A nil error means reachable.
type Prober interface {
	Probe(ctx context.Context, peer *addressbook.PeerEntry) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, peer *addressbook.PeerEntry) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, peer *addressbook.PeerEntry) error {
	return f(ctx, peer)
}

// Chain tries each prober in order and reports the peer reachable as soon as
// one succeeds. Probers returning ErrNoAddress are skipped; if all of them do,
// Chain returns ErrNoAddress.
type Chain []Prober

// Probe implements Prober.
func (c Chain) Probe(ctx context.Context, peer *addressbook.PeerEntry) error {
	var errs []error
	for _, p := range c {
		err := p.Probe(ctx, peer)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNoAddress) {
			continue
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return ErrNoAddress
	}
	return errors.Join(errs...)
}
