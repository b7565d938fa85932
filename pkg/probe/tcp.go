package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sispop-dev/storage/pkg/addressbook"
	"golang.org/x/net/proxy"
)

// DefaultTimeout bounds a single probe when the context has no deadline.
const DefaultTimeout = 10 * time.Second

// TCPProber considers a peer reachable when a TCP connection to its storage
// server address can be opened.
type TCPProber struct {
	dialer  proxy.Dialer
	timeout time.Duration
}

// NewTCPProber dials directly.
func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TCPProber{dialer: &net.Dialer{Timeout: timeout}, timeout: timeout}
}

// NewSOCKS5Prober dials through the SOCKS5 proxy at proxyAddr.
func NewSOCKS5Prober(proxyAddr string, timeout time.Duration) (*TCPProber, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d, err := proxy.SOCKS5("tcp", proxyAddr, nil, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	return &TCPProber{dialer: d, timeout: timeout}, nil
}

// Probe implements Prober.
func (p *TCPProber) Probe(ctx context.Context, peer *addressbook.PeerEntry) error {
	if peer.Address == "" {
		return ErrNoAddress
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	if cd, ok := p.dialer.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", peer.Address)
	} else {
		conn, err = p.dialer.Dial("tcp", peer.Address)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", peer.Address, err)
	}
	return conn.Close()
}
