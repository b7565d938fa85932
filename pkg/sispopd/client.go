// Package sispopd talks to the local sispopd daemon over JSON-RPC: it fetches
// the service node keys at startup and reports unreachable peers.
package sispopd

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/sispop-dev/storage/pkg/identity"
)

const (
	// DefaultRPCPort is the sispopd RPC port on mainnet.
	DefaultRPCPort = 30000

	// DefaultTestnetRPCPort is the sispopd RPC port on testnet.
	DefaultTestnetRPCPort = 38157

	methodPrivateKeys  = "get_service_node_privkey"
	methodReportStatus = "report_peer_storage_server_status"
)

// ErrKeysUnavailable is returned while the daemon has no service node keys.
var ErrKeysUnavailable = errors.New("sispopd returned no service node keys")

// Logger is the logging sink used by the client.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}

// Keys are the node's service node keys as returned by the daemon.
type Keys struct {
	// Legacy is the pre-Ed25519 service node private key.
	Legacy identity.PrivateKey

	// Ed25519 is the 64-byte Ed25519 private key.
	Ed25519 ed25519.PrivateKey

	// X25519 is the key pair used for channel encryption.
	X25519 *identity.KeyPair
}

type privateKeysResult struct {
	Legacy  string `json:"service_node_privkey"`
	Ed25519 string `json:"service_node_ed25519_privkey"`
	X25519  string `json:"service_node_x25519_privkey"`
}

type reportParams struct {
	Type   string `json:"type"`
	Pubkey string `json:"pubkey"`
	Passed bool   `json:"passed"`
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each RPC call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBackoff sets the retry schedule of WaitForPrivateKeys.
func WithBackoff(b Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithLogger sets the logging sink.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client is a sispopd JSON-RPC client. Each call uses its own connection.
type Client struct {
	addr    string
	timeout time.Duration
	backoff Backoff
	logger  Logger
}

// NewClient creates a client for the daemon listening on addr (host:port).
func NewClient(addr string, opts ...Option) *Client {
	c := &Client{
		addr:    addr,
		timeout: 10 * time.Second,
		backoff: Backoff{BaseDelay: time.Second, MaxDelay: 30 * time.Second},
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Addr returns the daemon address.
func (c *Client) Addr() string { return c.addr }

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("connect to sispopd at %s: %w", c.addr, err)
	}
	defer conn.Close()

	cli := jrpc2.NewClient(channel.RawJSON(conn, conn), nil)
	defer cli.Close()

	if err := cli.CallResult(ctx, method, params, result); err != nil {
		return fmt.Errorf("sispopd %s: %w", method, err)
	}
	return nil
}

// PrivateKeys fetches the service node keys once.
func (c *Client) PrivateKeys(ctx context.Context) (*Keys, error) {
	var res privateKeysResult
	if err := c.call(ctx, methodPrivateKeys, nil, &res); err != nil {
		return nil, err
	}
	return parseKeys(res)
}

// WaitForPrivateKeys retries PrivateKeys until it succeeds or ctx is done.
func (c *Client) WaitForPrivateKeys(ctx context.Context) (*Keys, error) {
	for attempt := 0; ; attempt++ {
		keys, err := c.PrivateKeys(ctx)
		if err == nil {
			c.logger.Info("retrieved keys from sispopd", "x25519", keys.X25519.Public().String())
			return keys, nil
		}

		delay := c.backoff.NextDelay(attempt)
		c.logger.Warn("could not get keys from sispopd, retrying", "error", err, "attempt", attempt+1, "delay", delay)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("waiting for sispopd keys: %w", ctx.Err())
		case <-t.C:
		}
	}
}

// ReportUnreachable tells the daemon peer failed its reachability test.
func (c *Client) ReportUnreachable(ctx context.Context, peer identity.PublicKey) error {
	params := reportParams{Type: "reachability", Pubkey: peer.String(), Passed: false}
	var res struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, methodReportStatus, params, &res); err != nil {
		return err
	}
	if res.Status != "" && res.Status != "OK" {
		return fmt.Errorf("sispopd %s: status %q", methodReportStatus, res.Status)
	}
	return nil
}

func parseKeys(res privateKeysResult) (*Keys, error) {
	if res.X25519 == "" || res.Ed25519 == "" {
		return nil, ErrKeysUnavailable
	}

	var keys Keys
	var err error
	if res.Legacy != "" {
		if keys.Legacy, err = identity.ParsePrivateKey(res.Legacy); err != nil {
			return nil, fmt.Errorf("legacy key: %w", err)
		}
	}

	ed, err := hex.DecodeString(res.Ed25519)
	if err != nil || len(ed) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519 key: %w", identity.ErrInvalidKeyEncoding)
	}
	keys.Ed25519 = ed25519.PrivateKey(ed)

	x, err := identity.ParsePrivateKey(res.X25519)
	if err != nil {
		return nil, fmt.Errorf("x25519 key: %w", err)
	}
	if keys.X25519, err = identity.NewKeyPair(x); err != nil {
		return nil, fmt.Errorf("x25519 key: %w", err)
	}
	return &keys, nil
}

// KeysFromHex builds Keys from hex-encoded keys supplied out of band, for
// test networks where the daemon cannot be asked.
func KeysFromHex(legacyHex, ed25519Hex, x25519Hex string) (*Keys, error) {
	return parseKeys(privateKeysResult{
		Legacy:  legacyHex,
		Ed25519: ed25519Hex,
		X25519:  x25519Hex,
	})
}
