package storage

import (
	"fmt"
	"io"
	"time"

	"github.com/sispop-dev/storage/pkg/identity"
	"github.com/sispop-dev/storage/pkg/probe"
	"github.com/sispop-dev/storage/pkg/reachability"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	DefaultRetestInterval      = 10 * time.Second
	DefaultProbeTimeout        = 10 * time.Second
	DefaultReportTimeout       = 10 * time.Second
	DefaultMaxConcurrentProbes = 4
	DefaultEventBufferSize     = 100
)

// Config holds the configuration for a storage node.
type Config struct {
	// Keys is the node's X25519 key pair. Required. The node borrows it and
	// never destroys it.
	Keys *identity.KeyPair

	// AddressBookPath is the file the known service nodes are kept in.
	// Required.
	AddressBookPath string

	// GracePeriod is how long a peer must keep failing before it is reported.
	// Zero means reachability.GracePeriod.
	GracePeriod time.Duration

	// RetestInterval is the pause between re-probes of the peer that was
	// tested longest ago.
	RetestInterval time.Duration

	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration

	// ReportTimeout bounds a single report to the daemon.
	ReportTimeout time.Duration

	// MaxConcurrentProbes caps probes in flight across TestPeer callers.
	MaxConcurrentProbes int

	// EventBufferSize is the buffer size of the reachability events channel.
	EventBufferSize int

	// CacheSharedKeys keeps derived shared secrets per peer instead of
	// deriving them on every message.
	CacheSharedKeys bool

	// Prober tests peer reachability. If nil, a direct TCP prober is used.
	Prober probe.Prober

	// Reporter forwards unreachable peers to the daemon. If nil, reports are
	// only logged and peers are never marked reported.
	Reporter Reporter

	// Clock is the ledger's time source. If nil, the monotonic system clock.
	Clock reachability.Clock

	// Random is the IV source. If nil, crypto/rand.
	Random io.Reader

	// Logger is the logger for the node. If nil, a NopLogger is used.
	// The logger must be safe for concurrent use.
	Logger Logger

	// Metrics is the metrics collector. If nil, a NopMetrics is used.
	Metrics Metrics

	// TracerProvider creates the node's spans. If nil, tracing is disabled.
	TracerProvider trace.TracerProvider
}

// Validate checks that the configuration is valid and returns an error
// describing any problems found.
func (c *Config) Validate() error {
	if c.Keys == nil {
		return ErrMissingKeyPair
	}
	if c.AddressBookPath == "" {
		return ErrMissingAddressBookPath
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("%w: grace period cannot be negative", ErrInvalidConfig)
	}
	if c.RetestInterval < 0 {
		return fmt.Errorf("%w: retest interval cannot be negative", ErrInvalidConfig)
	}
	if c.ProbeTimeout < 0 {
		return fmt.Errorf("%w: probe timeout cannot be negative", ErrInvalidConfig)
	}
	if c.ReportTimeout < 0 {
		return fmt.Errorf("%w: report timeout cannot be negative", ErrInvalidConfig)
	}
	if c.MaxConcurrentProbes < 0 {
		return fmt.Errorf("%w: max concurrent probes cannot be negative", ErrInvalidConfig)
	}
	if c.EventBufferSize < 0 {
		return fmt.Errorf("%w: event buffer size cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// applyDefaults sets default values for any unset optional fields.
func (c *Config) applyDefaults() {
	if c.GracePeriod == 0 {
		c.GracePeriod = reachability.GracePeriod
	}
	if c.RetestInterval == 0 {
		c.RetestInterval = DefaultRetestInterval
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.ReportTimeout == 0 {
		c.ReportTimeout = DefaultReportTimeout
	}
	if c.MaxConcurrentProbes == 0 {
		c.MaxConcurrentProbes = DefaultMaxConcurrentProbes
	}
	if c.EventBufferSize == 0 {
		c.EventBufferSize = DefaultEventBufferSize
	}
	if c.Prober == nil {
		c.Prober = probe.NewTCPProber(c.ProbeTimeout)
	}
	if c.Clock == nil {
		c.Clock = reachability.SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
}

// ConfigOption is a functional option for configuring a Node.
type ConfigOption func(*Config)

// WithGracePeriod sets how long a peer must fail before it is reported.
func WithGracePeriod(d time.Duration) ConfigOption {
	return func(c *Config) { c.GracePeriod = d }
}

// WithRetestInterval sets the pause between re-probes.
func WithRetestInterval(d time.Duration) ConfigOption {
	return func(c *Config) { c.RetestInterval = d }
}

// WithProbeTimeout sets the timeout of a single probe.
func WithProbeTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.ProbeTimeout = d }
}

// WithReportTimeout sets the timeout of a single report.
func WithReportTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.ReportTimeout = d }
}

// WithMaxConcurrentProbes caps the number of probes in flight.
func WithMaxConcurrentProbes(n int) ConfigOption {
	return func(c *Config) { c.MaxConcurrentProbes = n }
}

// WithEventBufferSize sets the buffer size for the events channel.
func WithEventBufferSize(size int) ConfigOption {
	return func(c *Config) { c.EventBufferSize = size }
}

// WithSharedKeyCache enables per-peer caching of shared secrets.
func WithSharedKeyCache() ConfigOption {
	return func(c *Config) { c.CacheSharedKeys = true }
}

// WithProber sets the reachability prober.
func WithProber(p probe.Prober) ConfigOption {
	return func(c *Config) { c.Prober = p }
}

// WithReporter sets where unreachable peers are reported.
func WithReporter(r Reporter) ConfigOption {
	return func(c *Config) { c.Reporter = r }
}

// WithClock sets the ledger's time source.
func WithClock(clock reachability.Clock) ConfigOption {
	return func(c *Config) { c.Clock = clock }
}

// WithRandom sets the IV source. It must be a CSPRNG.
func WithRandom(r io.Reader) ConfigOption {
	return func(c *Config) { c.Random = r }
}

// WithLogger sets the logger for the node.
// The logger must be safe for concurrent use.
func WithLogger(l Logger) ConfigOption {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics sets the metrics collector for the node.
func WithMetrics(m Metrics) ConfigOption {
	return func(c *Config) { c.Metrics = m }
}

// WithTracerProvider enables tracing.
func WithTracerProvider(tp trace.TracerProvider) ConfigOption {
	return func(c *Config) { c.TracerProvider = tp }
}

// NewConfig creates a Config with the required fields, applies opts and
// then defaults. It does not validate.
func NewConfig(keys *identity.KeyPair, addressBookPath string, opts ...ConfigOption) *Config {
	c := &Config{
		Keys:            keys,
		AddressBookPath: addressBookPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.applyDefaults()
	return c
}
