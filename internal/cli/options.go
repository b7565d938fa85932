// Package cli implements the sispop-storage command line using Cobra.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	storage "github.com/sispop-dev/storage"
	"github.com/sispop-dev/storage/pkg/sispopd"
)

// Options holds the parsed command line.
type Options struct {
	IP   string
	Port uint16

	SispopdRPCIP   string
	SispopdRPCPort uint16

	ForceStart   bool
	PrintVersion bool
	Testnet      bool

	// LogLevel is checked when the server starts, not while parsing.
	LogLevel string

	// DataDir is empty unless given; the default depends on the home
	// directory and is resolved at startup.
	DataDir    string
	ConfigFile string

	// Hex keys for test networks where the daemon cannot be asked.
	SispopdKey        string
	SispopdX25519Key  string
	SispopdEd25519Key string

	MetricsAddr string
	P2PListen   []string
	SOCKS5Proxy string
}

// fileConfig mirrors the long flags. Values given on the command line win.
type fileConfig struct {
	SispopdRPCIP   *string  `toml:"sispopd-rpc-ip"`
	SispopdRPCPort *uint16  `toml:"sispopd-rpc-port"`
	ForceStart     *bool    `toml:"force-start"`
	Testnet        *bool    `toml:"testnet"`
	LogLevel       *string  `toml:"log-level"`
	DataDir        *string  `toml:"data-dir"`
	MetricsAddr    *string  `toml:"metrics-addr"`
	P2PListen      []string `toml:"p2p-listen"`
	SOCKS5Proxy    *string  `toml:"socks5-proxy"`
}

// ErrConfigFileNotFound is returned when --config-file names a missing file.
var ErrConfigFileNotFound = errors.New("path provided in --config-file does not exist")

func defaultOptions() *Options {
	return &Options{
		SispopdRPCIP:   "127.0.0.1",
		SispopdRPCPort: sispopd.DefaultRPCPort,
		LogLevel:       "info",
	}
}

func bindFlags(cmd *cobra.Command, o *Options) {
	f := cmd.Flags()
	f.StringVar(&o.SispopdRPCIP, "sispopd-rpc-ip", o.SispopdRPCIP, "RPC IP on which the local Sispop daemon is listening")
	f.Uint16Var(&o.SispopdRPCPort, "sispopd-rpc-port", o.SispopdRPCPort, "RPC port on which the local Sispop daemon is listening")
	f.BoolVar(&o.ForceStart, "force-start", false, "Ignore the initialisation ready check")
	f.BoolVar(&o.PrintVersion, "version", false, "Print the version of this binary")
	f.BoolVar(&o.Testnet, "testnet", false, "Start storage server in testnet mode")
	f.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log verbosity level, see Log Levels below for accepted values")
	f.StringVar(&o.DataDir, "data-dir", "", "Path to persistent data (defaults to ~/.sispop/storage)")
	f.StringVar(&o.ConfigFile, "config-file", "", "Path to a TOML config file whose keys are the long option names")
	f.StringVar(&o.SispopdKey, "sispopd-key", "", "Legacy secret key (test only)")
	f.StringVar(&o.SispopdX25519Key, "sispopd-x25519-key", "", "x25519 secret key (test only)")
	f.StringVar(&o.SispopdEd25519Key, "sispopd-ed25519-key", "", "ed25519 secret key (test only)")
	f.StringVar(&o.MetricsAddr, "metrics-addr", "", "Address of the metrics and health endpoint, disabled when empty")
	f.StringSliceVar(&o.P2PListen, "p2p-listen", nil, "libp2p listen multiaddrs; enables libp2p ping probes")
	f.StringVar(&o.SOCKS5Proxy, "socks5-proxy", "", "Dial peers through this SOCKS5 proxy")
}

func positionalArgs(o *Options) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if o.PrintVersion && len(args) == 0 {
			return nil
		}
		if len(args) != 2 {
			return fmt.Errorf("expected <ip> and <port>, got %d argument(s)", len(args))
		}
		port, err := storage.ParsePort(args[1])
		if err != nil {
			return err
		}
		o.IP, o.Port = args[0], port
		return nil
	}
}

// complete merges the config file and applies network defaults.
func (o *Options) complete(cmd *cobra.Command) error {
	if o.ConfigFile != "" {
		if err := o.loadFile(cmd); err != nil {
			return err
		}
	}
	if o.Testnet && !cmd.Flags().Changed("sispopd-rpc-port") {
		o.SispopdRPCPort = sispopd.DefaultTestnetRPCPort
	}
	return nil
}

func (o *Options) loadFile(cmd *cobra.Command) error {
	if _, err := os.Stat(o.ConfigFile); err != nil {
		return fmt.Errorf("%w: %s", ErrConfigFileNotFound, o.ConfigFile)
	}

	var fc fileConfig
	md, err := toml.DecodeFile(o.ConfigFile, &fc)
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown option %q in config file", undecoded[0].String())
	}

	changed := cmd.Flags().Changed
	if fc.SispopdRPCIP != nil && !changed("sispopd-rpc-ip") {
		o.SispopdRPCIP = *fc.SispopdRPCIP
	}
	if fc.SispopdRPCPort != nil && !changed("sispopd-rpc-port") {
		o.SispopdRPCPort = *fc.SispopdRPCPort
	}
	if fc.ForceStart != nil && !changed("force-start") {
		o.ForceStart = *fc.ForceStart
	}
	if fc.Testnet != nil && !changed("testnet") {
		o.Testnet = *fc.Testnet
	}
	if fc.LogLevel != nil && !changed("log-level") {
		o.LogLevel = *fc.LogLevel
	}
	if fc.DataDir != nil && !changed("data-dir") {
		o.DataDir = *fc.DataDir
	}
	if fc.MetricsAddr != nil && !changed("metrics-addr") {
		o.MetricsAddr = *fc.MetricsAddr
	}
	if fc.P2PListen != nil && !changed("p2p-listen") {
		o.P2PListen = fc.P2PListen
	}
	if fc.SOCKS5Proxy != nil && !changed("socks5-proxy") {
		o.SOCKS5Proxy = *fc.SOCKS5Proxy
	}
	return nil
}

// usesHexKeys reports whether keys were given on the command line.
func (o *Options) usesHexKeys() bool {
	return o.SispopdX25519Key != "" || o.SispopdEd25519Key != ""
}
