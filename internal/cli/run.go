package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	storage "github.com/sispop-dev/storage"
	"github.com/sispop-dev/storage/pkg/probe"
	"github.com/sispop-dev/storage/pkg/sispopd"
	storageprom "github.com/sispop-dev/storage/prometheus"
)

var errStartup = errors.New("could not start storage server")

func startupError(err error) error {
	return fmt.Errorf("%w: %w", errStartup, err)
}

const addressBookFile = "addressbook.json"

func run(cmd *cobra.Command, o *Options) error {
	stderr := cmd.ErrOrStderr()

	if o.DataDir == "" {
		home, _ := os.UserHomeDir()
		o.DataDir = storage.DefaultDataDir(home, o.Testnet)
	}
	if o.DataDir == "" {
		return startupError(errors.New("no data directory given and no home directory found"))
	}
	if err := os.MkdirAll(o.DataDir, 0o700); err != nil {
		return startupError(fmt.Errorf("failed to create data directory: %w", err))
	}

	level, err := storage.ParseLogLevel(o.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Incorrect log level: %s\nLog Levels:\n  %s\n",
			o.LogLevel, strings.Join(storage.LogLevelNames(), "\n  "))
		return startupError(err)
	}
	log := storage.NewSlogLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: storage.ReplaceLevelNames,
	})))

	if o.Testnet {
		log.Warn("starting in testnet mode, make sure this is intentional")
	}

	fmt.Fprintln(cmd.OutOrStdout(), storage.VersionString())
	if o.PrintVersion {
		return nil
	}

	if err := storage.ValidateListenIP(o.IP); err != nil {
		log.Critical("refusing to start", "error", err)
		return startupError(err)
	}
	if err := storage.ValidatePorts(o.Port, o.SispopdRPCPort); err != nil {
		log.Error("terminating", "error", err)
		return &exitError{code: storage.ExitInvalidPort, err: err}
	}

	log.Info("setting log level", "level", o.LogLevel)
	log.Info("setting data location", "path", o.DataDir)
	log.Info("setting sispopd RPC", "ip", o.SispopdRPCIP, "port", o.SispopdRPCPort)
	log.Info("listening", "ip", o.IP, "port", o.Port)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := sispopd.NewClient(
		net.JoinHostPort(o.SispopdRPCIP, strconv.Itoa(int(o.SispopdRPCPort))),
		sispopd.WithLogger(log),
	)
	keys, err := loadKeys(ctx, o, client, log)
	if err != nil {
		return startupError(err)
	}
	log.Info("service node keys loaded", "x25519", keys.X25519.Public().String())

	prober, closeProber, err := newProber(o, keys)
	if err != nil {
		return startupError(err)
	}
	defer closeProber()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	node, err := storage.New(storage.NewConfig(keys.X25519, filepath.Join(o.DataDir, addressBookFile),
		storage.WithLogger(log),
		storage.WithMetrics(storageprom.NewMetricsWithRegisterer("", reg)),
		storage.WithReporter(client),
		storage.WithProber(prober),
		storage.WithSharedKeyCache(),
	))
	if err != nil {
		return startupError(err)
	}
	if err := node.Start(ctx); err != nil {
		return startupError(err)
	}
	defer func() {
		if err := node.Stop(); err != nil {
			log.Warn("failed to stop node", "error", err)
		}
	}()

	if o.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              o.MetricsAddr,
			Handler:           newOpsRouter(node, reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("ops server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("ops endpoint listening", "addr", o.MetricsAddr)
	}

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func loadKeys(ctx context.Context, o *Options, client *sispopd.Client, log *storage.SlogLogger) (*sispopd.Keys, error) {
	if o.usesHexKeys() {
		log.Warn("using service node keys from the command line")
		return sispopd.KeysFromHex(o.SispopdKey, o.SispopdEd25519Key, o.SispopdX25519Key)
	}
	if o.ForceStart {
		log.Warn("force start enabled, not waiting for sispopd")
		return client.PrivateKeys(ctx)
	}
	return client.WaitForPrivateKeys(ctx)
}

// newProber returns the TCP prober, chained after a libp2p ping prober when
// libp2p listen addresses are configured.
func newProber(o *Options, keys *sispopd.Keys) (probe.Prober, func(), error) {
	var tcp *probe.TCPProber
	if o.SOCKS5Proxy != "" {
		var err error
		if tcp, err = probe.NewSOCKS5Prober(o.SOCKS5Proxy, storage.DefaultProbeTimeout); err != nil {
			return nil, nil, err
		}
	} else {
		tcp = probe.NewTCPProber(storage.DefaultProbeTimeout)
	}
	if len(o.P2PListen) == 0 {
		return tcp, func() {}, nil
	}

	addrs := make([]multiaddr.Multiaddr, 0, len(o.P2PListen))
	for _, s := range o.P2PListen {
		ma, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --p2p-listen address %q: %w", s, err)
		}
		addrs = append(addrs, ma)
	}
	h, err := probe.NewHost(probe.HostConfig{PrivateKey: keys.Ed25519, ListenAddrs: addrs})
	if err != nil {
		return nil, nil, err
	}
	chain := probe.Chain{probe.NewLibp2pProber(h, storage.DefaultProbeTimeout), tcp}
	return chain, func() { _ = h.Close() }, nil
}
