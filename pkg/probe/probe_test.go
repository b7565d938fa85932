package probe

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/multiformats/go-multiaddr"
	"github.com/sispop-dev/storage/pkg/addressbook"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	t.Cleanup(func() { l.Close() })
	return l
}

func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestTCPProber_Reachable(t *testing.T) {
	l := listen(t)
	p := NewTCPProber(time.Second)

	if err := p.Probe(context.Background(), &addressbook.PeerEntry{Address: l.Addr().String()}); err != nil {
		t.Errorf("Probe() = %v, want nil", err)
	}
}

func TestTCPProber_Unreachable(t *testing.T) {
	p := NewTCPProber(time.Second)
	if err := p.Probe(context.Background(), &addressbook.PeerEntry{Address: closedAddr(t)}); err == nil {
		t.Error("Probe() of a closed port should fail")
	}
}

func TestTCPProber_NoAddress(t *testing.T) {
	p := NewTCPProber(0)
	if err := p.Probe(context.Background(), &addressbook.PeerEntry{}); !errors.Is(err, ErrNoAddress) {
		t.Errorf("Probe() = %v, want ErrNoAddress", err)
	}
}

func TestTCPProber_CancelledContext(t *testing.T) {
	l := listen(t)
	p := NewTCPProber(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Probe(ctx, &addressbook.PeerEntry{Address: l.Addr().String()}); err == nil {
		t.Error("Probe() with a cancelled context should fail")
	}
}

func TestSOCKS5Prober_DeadProxy(t *testing.T) {
	p, err := NewSOCKS5Prober(closedAddr(t), time.Second)
	if err != nil {
		t.Fatalf("NewSOCKS5Prober() failed: %v", err)
	}
	if err := p.Probe(context.Background(), &addressbook.PeerEntry{Address: "10.1.2.3:22021"}); err == nil {
		t.Error("Probe() through a dead proxy should fail")
	}
}

func TestChain(t *testing.T) {
	fail := ProberFunc(func(context.Context, *addressbook.PeerEntry) error { return errors.New("down") })
	ok := ProberFunc(func(context.Context, *addressbook.PeerEntry) error { return nil })
	none := ProberFunc(func(context.Context, *addressbook.PeerEntry) error { return ErrNoAddress })

	tests := []struct {
		name    string
		chain   Chain
		wantErr bool
		noAddr  bool
	}{
		{"first succeeds", Chain{ok, fail}, false, false},
		{"second succeeds", Chain{fail, ok}, false, false},
		{"all fail", Chain{fail, fail}, true, false},
		{"skip missing address", Chain{none, ok}, false, false},
		{"only missing", Chain{none, none}, true, true},
		{"empty", Chain{}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.chain.Probe(context.Background(), &addressbook.PeerEntry{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Probe() = %v, wantErr %v", err, tt.wantErr)
			}
			if errors.Is(err, ErrNoAddress) != tt.noAddr {
				t.Errorf("errors.Is(err, ErrNoAddress) = %v, want %v", !tt.noAddr, tt.noAddr)
			}
		})
	}
}

func TestLibp2pProber(t *testing.T) {
	loopback, _ := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/0")

	_, proberKey, _ := ed25519.GenerateKey(rand.Reader)
	targetPub, targetKey, _ := ed25519.GenerateKey(rand.Reader)

	prober, err := NewHost(HostConfig{PrivateKey: proberKey})
	if err != nil {
		t.Fatalf("NewHost() failed: %v", err)
	}
	defer prober.Close()

	target, err := NewHost(HostConfig{PrivateKey: targetKey, ListenAddrs: []multiaddr.Multiaddr{loopback}})
	if err != nil {
		t.Fatalf("NewHost() failed: %v", err)
	}

	id, err := PeerID(targetPub)
	if err != nil {
		t.Fatal(err)
	}
	if id != target.ID() {
		t.Fatalf("PeerID() = %s, want %s", id, target.ID())
	}

	p := NewLibp2pProber(prober, 5*time.Second)
	entry := &addressbook.PeerEntry{Ed25519Key: targetPub, Multiaddrs: target.Addrs()}

	if err := p.Probe(context.Background(), entry); err != nil {
		t.Fatalf("Probe() of a live host = %v", err)
	}

	if err := p.Probe(context.Background(), &addressbook.PeerEntry{}); !errors.Is(err, ErrNoAddress) {
		t.Errorf("Probe() without keys = %v, want ErrNoAddress", err)
	}

	target.Close()
	prober.Network().ClosePeer(id)
	if err := p.Probe(context.Background(), entry); err == nil {
		t.Error("Probe() of a closed host should fail")
	}
}
