package storage

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
)

// Exit code used when the listen port collides with the daemon RPC port.
const ExitInvalidPort = 2

var (
	// ErrLocalhostBind is returned when asked to listen on the loopback
	// address, which peers cannot reach.
	ErrLocalhostBind = errors.New("tried to bind to localhost, bind to an outward facing address")

	// ErrPortConflict is returned when the listen port equals the daemon RPC
	// port.
	ErrPortConflict = errors.New("storage server port must be different from that of sispopd")
)

// ValidateListenIP checks the address the server binds to.
func ValidateListenIP(ip string) error {
	if ip == "127.0.0.1" {
		return ErrLocalhostBind
	}
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("%w: invalid listen address %q", ErrInvalidConfig, ip)
	}
	return nil
}

// ParsePort parses a decimal TCP port number.
func ParsePort(s string) (uint16, error) {
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid port %q", ErrInvalidConfig, s)
	}
	return uint16(p), nil
}

// ValidatePorts checks that the listen port and the daemon RPC port differ.
func ValidatePorts(port, rpcPort uint16) error {
	if port == rpcPort {
		return ErrPortConflict
	}
	return nil
}

// DefaultDataDir returns the data directory under home. Testnet data lives
// in its own tree. An empty home yields an empty path.
func DefaultDataDir(home string, testnet bool) string {
	if home == "" {
		return ""
	}
	if testnet {
		return filepath.Join(home, ".sispop", "testnet", "storage")
	}
	return filepath.Join(home, ".sispop", "storage")
}
