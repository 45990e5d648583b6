package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSCPIPort is the raw SCPI socket port defined by LXI
const DefaultSCPIPort = 5025

// HostDiscoverer finds network instruments and returns their resource addresses
type HostDiscoverer interface {
	Scan(ctx context.Context) ([]string, error)
}

// SocketProvider talks raw SCPI over TCP
type SocketProvider struct {
	static     []string
	discoverer HostDiscoverer
	dialer     net.Dialer
	log        zerolog.Logger
}

// NewSocketProvider serves the given static addresses plus whatever discoverer finds.
// discoverer may be nil.
func NewSocketProvider(static []string, discoverer HostDiscoverer, log zerolog.Logger) *SocketProvider {
	return &SocketProvider{static: static, discoverer: discoverer, log: log}
}

// List returns static resources followed by discovered ones, deduplicated
func (p *SocketProvider) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		key := strings.ToUpper(addr)
		if !seen[key] {
			seen[key] = true
			out = append(out, addr)
		}
	}

	for _, addr := range p.static {
		add(addr)
	}

	if p.discoverer != nil {
		found, err := p.discoverer.Scan(ctx)
		if err != nil {
			p.log.Warn().Err(err).Msg("network instrument discovery failed")
		}
		for _, addr := range found {
			add(addr)
		}
	}

	return out, nil
}

// Open dials the instrument; timeout bounds the dial and every later exchange
func (p *SocketProvider) Open(ctx context.Context, address string, timeout time.Duration) (Conn, error) {
	hostport, err := ParseSocketAddress(address)
	if err != nil {
		return nil, &OpError{Op: "open", Address: address, Err: err}
	}

	d := p.dialer
	d.Timeout = timeout
	nc, err := d.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return nil, &OpError{Op: "open", Address: address, Err: normalizeTimeout(err)}
	}

	return newLineConn(address, nc, timeout, nc.SetDeadline), nil
}

// ParseSocketAddress extracts host:port from TCPIP[n]::host::port::SOCKET
func ParseSocketAddress(address string) (string, error) {
	parts := splitAddress(address)
	if len(parts) != 4 || !strings.HasPrefix(strings.ToUpper(parts[0]), "TCPIP") ||
		!strings.EqualFold(parts[3], "SOCKET") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAddress, address)
	}

	port, err := strconv.Atoi(parts[2])
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("%w: bad port in %s", ErrUnsupportedAddress, address)
	}
	if parts[1] == "" {
		return "", fmt.Errorf("%w: missing host in %s", ErrUnsupportedAddress, address)
	}

	return net.JoinHostPort(parts[1], strconv.Itoa(port)), nil
}

// SocketAddress formats a raw socket resource address
func SocketAddress(host string, port int) string {
	return fmt.Sprintf("TCPIP0::%s::%d::SOCKET", host, port)
}
