package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// LXIScanner finds LAN instruments by looking for open SCPI ports across
// configured targets. nmap is used when present; otherwise hosts are probed
// with plain TCP connects.
type LXIScanner struct {
	targets           []string
	ports             []int
	timeout           time.Duration
	probeTimeout      time.Duration
	concurrency       int
	useNmap           bool
	skipHostDiscovery bool
	log               zerolog.Logger

	mu          sync.Mutex
	nmapChecked bool
	nmapFound   bool
}

// NewLXIScanner builds a scanner for CIDR ranges or single hosts
func NewLXIScanner(targets []string, log zerolog.Logger, opts ...LXIOption) *LXIScanner {
	s := &LXIScanner{
		targets:           targets,
		ports:             []int{DefaultSCPIPort},
		timeout:           20 * time.Second,
		probeTimeout:      500 * time.Millisecond,
		concurrency:       64,
		useNmap:           true,
		skipHostDiscovery: true,
		log:               log,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Scan returns one SOCKET address per open instrument port, sorted
func (s *LXIScanner) Scan(ctx context.Context) ([]string, error) {
	if len(s.targets) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		found []string
		errs  []string
	)
	for _, target := range s.targets {
		var (
			addrs []string
			err   error
		)
		if s.nmapUsable() {
			addrs, err = s.scanNmap(ctx, target)
		} else {
			addrs, err = s.scanProbe(ctx, target)
		}
		if err != nil {
			s.log.Warn().Err(err).Str("target", target).Msg("instrument scan failed")
			errs = append(errs, target)
			continue
		}
		found = append(found, addrs...)
	}

	sort.Strings(found)
	s.log.Debug().Int("found", len(found)).Strs("targets", s.targets).Msg("network scan complete")

	if len(errs) == len(s.targets) {
		return nil, fmt.Errorf("scan failed for all targets: %s", strings.Join(errs, ", "))
	}
	return found, nil
}

func (s *LXIScanner) nmapUsable() bool {
	if !s.useNmap {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.nmapChecked {
		_, err := exec.LookPath("nmap")
		s.nmapFound = err == nil
		s.nmapChecked = true
		if !s.nmapFound {
			s.log.Info().Msg("nmap not in PATH, falling back to TCP probes")
		}
	}
	return s.nmapFound
}

func (s *LXIScanner) scanNmap(ctx context.Context, target string) ([]string, error) {
	opts := []nmap.Option{
		nmap.WithTargets(target),
		nmap.WithPorts(joinPorts(s.ports)),
	}
	if s.skipHostDiscovery {
		opts = append(opts, nmap.WithSkipHostDiscovery())
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("nmap run: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		s.log.Debug().Strs("warnings", *warnings).Str("target", target).Msg("nmap warnings")
	}

	return instrumentAddresses(result), nil
}

// instrumentAddresses converts nmap hosts with open SCPI ports to resource addresses.
func instrumentAddresses(result *nmap.Run) []string {
	if result == nil {
		return nil
	}

	var out []string
	for _, host := range result.Hosts {
		if host.Status.State != "up" || len(host.Addresses) == 0 {
			continue
		}

		ip := ""
		for _, addr := range host.Addresses {
			if addr.AddrType == "ipv4" {
				ip = addr.Addr
				break
			}
		}
		if ip == "" {
			ip = host.Addresses[0].Addr
		}

		for _, port := range host.Ports {
			if port.State.State == "open" {
				out = append(out, SocketAddress(ip, int(port.ID)))
			}
		}
	}
	return out
}

func (s *LXIScanner) scanProbe(ctx context.Context, target string) ([]string, error) {
	ips, err := expandCIDR(target)
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		found []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, ip := range ips {
		for _, port := range s.ports {
			g.Go(func() error {
				if s.probePort(gctx, ip, port) {
					mu.Lock()
					found = append(found, SocketAddress(ip, port))
					mu.Unlock()
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	return found, nil
}

func (s *LXIScanner) probePort(ctx context.Context, ip string, port int) bool {
	dialer := net.Dialer{Timeout: s.probeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// expandCIDR lists host addresses in an IPv4 range, or returns a single IP as-is.
func expandCIDR(cidr string) ([]string, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		if ip := net.ParseIP(cidr); ip != nil {
			return []string{ip.String()}, nil
		}
		return nil, fmt.Errorf("invalid target %q: %w", cidr, err)
	}

	ip := ipNet.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("only IPv4 supported: %s", cidr)
	}

	maskInt := binary.BigEndian.Uint32(ipNet.Mask)
	first := binary.BigEndian.Uint32(ip) & maskInt
	last := first | ^maskInt

	// network and broadcast addresses carry no hosts
	if ones, bits := ipNet.Mask.Size(); ones <= 30 && bits == 32 {
		first++
		last--
	}

	if last-first >= 1024 {
		return nil, fmt.Errorf("CIDR range too large (max 1024 hosts): %s", cidr)
	}

	ips := make([]string, 0, last-first+1)
	for i := first; i <= last; i++ {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, i)
		ips = append(ips, net.IP(b).String())
	}
	return ips, nil
}

func joinPorts(ports []int) string {
	s := make([]string, len(ports))
	for i, p := range ports {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ",")
}

// parsePorts accepts "5025", "5024,5025" or "5024-5026"
func parsePorts(spec string) ([]int, error) {
	var ports []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil || start < 1 || start > 65535 {
				return nil, fmt.Errorf("invalid port number: %s", lo)
			}
			end, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || end < start || end > 65535 {
				return nil, fmt.Errorf("invalid port number: %s", hi)
			}
			for p := start; p <= end; p++ {
				ports = append(ports, p)
			}
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil || p < 1 || p > 65535 {
			return nil, fmt.Errorf("invalid port number: %s", part)
		}
		ports = append(ports, p)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("empty port list")
	}
	return ports, nil
}
