package transport

import "time"

// LXIOption configures an LXIScanner
type LXIOption func(*LXIScanner)

// WithScanTimeout bounds a whole Scan call
func WithScanTimeout(d time.Duration) LXIOption {
	return func(s *LXIScanner) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithProbeTimeout sets the per-connect timeout for the TCP fallback
func WithProbeTimeout(d time.Duration) LXIOption {
	return func(s *LXIScanner) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

// WithPorts sets the ports to look for; invalid specs are ignored
func WithPorts(spec string) LXIOption {
	return func(s *LXIScanner) {
		if ports, err := parsePorts(spec); err == nil {
			s.ports = ports
		}
	}
}

// WithNmap toggles the nmap backend
func WithNmap(enabled bool) LXIOption {
	return func(s *LXIScanner) {
		s.useNmap = enabled
	}
}

// WithSkipHostDiscovery treats every host as up (-Pn); lab VLANs often drop ICMP
func WithSkipHostDiscovery(skip bool) LXIOption {
	return func(s *LXIScanner) {
		s.skipHostDiscovery = skip
	}
}

// WithProbeConcurrency caps simultaneous TCP probes
func WithProbeConcurrency(n int) LXIOption {
	return func(s *LXIScanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}
