package agent

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"

	"labrelay/internal/domain"
	"labrelay/internal/identify"
	"labrelay/internal/instrument"
	"labrelay/internal/transport"
)

// DefaultConnectTimeout bounds opening an instrument for an action
const DefaultConnectTimeout = 10 * time.Second

// State is a step of one Execute call
type State string

const (
	StateIdle            State = "idle"
	StateResolvingDriver State = "resolving_driver"
	StateConnected       State = "connected"
	StateExecuting       State = "executing"
	StateDisconnected    State = "disconnected"
)

// StateHook observes Execute transitions for one address
type StateHook func(address string, state State)

// Options tunes an Agent
type Options struct {
	ConnectTimeout time.Duration
	// SerializePerAddress queues actions that target the same address
	SerializePerAddress bool
	Version             string
	StateHook           StateHook
}

// Agent discovers instruments and runs actions against them
type Agent struct {
	provider transport.Provider
	registry *instrument.Registry
	resolver *identify.Resolver
	opts     Options
	locks    *keyedMutex
	log      zerolog.Logger
}

func New(p transport.Provider, reg *instrument.Registry, resolver *identify.Resolver, log zerolog.Logger, opts Options) *Agent {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	return &Agent{
		provider: p,
		registry: reg,
		resolver: resolver,
		opts:     opts,
		locks:    newKeyedMutex(),
		log:      log,
	}
}

// DiscoverResult is the body of a discover reply
type DiscoverResult struct {
	Success     bool                 `json:"success"`
	Instruments []domain.DeviceEntry `json:"instruments"`
	Count       int                  `json:"count"`
	// ScanTime is in seconds, rounded to hundredths
	ScanTime float64 `json:"scan_time"`
}

// Discover scans every bus. It fails only when enumeration itself fails.
func (a *Agent) Discover(ctx context.Context) (DiscoverResult, error) {
	start := time.Now()
	entries, err := a.resolver.Scan(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("discover failed")
		return DiscoverResult{Instruments: []domain.DeviceEntry{}}, err
	}

	elapsed := time.Since(start)
	a.log.Info().Int("count", len(entries)).Dur("elapsed", elapsed).Msg("discover complete")
	return DiscoverResult{
		Success:     true,
		Instruments: entries,
		Count:       len(entries),
		ScanTime:    float64(elapsed.Round(10*time.Millisecond).Milliseconds()) / 1000,
	}, nil
}

func (a *Agent) enter(address string, s State) {
	if a.opts.StateHook != nil {
		a.opts.StateHook(address, s)
	}
}

// Execute validates req, then opens the instrument, runs the action and
// closes it again. Invalid requests fail without touching the bus.
func (a *Agent) Execute(ctx context.Context, req domain.CommandRequest) domain.CommandResult {
	cat, act, err := lookup(req)
	if err != nil {
		a.log.Warn().Err(err).Str("address", req.Address).Str("action", req.Action).Msg("rejected request")
		return domain.Failed(err)
	}

	if a.opts.SerializePerAddress {
		unlock := a.locks.Lock(req.Address)
		defer unlock()
	}

	start := time.Now()
	log := a.log.With().Str("address", req.Address).Str("category", string(cat)).Str("action", req.Action).Logger()

	msg, payload, err := a.session(ctx, cat, req, act)
	if err != nil {
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("action failed")
		return domain.Failed(err)
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg(msg)
	return domain.Succeeded(msg, payload)
}

func (a *Agent) session(ctx context.Context, cat domain.Category, req domain.CommandRequest, act action) (string, any, error) {
	a.enter(req.Address, StateResolvingDriver)
	h, err := instrument.Dial(ctx, a.provider, a.registry, cat, req.Address, a.opts.ConnectTimeout)
	if err != nil {
		a.enter(req.Address, StateIdle)
		return "", nil, err
	}
	a.enter(req.Address, StateConnected)

	defer func() {
		if cerr := h.Close(); cerr != nil {
			a.log.Debug().Err(cerr).Str("address", req.Address).Msg("close")
		}
		a.enter(req.Address, StateDisconnected)
		a.enter(req.Address, StateIdle)
	}()

	a.enter(req.Address, StateExecuting)
	return act.run(h.Instrument, req)
}

// Status is the agent's liveness report
type Status struct {
	Status          string   `json:"status"`
	Version         string   `json:"version,omitempty"`
	LocalIP         string   `json:"local_ip"`
	TransportStatus string   `json:"transport_status"`
	Resources       int      `json:"available_resources"`
	Addresses       []string `json:"resources"`
	Error           string   `json:"error,omitempty"`
}

// Liveness reports whether the agent runs and its buses enumerate
func (a *Agent) Liveness(ctx context.Context) Status {
	st := Status{Status: "running", Version: a.opts.Version, LocalIP: LocalIP(), Addresses: []string{}}

	addrs, err := a.Resources(ctx)
	switch {
	case err != nil:
		st.TransportStatus = "error"
		st.Error = err.Error()
	default:
		st.TransportStatus = "ok"
		st.Resources = len(addrs)
		st.Addresses = addrs
	}
	return st
}

// Resources is the raw enumeration without identification
func (a *Agent) Resources(ctx context.Context) ([]string, error) {
	addrs, err := a.provider.List(ctx)
	if err != nil {
		return nil, err
	}
	if addrs == nil {
		addrs = []string{}
	}
	return addrs, nil
}

// LocalIP is the address this machine uses for outbound traffic, or loopback
// when no route exists. No packet is sent.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
