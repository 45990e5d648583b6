// Package identify turns enumerated bus addresses into classified discover entries.
package identify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"labrelay/internal/domain"
	"labrelay/internal/instrument"
	"labrelay/internal/transport"
)

const (
	DefaultScanTimeout = 3 * time.Second
	DefaultConcurrency = 4
)

// ErrResourceOpen is returned by Identify when the address could not be opened
var ErrResourceOpen = instrument.ErrResourceOpen

// Resolver identifies instruments through a transport provider
type Resolver struct {
	provider    transport.Provider
	registry    *instrument.Registry
	timeout     time.Duration
	concurrency int
	log         zerolog.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithScanTimeout bounds each identity exchange
func WithScanTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithConcurrency limits how many resources are identified at once
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func NewResolver(p transport.Provider, reg *instrument.Registry, log zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		provider:    p,
		registry:    reg,
		timeout:     DefaultScanTimeout,
		concurrency: DefaultConcurrency,
		log:         log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Identify opens address, asks for its identity and classifies it.
// An instrument that answers neither identity query is returned unidentified
// with a nil error; only an open failure is an error.
func (r *Resolver) Identify(ctx context.Context, address string) (domain.DeviceIdentity, error) {
	conn, err := r.provider.Open(ctx, address, r.timeout)
	if err != nil {
		return domain.DeviceIdentity{}, fmt.Errorf("%w: %w", ErrResourceOpen, err)
	}
	defer conn.Close()

	raw, err := instrument.QueryIdentity(conn)
	if err != nil {
		r.log.Debug().Err(err).Str("address", address).Msg("no identity reply")
		return domain.ParseIdentity(""), nil
	}

	id := domain.ParseIdentity(raw)
	if c, ok := r.registry.Classify(raw); ok {
		id.Category = c
	}
	return id, nil
}

// Scan enumerates every resource and identifies them concurrently. Resources
// that fail to open are logged and left out; the order of enumeration is kept.
func (r *Resolver) Scan(ctx context.Context) ([]domain.DeviceEntry, error) {
	addrs, err := r.provider.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate resources: %w", err)
	}

	slots := make([]*domain.DeviceEntry, len(addrs))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, addr := range addrs {
		g.Go(func() error {
			id, err := r.Identify(ctx, addr)
			if err != nil {
				r.log.Warn().Err(err).Str("address", addr).Msg("skipping resource")
				return nil
			}
			entry := domain.NewDeviceEntry(domain.NewTransportResource(addr), id)
			slots[i] = &entry
			return nil
		})
	}
	_ = g.Wait()

	entries := make([]domain.DeviceEntry, 0, len(addrs))
	for _, e := range slots {
		if e != nil {
			entries = append(entries, *e)
		}
	}

	r.log.Info().Int("resources", len(addrs)).Int("identified", countIdentified(entries)).
		Int("skipped", len(addrs)-len(entries)).Msg("scan complete")
	return entries, nil
}

func countIdentified(entries []domain.DeviceEntry) int {
	n := 0
	for _, e := range entries {
		if e.Identified {
			n++
		}
	}
	return n
}
