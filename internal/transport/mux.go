package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"labrelay/internal/domain"
)

var busOrder = []domain.BusKind{
	domain.BusGPIB,
	domain.BusUSB,
	domain.BusSerial,
	domain.BusNetwork,
}

// Mux routes addresses to the provider registered for their bus
type Mux struct {
	providers map[domain.BusKind]Provider
	log       zerolog.Logger
}

// NewMux returns an empty mux; register providers with Handle
func NewMux(log zerolog.Logger) *Mux {
	return &Mux{providers: make(map[domain.BusKind]Provider), log: log}
}

// Handle registers p for bus. Not safe to call concurrently with List or Open.
func (m *Mux) Handle(bus domain.BusKind, p Provider) {
	m.providers[bus] = p
}

// Ready reports whether any backend is registered
func (m *Mux) Ready() bool {
	return len(m.providers) > 0
}

// List merges enumeration across buses. A failing bus is logged and skipped;
// only when every bus fails is ErrUnavailable returned.
func (m *Mux) List(ctx context.Context) ([]string, error) {
	if len(m.providers) == 0 {
		return nil, ErrUnavailable
	}

	var (
		out    []string
		failed int
	)
	for _, bus := range busOrder {
		p, ok := m.providers[bus]
		if !ok {
			continue
		}
		addrs, err := p.List(ctx)
		if err != nil {
			failed++
			m.log.Warn().Err(err).Str("bus", string(bus)).Msg("enumeration failed")
			continue
		}
		out = append(out, addrs...)
	}

	if failed == len(m.providers) {
		return nil, ErrUnavailable
	}
	return out, nil
}

func (m *Mux) Open(ctx context.Context, address string, timeout time.Duration) (Conn, error) {
	bus := domain.InferBusKind(address)
	p, ok := m.providers[bus]
	if !ok {
		return nil, &OpError{Op: "open", Address: address, Err: fmt.Errorf("%w: no %s provider", ErrUnsupportedAddress, bus)}
	}
	return p.Open(ctx, address, timeout)
}
