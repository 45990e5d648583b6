package instrument

import (
	"context"
	"fmt"
	"strings"
	"time"

	"labrelay/internal/domain"
	"labrelay/internal/transport"
)

// Handle is an instrument bound to an open connection
type Handle struct {
	Instrument Instrument
	Token      string
	conn       transport.Conn
}

// Close releases the connection
func (h *Handle) Close() error {
	return h.conn.Close()
}

// QueryIdentity asks "*IDN?" and falls back to the older "ID?" form.
func QueryIdentity(conn transport.Conn) (string, error) {
	var lastErr error
	for _, q := range []string{"*IDN?", "ID?"} {
		reply, err := conn.Query(q)
		if err != nil {
			lastErr = err
			continue
		}
		if reply = strings.TrimSpace(reply); reply != "" {
			return reply, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("empty identity")
	}
	return "", lastErr
}

// Dial opens address, identifies it and constructs the matching driver.
// On error nothing is left open.
func Dial(ctx context.Context, p transport.Provider, reg *Registry, category domain.Category,
	address string, timeout time.Duration) (*Handle, error) {
	conn, err := p.Open(ctx, address, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceOpen, err)
	}

	raw, err := QueryIdentity(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s did not identify: %v", ErrUnsupportedModel, address, err)
	}

	ctor, token, ok := reg.Resolve(category, raw)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%w: no %s driver for %q", ErrUnsupportedModel, category, raw)
	}

	id := domain.ParseIdentity(raw)
	id.Category = category
	inst := ctor(conn, id)

	if c, ok := inst.(Connector); ok {
		if err := c.Connect(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("connect %s: %w", address, err)
		}
	}

	return &Handle{Instrument: inst, Token: token, conn: conn}, nil
}

// Use runs fn against a freshly dialed instrument and always closes it
func Use(ctx context.Context, p transport.Provider, reg *Registry, category domain.Category,
	address string, timeout time.Duration, fn func(Instrument) error) error {
	h, err := Dial(ctx, p, reg, category, address, timeout)
	if err != nil {
		return err
	}
	defer h.Close()
	return fn(h.Instrument)
}
