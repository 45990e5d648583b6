// Package transporttest provides an in-memory transport.Provider for tests.
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"labrelay/internal/transport"
)

// ErrRejected is what a scripted instrument returns for refused commands
var ErrRejected = errors.New("command rejected by instrument")

// Instrument scripts one fake resource
type Instrument struct {
	Address string
	// Identity answers "*IDN?"; empty makes the query time out
	Identity string
	// Responses maps query text to its reply; unknown queries time out
	Responses map[string]string
	// Reject returns a non-nil error for commands the instrument refuses
	Reject func(cmd string) error
	// OpenErr fails Open
	OpenErr error
}

// RejectCommands refuses exactly the listed commands
func RejectCommands(cmds ...string) func(string) error {
	set := make(map[string]bool, len(cmds))
	for _, c := range cmds {
		set[c] = true
	}
	return func(cmd string) error {
		if set[cmd] {
			return ErrRejected
		}
		return nil
	}
}

// RejectAll refuses every command
func RejectAll(cmd string) error { return ErrRejected }

// Provider is a scripted bench
type Provider struct {
	mu          sync.Mutex
	order       []string
	instruments map[string]*Instrument
	calls       map[string][]string
	writes      map[string][]string
	opens       map[string]int
	closes      map[string]int
	timeouts    []time.Duration

	// ListErr fails enumeration
	ListErr error
	// Hidden addresses are openable but not enumerated
	Hidden map[string]bool
}

func NewProvider(instruments ...*Instrument) *Provider {
	p := &Provider{
		instruments: make(map[string]*Instrument),
		calls:       make(map[string][]string),
		writes:      make(map[string][]string),
		opens:       make(map[string]int),
		closes:      make(map[string]int),
		Hidden:      make(map[string]bool),
	}
	for _, inst := range instruments {
		p.Add(inst)
	}
	return p
}

// Add registers an instrument; later adds with the same address replace it
func (p *Provider) Add(inst *Instrument) *Instrument {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.instruments[inst.Address]; !ok {
		p.order = append(p.order, inst.Address)
	}
	p.instruments[inst.Address] = inst
	return inst
}

func (p *Provider) List(ctx context.Context) ([]string, error) {
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, addr := range p.order {
		if !p.Hidden[addr] {
			out = append(out, addr)
		}
	}
	return out, nil
}

func (p *Provider) Open(ctx context.Context, address string, timeout time.Duration) (transport.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeouts = append(p.timeouts, timeout)

	inst, ok := p.instruments[address]
	if !ok {
		return nil, &transport.OpError{Op: "open", Address: address, Err: fmt.Errorf("no such resource")}
	}
	if inst.OpenErr != nil {
		return nil, &transport.OpError{Op: "open", Address: address, Err: inst.OpenErr}
	}
	p.opens[address]++
	return &conn{p: p, inst: inst}, nil
}

// Calls returns every command sent to address, writes and queries, in order
func (p *Provider) Calls(address string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls[address]...)
}

// Writes returns only the accepted writes sent to address
func (p *Provider) Writes(address string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes[address]...)
}

// Opens counts successful opens of address
func (p *Provider) Opens(address string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens[address]
}

// Closes counts closes of address
func (p *Provider) Closes(address string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes[address]
}

// Balanced reports whether every open was matched by a close
func (p *Provider) Balanced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, n := range p.opens {
		if p.closes[addr] != n {
			return false
		}
	}
	return true
}

// Timeouts lists the timeouts passed to Open in call order
func (p *Provider) Timeouts() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.timeouts...)
}

type conn struct {
	p      *Provider
	inst   *Instrument
	closed bool
}

func (c *conn) Address() string { return c.inst.Address }

func (c *conn) record(cmd string) error {
	c.p.calls[c.inst.Address] = append(c.p.calls[c.inst.Address], cmd)
	if c.closed {
		return &transport.OpError{Op: "write", Address: c.inst.Address, Command: cmd, Err: errors.New("use of closed connection")}
	}
	if c.inst.Reject != nil {
		if err := c.inst.Reject(cmd); err != nil {
			return &transport.OpError{Op: "write", Address: c.inst.Address, Command: cmd, Err: err}
		}
	}
	return nil
}

func (c *conn) Write(cmd string) error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if err := c.record(cmd); err != nil {
		return err
	}
	c.p.writes[c.inst.Address] = append(c.p.writes[c.inst.Address], cmd)
	return nil
}

func (c *conn) Query(cmd string) (string, error) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if err := c.record(cmd); err != nil {
		return "", err
	}
	if reply, ok := c.inst.Responses[cmd]; ok {
		return reply, nil
	}
	if cmd == "*IDN?" && c.inst.Identity != "" {
		return c.inst.Identity, nil
	}
	return "", &transport.OpError{Op: "query", Address: c.inst.Address, Command: cmd, Err: transport.ErrTimeout}
}

func (c *conn) Close() error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.p.closes[c.inst.Address]++
	}
	return nil
}
