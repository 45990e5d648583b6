package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"labrelay/internal/agent"
	"labrelay/internal/domain"
)

// DefaultAgentPort is where agents listen unless configured otherwise
const DefaultAgentPort = 8001

// Timeouts are the per-call budgets for talking to an agent
type Timeouts struct {
	Liveness time.Duration
	Discover time.Duration
	Control  time.Duration
	Status   time.Duration
}

// DefaultTimeouts reflect how long each call class takes on a real bench
var DefaultTimeouts = Timeouts{
	Liveness: 2 * time.Second,
	Discover: 30 * time.Second,
	Control:  30 * time.Second,
	Status:   5 * time.Second,
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Liveness <= 0 {
		t.Liveness = DefaultTimeouts.Liveness
	}
	if t.Discover <= 0 {
		t.Discover = DefaultTimeouts.Discover
	}
	if t.Control <= 0 {
		t.Control = DefaultTimeouts.Control
	}
	if t.Status <= 0 {
		t.Status = DefaultTimeouts.Status
	}
	return t
}

// ErrAgentFailed means the agent answered but reported a failure
var ErrAgentFailed = errors.New("agent reported failure")

// AgentUnreachableError is returned when no HTTP exchange with the agent completed
type AgentUnreachableError struct {
	Origin string
	URL    string
	Port   int
	Err    error
}

func (e *AgentUnreachableError) Error() string {
	return fmt.Sprintf("cannot reach your instrument agent at %s (%v). Please check:\n"+
		"1. the labrelay agent is running on %s\n"+
		"2. the firewall allows inbound TCP port %d\n"+
		"3. this machine and the relay are on a routable network",
		e.URL, e.Err, e.Origin, e.Port)
}

func (e *AgentUnreachableError) Unwrap() error { return e.Err }

// Locator maps an operator origin to its agent's base URL
type Locator func(origin string) string

// PortLocator reaches agents at http://<origin>:<port>
func PortLocator(port int) Locator {
	return func(origin string) string {
		return "http://" + net.JoinHostPort(origin, strconv.Itoa(port))
	}
}

// AgentClient talks to agents on behalf of operators
type AgentClient struct {
	locate   Locator
	port     int
	timeouts Timeouts
	http     *http.Client
}

func NewAgentClient(port int, timeouts Timeouts) *AgentClient {
	if port <= 0 {
		port = DefaultAgentPort
	}
	return &AgentClient{
		locate:   PortLocator(port),
		port:     port,
		timeouts: timeouts.withDefaults(),
		http:     &http.Client{},
	}
}

// WithLocator replaces origin resolution; tests point it at httptest servers
func (c *AgentClient) WithLocator(l Locator) *AgentClient {
	c.locate = l
	return c
}

func (c *AgentClient) Timeouts() Timeouts { return c.timeouts }

// call performs one request and decodes a JSON reply into out whatever the status
func (c *AgentClient) call(ctx context.Context, origin, method, path string, timeout time.Duration, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	base := c.locate(origin)

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &AgentUnreachableError{Origin: origin, URL: base, Port: c.port, Err: err}
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("agent %s replied %s with an unreadable body: %w", base, resp.Status, err)
	}
	return resp.StatusCode, nil
}

// Liveness succeeds when the agent's status endpoint answers 200
func (c *AgentClient) Liveness(ctx context.Context, origin string) error {
	status, err := c.call(ctx, origin, http.MethodGet, "/status", c.timeouts.Liveness, nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: status endpoint answered %d", ErrAgentFailed, status)
	}
	return nil
}

// Alive adapts Liveness to a session probe
func (c *AgentClient) Alive(ctx context.Context, origin string) bool {
	return c.Liveness(ctx, origin) == nil
}

// Discover runs a bus scan on the origin's agent
func (c *AgentClient) Discover(ctx context.Context, origin string) (agent.DiscoverResult, error) {
	var out struct {
		agent.DiscoverResult
		Message string `json:"message"`
	}
	if _, err := c.call(ctx, origin, http.MethodPost, "/detect", c.timeouts.Discover, nil, &out); err != nil {
		return agent.DiscoverResult{}, err
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "discover failed"
		}
		return out.DiscoverResult, fmt.Errorf("%w: %s", ErrAgentFailed, msg)
	}
	if out.Instruments == nil {
		out.Instruments = []domain.DeviceEntry{}
	}
	return out.DiscoverResult, nil
}

// Execute forwards one command within timeout. A failed command is a
// result, not an error; errors mean the exchange itself failed.
func (c *AgentClient) Execute(ctx context.Context, origin string, req domain.CommandRequest, timeout time.Duration) (domain.CommandResult, error) {
	var (
		res     domain.CommandResult
		errBody struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
	)

	var raw json.RawMessage
	status, err := c.call(ctx, origin, http.MethodPost, "/control", timeout, req, &raw)
	if err != nil {
		return domain.CommandResult{}, err
	}

	if status != http.StatusOK {
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error != "" {
			msg := errBody.Error
			if errBody.Details != "" {
				msg += ": " + errBody.Details
			}
			return domain.CommandResult{Success: false, Message: msg}, nil
		}
		return domain.CommandResult{}, fmt.Errorf("%w: control answered %d", ErrAgentFailed, status)
	}

	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.CommandResult{}, fmt.Errorf("decode control reply: %w", err)
	}
	if res.Message == "" {
		res.Message = "no message from agent"
	}
	return res, nil
}
