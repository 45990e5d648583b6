package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrUnavailable means no bus backend could be initialized
	ErrUnavailable = errors.New("transport unavailable")
	// ErrUnsupportedAddress means no provider handles the address form
	ErrUnsupportedAddress = errors.New("unsupported resource address")
	// ErrTimeout is returned when the instrument did not answer in time
	ErrTimeout = errors.New("i/o timeout")
)

// Conn is an open session with one instrument
type Conn interface {
	Address() string
	Write(cmd string) error
	Query(cmd string) (string, error)
	Close() error
}

// Provider enumerates and opens instrument resources
type Provider interface {
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, address string, timeout time.Duration) (Conn, error)
}

// OpError records which operation on which resource failed
type OpError struct {
	Op      string
	Address string
	Command string
	Err     error
}

func (e *OpError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("%s %s %q: %v", e.Op, e.Address, e.Command, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Address, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// lineConn frames SCPI messages with a trailing newline over any byte stream.
type lineConn struct {
	address     string
	rw          io.ReadWriteCloser
	reader      *bufio.Reader
	timeout     time.Duration
	setDeadline func(time.Time) error
}

func newLineConn(address string, rw io.ReadWriteCloser, timeout time.Duration, setDeadline func(time.Time) error) *lineConn {
	return &lineConn{
		address:     address,
		rw:          rw,
		reader:      bufio.NewReader(rw),
		timeout:     timeout,
		setDeadline: setDeadline,
	}
}

func (c *lineConn) Address() string { return c.address }

func (c *lineConn) arm() error {
	if c.setDeadline == nil || c.timeout <= 0 {
		return nil
	}
	return c.setDeadline(time.Now().Add(c.timeout))
}

func (c *lineConn) Write(cmd string) error {
	if err := c.arm(); err != nil {
		return &OpError{Op: "write", Address: c.address, Command: cmd, Err: err}
	}
	if _, err := io.WriteString(c.rw, cmd+"\n"); err != nil {
		return &OpError{Op: "write", Address: c.address, Command: cmd, Err: normalizeTimeout(err)}
	}
	return nil
}

func (c *lineConn) Query(cmd string) (string, error) {
	if err := c.Write(cmd); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", &OpError{Op: "query", Address: c.address, Command: cmd, Err: normalizeTimeout(err)}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *lineConn) Close() error {
	return c.rw.Close()
}

type timeoutError interface{ Timeout() bool }

func normalizeTimeout(err error) error {
	var te timeoutError
	if errors.As(err, &te) && te.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// splitAddress breaks a VISA address into its "::" separated fields.
func splitAddress(address string) []string {
	parts := strings.Split(strings.TrimSpace(address), "::")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
