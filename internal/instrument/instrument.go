package instrument

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"labrelay/internal/domain"
	"labrelay/internal/transport"
)

var (
	// ErrUnsupportedModel means no registered driver matches the identity
	ErrUnsupportedModel = errors.New("unsupported model")
	// ErrResourceOpen means the transport could not open the address
	ErrResourceOpen = errors.New("resource open failed")
	// ErrOutOfRange is wrapped by OutOfRangeError
	ErrOutOfRange = errors.New("value out of range")
	// ErrInvalidArgument covers malformed channel numbers and enum values
	ErrInvalidArgument = errors.New("invalid argument")
)

// Instrument is implemented by every driver
type Instrument interface {
	Identify() (string, error)
	Identity() domain.DeviceIdentity
}

// Connector is implemented by drivers with connect-time setup
type Connector interface {
	Connect(ctx context.Context) error
}

// Constructor builds a driver around an open connection
type Constructor func(conn transport.Conn, id domain.DeviceIdentity) Instrument

// OutOfRangeError is returned before any write when a setpoint falls outside the envelope
type OutOfRangeError struct {
	Quantity string
	Value    float64
	Range    Range
	Unit     string
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s %s%s outside [%s, %s]%s",
		e.Quantity, num(e.Value), e.Unit, num(e.Range.Min), num(e.Range.Max), e.Unit)
}

func (e *OutOfRangeError) Unwrap() error { return ErrOutOfRange }

// CommandRejectedError lists every spelling tried for an action
type CommandRejectedError struct {
	Action   string
	Attempts []string
	Err      error
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("%s rejected after %d attempt(s) [%s]: last error: %v",
		e.Action, len(e.Attempts), strings.Join(e.Attempts, "; "), e.Err)
}

func (e *CommandRejectedError) Unwrap() error { return e.Err }

// Base carries the connection and identity shared by all drivers
type Base struct {
	conn transport.Conn
	id   domain.DeviceIdentity
}

func NewBase(conn transport.Conn, id domain.DeviceIdentity) Base {
	return Base{conn: conn, id: id}
}

// Identify re-queries the instrument's identity string
func (b *Base) Identify() (string, error) {
	reply, err := b.conn.Query("*IDN?")
	return strings.TrimSpace(reply), err
}

func (b *Base) Identity() domain.DeviceIdentity { return b.id }

func (b *Base) write(cmd string) error { return b.conn.Write(cmd) }

func (b *Base) run(f Fallback, oldnew ...string) error {
	_, err := f.Run(b.conn, oldnew...)
	return err
}

func (b *Base) float(cmd string) float64 { return QueryFloat(b.conn, cmd) }

type invalidValueError struct {
	what  string
	value string
}

func (e *invalidValueError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.what, e.value)
}

func (e *invalidValueError) Unwrap() error { return ErrInvalidArgument }
