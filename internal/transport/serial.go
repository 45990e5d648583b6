package transport

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

// SerialConfig is the line setting applied to every serial resource
type SerialConfig struct {
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
}

// DefaultSerialConfig is 9600 8N1
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{BaudRate: 9600, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
}

// SerialProvider exposes serial ports as ASRL resources
type SerialProvider struct {
	config SerialConfig
	static []string
	ports  func() ([]string, error)
	open   func(name string, mode *serial.Mode) (serial.Port, error)
}

// NewSerialProvider enumerates host serial ports plus the given static addresses
func NewSerialProvider(config SerialConfig, static []string) *SerialProvider {
	return &SerialProvider{
		config: config,
		static: static,
		ports:  serial.GetPortsList,
		open:   serial.Open,
	}
}

func (p *SerialProvider) List(ctx context.Context) ([]string, error) {
	names, err := p.ports()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}

	out := append([]string(nil), p.static...)
	for _, name := range names {
		addr := SerialAddress(name)
		if !containsFold(out, addr) {
			out = append(out, addr)
		}
	}
	return out, nil
}

func (p *SerialProvider) Open(ctx context.Context, address string, timeout time.Duration) (Conn, error) {
	name, err := ParseSerialAddress(address)
	if err != nil {
		return nil, &OpError{Op: "open", Address: address, Err: err}
	}

	port, err := p.open(name, &serial.Mode{
		BaudRate: p.config.BaudRate,
		DataBits: p.config.DataBits,
		Parity:   p.config.Parity,
		StopBits: p.config.StopBits,
	})
	if err != nil {
		return nil, &OpError{Op: "open", Address: address, Err: err}
	}

	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, &OpError{Op: "open", Address: address, Err: err}
	}

	return newLineConn(address, timedPort{port}, 0, nil), nil
}

// timedPort turns the library's empty read on timeout into ErrTimeout.
type timedPort struct {
	serial.Port
}

func (p timedPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}

// SerialAddress formats a port name as an ASRL resource
func SerialAddress(name string) string {
	return "ASRL" + name + "::INSTR"
}

// ParseSerialAddress returns the OS port name for an ASRL resource.
// Numeric forms follow the VISA convention where ASRL1 is the first port.
func ParseSerialAddress(address string) (string, error) {
	parts := splitAddress(address)
	if len(parts) == 0 || !strings.HasPrefix(strings.ToUpper(parts[0]), "ASRL") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAddress, address)
	}

	name := parts[0][len("ASRL"):]
	if name == "" {
		return "", fmt.Errorf("%w: missing port in %s", ErrUnsupportedAddress, address)
	}

	if n, err := strconv.Atoi(name); err == nil {
		if n < 1 {
			return "", fmt.Errorf("%w: bad port number in %s", ErrUnsupportedAddress, address)
		}
		if runtime.GOOS == "windows" {
			return "COM" + name, nil
		}
		return "/dev/ttyS" + strconv.Itoa(n-1), nil
	}
	return name, nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
