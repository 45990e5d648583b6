package domain

import "strings"

// BusKind is the physical bus an instrument is attached through
type BusKind string

const (
	BusGPIB    BusKind = "gpib"
	BusUSB     BusKind = "usb"
	BusSerial  BusKind = "serial"
	BusNetwork BusKind = "network"
	BusUnknown BusKind = "unknown"
)

// TransportResource is an enumerated, not yet identified, instrument address
type TransportResource struct {
	Address string  `json:"address"`
	Bus     BusKind `json:"bus"`
}

// NewTransportResource classifies address by its VISA resource prefix
func NewTransportResource(address string) TransportResource {
	return TransportResource{Address: address, Bus: InferBusKind(address)}
}

// InferBusKind maps a VISA-style resource address to its bus.
// ASRL is the serial prefix; TCPIP covers both SOCKET and INSTR resources.
func InferBusKind(address string) BusKind {
	upper := strings.ToUpper(strings.TrimSpace(address))
	switch {
	case strings.HasPrefix(upper, "GPIB"):
		return BusGPIB
	case strings.HasPrefix(upper, "USB"):
		return BusUSB
	case strings.HasPrefix(upper, "ASRL"):
		return BusSerial
	case strings.HasPrefix(upper, "TCPIP"):
		return BusNetwork
	default:
		return BusUnknown
	}
}

// HeuristicLabel names an instrument that refused every identity query
func (b BusKind) HeuristicLabel(address string) string {
	switch b {
	case BusGPIB:
		return "GPIB instrument @ " + address
	case BusSerial:
		return "Serial device @ " + address
	case BusUSB:
		return "USB instrument @ " + address
	case BusNetwork:
		return "Network instrument @ " + address
	default:
		return "Instrument @ " + address
	}
}
