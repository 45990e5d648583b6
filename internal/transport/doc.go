// Package transport is the bus layer between instrument drivers and the hardware.
//
// A Provider enumerates resource addresses and opens them; a Conn carries
// newline-terminated SCPI text in both directions. Addresses follow the VISA
// resource syntax so that enumeration output, operator input and driver
// lookups all share one form:
//
//	TCPIP0::192.168.1.50::5025::SOCKET   raw SCPI over TCP
//	ASRL/dev/ttyUSB0::INSTR              serial port by device path
//	GPIB0::9::INSTR                      GPIB (enumerated only when a provider exists)
//
// # Providers
//
// SocketProvider speaks raw SCPI to LAN instruments and can discover them with
// an LXIScanner. SerialProvider drives RS-232/USB-serial adapters through
// go.bug.st/serial. Mux routes each address to the provider for its bus and
// merges enumeration across providers.
//
// Every Conn has a single timeout fixed at Open; it bounds each write and
// each query individually. There is no cancellation of an in-flight exchange.
package transport
