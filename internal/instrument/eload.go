package instrument

import (
	"strings"

	"labrelay/internal/domain"
	"labrelay/internal/transport"
)

// LoadMode is the regulation mode of an electronic load
type LoadMode string

const (
	ModeCC LoadMode = "CC"
	ModeCV LoadMode = "CV"
	ModeCR LoadMode = "CR"
	ModeCP LoadMode = "CP"
)

var loadModeSCPI = map[LoadMode]string{
	ModeCC: "CURR",
	ModeCV: "VOLT",
	ModeCR: "RES",
	ModeCP: "POW",
}

// ParseLoadMode accepts CC/CV/CR/CP in any case
func ParseLoadMode(s string) (LoadMode, bool) {
	m := LoadMode(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := loadModeSCPI[m]
	return m, ok
}

// ELoad is a programmable electronic load
type ELoad interface {
	Instrument
	LoadOn() error
	LoadOff() error
	LoadState() (bool, error)
	SetMode(mode LoadMode) error
	SetCurrent(a float64) error
	SetVoltage(v float64) error
	MeasureVoltage() float64
	MeasureCurrent() float64
	MeasurePower() float64
}

// LoadStatus is a point-in-time snapshot of a load
type LoadStatus struct {
	Load    string             `json:"load"`
	Voltage domain.Measurement `json:"voltage"`
	Current domain.Measurement `json:"current"`
	Power   domain.Measurement `json:"power"`
}

func SnapshotLoad(l ELoad) LoadStatus {
	st := LoadStatus{
		Load:    "UNKNOWN",
		Voltage: domain.Measurement(l.MeasureVoltage()),
		Current: domain.Measurement(l.MeasureCurrent()),
		Power:   domain.Measurement(l.MeasurePower()),
	}
	if on, err := l.LoadState(); err == nil {
		st.Load = "OFF"
		if on {
			st.Load = "ON"
		}
	}
	return st
}

func errUnknownMode(mode LoadMode) error {
	return &invalidValueError{what: "load mode", value: string(mode)}
}

// Chroma63200A drives the Chroma 63200A high-power load family
type Chroma63200A struct {
	Base
}

func NewChroma63200A(conn transport.Conn, id domain.DeviceIdentity) *Chroma63200A {
	return &Chroma63200A{Base: NewBase(conn, id)}
}

func (l *Chroma63200A) LoadOn() error  { return l.run(Single("load on", "LOAD ON")) }
func (l *Chroma63200A) LoadOff() error { return l.run(Single("load off", "LOAD OFF")) }

func (l *Chroma63200A) LoadState() (bool, error) { return queryBool(l.conn, "LOAD?") }

func (l *Chroma63200A) SetMode(mode LoadMode) error {
	scpi, ok := loadModeSCPI[mode]
	if !ok {
		return errUnknownMode(mode)
	}
	return l.run(Single("set mode", "MODE {mode}"), "{mode}", scpi)
}

func (l *Chroma63200A) SetCurrent(a float64) error {
	if err := checkNonNegative("current", "A", a); err != nil {
		return err
	}
	return l.run(Single("set current", "CURR:STAT:L1 {value}"), "{value}", num(a))
}

func (l *Chroma63200A) SetVoltage(v float64) error {
	if err := checkNonNegative("voltage", "V", v); err != nil {
		return err
	}
	return l.run(Single("set voltage", "VOLT:STAT:L1 {value}"), "{value}", num(v))
}

func (l *Chroma63200A) MeasureVoltage() float64 { return l.float("MEAS:VOLT?") }
func (l *Chroma63200A) MeasureCurrent() float64 { return l.float("MEAS:CURR?") }
func (l *Chroma63200A) MeasurePower() float64   { return l.float("MEAS:POW?") }

var (
	scpiLoadOn  = Fallback{Action: "load on", Commands: []string{"INP ON", "INPUT:STATE ON", "LOAD ON", "INP 1"}}
	scpiLoadOff = Fallback{Action: "load off", Commands: []string{"INP OFF", "INPUT:STATE OFF", "LOAD OFF", "INP 0"}}
	scpiMode    = Fallback{Action: "set mode", Commands: []string{"FUNC {mode}", "SOUR:FUNC {mode}", "MODE {mode}"}}
	scpiLoadI   = Fallback{Action: "set current", Commands: []string{"CURR {value}", "SOUR:CURR {value}"}}
	scpiLoadV   = Fallback{Action: "set voltage", Commands: []string{"VOLT {value}", "SOUR:VOLT {value}"}}
)

// SCPILoad is a best-effort driver for loads following the common SCPI input subsystem
type SCPILoad struct {
	Base
}

func NewSCPILoad(conn transport.Conn, id domain.DeviceIdentity) *SCPILoad {
	return &SCPILoad{Base: NewBase(conn, id)}
}

func (l *SCPILoad) LoadOn() error  { return l.run(scpiLoadOn) }
func (l *SCPILoad) LoadOff() error { return l.run(scpiLoadOff) }

func (l *SCPILoad) LoadState() (bool, error) { return queryBool(l.conn, "INP?") }

func (l *SCPILoad) SetMode(mode LoadMode) error {
	scpi, ok := loadModeSCPI[mode]
	if !ok {
		return errUnknownMode(mode)
	}
	return l.run(scpiMode, "{mode}", scpi)
}

func (l *SCPILoad) SetCurrent(a float64) error {
	if err := checkNonNegative("current", "A", a); err != nil {
		return err
	}
	return l.run(scpiLoadI, "{value}", num(a))
}

func (l *SCPILoad) SetVoltage(v float64) error {
	if err := checkNonNegative("voltage", "V", v); err != nil {
		return err
	}
	return l.run(scpiLoadV, "{value}", num(v))
}

func (l *SCPILoad) MeasureVoltage() float64 { return l.float("MEAS:VOLT?") }
func (l *SCPILoad) MeasureCurrent() float64 { return l.float("MEAS:CURR?") }
func (l *SCPILoad) MeasurePower() float64   { return l.float("MEAS:POW?") }
