package instrument

import (
	"math"
	"strconv"

	"labrelay/internal/domain"
	"labrelay/internal/transport"
)

// Spellings seen across vendors for common source actions. Output on/off is
// confirmed with *OPC? since some supplies ramp before reporting ready.
var (
	scpiOutputOn = Fallback{
		Action:   "output on",
		Commands: []string{"OUTP ON", "OUTPUT:STATE ON", ":OUTP:STAT ON", "OUTP 1"},
		Confirm:  "*OPC?",
	}
	scpiOutputOff = Fallback{
		Action:   "output off",
		Commands: []string{"OUTP OFF", "OUTPUT:STATE OFF", ":OUTP:STAT OFF", "OUTP 0"},
		Confirm:  "*OPC?",
	}
	scpiSelect     = Fallback{Action: "select output", Commands: []string{"INST:NSEL {ch}", "INST OUT{ch}", "INST CH{ch}"}}
	scpiSetVoltage = Fallback{Action: "set voltage", Commands: []string{"VOLT {value}", "SOUR:VOLT {value}", ":SOUR:VOLT:LEV:IMM:AMPL {value}"}}
	scpiSetCurrent = Fallback{Action: "set current", Commands: []string{"CURR {value}", "SOUR:CURR {value}", ":SOUR:CURR:LEV:IMM:AMPL {value}"}}
	scpiSetOVP     = Fallback{Action: "set ovp", Commands: []string{"VOLT:PROT {value}", "SOUR:VOLT:PROT {value}", "VOLT:PROT:LEV {value}"}}
	scpiSetOCP     = Fallback{Action: "set ocp", Commands: []string{"CURR:PROT {value}", "SOUR:CURR:PROT {value}", "CURR:PROT:LEV {value}"}}
	scpiClearProt  = Fallback{Action: "clear protection", Commands: []string{"OUTP:PROT:CLE", "VOLT:PROT:CLE", "*CLS"}}
	scpiTracking   = Fallback{Action: "set tracking", Commands: []string{"OUTP:TRAC {mode}", "INST:COUP {mode}"}}
	scpiVoltSlew   = Fallback{Action: "set voltage slew", Commands: []string{"VOLT:SLEW {value}", "SOUR:VOLT:SLEW {value}"}}
	scpiCurrSlew   = Fallback{Action: "set current slew", Commands: []string{"CURR:SLEW {value}", "SOUR:CURR:SLEW {value}"}}
)

// SCPISource is a best-effort driver for supplies that follow the common SCPI subset
type SCPISource struct {
	Base
}

func NewSCPISource(conn transport.Conn, id domain.DeviceIdentity) *SCPISource {
	return &SCPISource{Base: NewBase(conn, id)}
}

// Channels is unknown for generic supplies; output selection is attempted for ch > 1
func (s *SCPISource) Channels() int { return 1 }

func (s *SCPISource) selectOutput(ch int) error {
	if ch <= 1 {
		return nil
	}
	return s.run(scpiSelect, "{ch}", strconv.Itoa(ch))
}

func (s *SCPISource) limit(query string) Range {
	hi := s.float(query + "? MAX")
	if math.IsNaN(hi) {
		return Range{Min: 0, Max: math.Inf(1)}
	}
	return Range{Min: 0, Max: hi}
}

func (s *SCPISource) VoltageRange(ch int) Range {
	if s.selectOutput(ch) != nil {
		return Range{Min: 0, Max: math.Inf(1)}
	}
	return s.limit("VOLT")
}

func (s *SCPISource) CurrentRange(ch int) Range {
	if s.selectOutput(ch) != nil {
		return Range{Min: 0, Max: math.Inf(1)}
	}
	return s.limit("CURR")
}

func (s *SCPISource) set(ch int, f Fallback, v float64) error {
	if err := s.selectOutput(ch); err != nil {
		return err
	}
	return s.run(f, "{value}", num(v))
}

func (s *SCPISource) SetVoltage(ch int, v float64) error {
	if err := checkRange("voltage", "V", v, s.VoltageRange(ch)); err != nil {
		return err
	}
	return s.set(ch, scpiSetVoltage, v)
}

func (s *SCPISource) SetCurrent(ch int, a float64) error {
	if err := checkRange("current", "A", a, s.CurrentRange(ch)); err != nil {
		return err
	}
	return s.set(ch, scpiSetCurrent, a)
}

func (s *SCPISource) measure(ch int, cmd string) float64 {
	if s.selectOutput(ch) != nil {
		return math.NaN()
	}
	return s.float(cmd)
}

func (s *SCPISource) VoltageSetting(ch int) float64 { return s.measure(ch, "VOLT?") }
func (s *SCPISource) CurrentSetting(ch int) float64 { return s.measure(ch, "CURR?") }
func (s *SCPISource) MeasureVoltage(ch int) float64 { return s.measure(ch, "MEAS:VOLT?") }
func (s *SCPISource) MeasureCurrent(ch int) float64 { return s.measure(ch, "MEAS:CURR?") }
func (s *SCPISource) OVPSetting(ch int) float64     { return s.measure(ch, "VOLT:PROT?") }
func (s *SCPISource) OCPSetting(ch int) float64     { return s.measure(ch, "CURR:PROT?") }

func (s *SCPISource) OutputOn(ch int) error {
	if err := s.selectOutput(ch); err != nil {
		return err
	}
	return s.run(scpiOutputOn)
}

func (s *SCPISource) OutputOff(ch int) error {
	if err := s.selectOutput(ch); err != nil {
		return err
	}
	return s.run(scpiOutputOff)
}

func (s *SCPISource) OutputState(ch int) (bool, error) {
	if err := s.selectOutput(ch); err != nil {
		return false, err
	}
	return queryBool(s.conn, "OUTP?")
}

func (s *SCPISource) SetOVP(ch int, v float64) error {
	if err := checkNonNegative("ovp", "V", v); err != nil {
		return err
	}
	return s.set(ch, scpiSetOVP, v)
}

func (s *SCPISource) SetOCP(ch int, a float64) error {
	if err := checkNonNegative("ocp", "A", a); err != nil {
		return err
	}
	return s.set(ch, scpiSetOCP, a)
}

func (s *SCPISource) ClearProtection(ch int) error {
	if err := s.selectOutput(ch); err != nil {
		return err
	}
	return s.run(scpiClearProt)
}

func (s *SCPISource) ProtectionStatus(ch int) (ProtectionStatus, error) {
	if err := s.selectOutput(ch); err != nil {
		return ProtectionStatus{}, err
	}
	bits, err := queryInt(s.conn, "STAT:QUES:COND?")
	if err != nil {
		return ProtectionStatus{}, err
	}
	return protectionFromBits(bits), nil
}

func (s *SCPISource) SetTracking(mode TrackingMode) error {
	scpi, ok := trackingSCPI[mode]
	if !ok {
		return errUnknownTracking(mode)
	}
	return s.run(scpiTracking, "{mode}", scpi)
}

func (s *SCPISource) SetVoltageSlew(ch int, rate float64) error { return s.set(ch, scpiVoltSlew, rate) }

func (s *SCPISource) SetCurrentSlew(ch int, rate float64) error { return s.set(ch, scpiCurrSlew, rate) }
