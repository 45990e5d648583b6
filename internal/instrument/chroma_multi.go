package instrument

import (
	"fmt"
	"math"
	"strconv"

	"labrelay/internal/domain"
	"labrelay/internal/transport"
)

const chromaMultiOutputs = 4

// ChromaMulti drives Chroma multi-output sources addressed with SOUR<n> and (@n) lists
type ChromaMulti struct {
	Base
}

func NewChromaMulti(conn transport.Conn, id domain.DeviceIdentity) *ChromaMulti {
	return &ChromaMulti{Base: NewBase(conn, id)}
}

func (c *ChromaMulti) Channels() int { return chromaMultiOutputs }

// chans renders a channel list argument; 0 selects every output
func (c *ChromaMulti) chans(ch int) string {
	if ch == 0 {
		return fmt.Sprintf("1:%d", chromaMultiOutputs)
	}
	return strconv.Itoa(ch)
}

func (c *ChromaMulti) limits(query string, ch int) Range {
	lo := c.float(fmt.Sprintf("SOUR%d:%s? MIN", ch, query))
	hi := c.float(fmt.Sprintf("SOUR%d:%s? MAX", ch, query))
	if math.IsNaN(lo) || math.IsNaN(hi) {
		return Range{Min: 0, Max: math.Inf(1)}
	}
	return Range{Min: lo, Max: hi}
}

// VoltageRange asks the instrument; unknown limits come back unbounded
func (c *ChromaMulti) VoltageRange(ch int) Range { return c.limits("VOLT", ch) }

func (c *ChromaMulti) CurrentRange(ch int) Range { return c.limits("CURR", ch) }

func (c *ChromaMulti) SetVoltage(ch int, v float64) error {
	if err := checkOutput(ch, chromaMultiOutputs); err != nil {
		return err
	}
	if err := checkRange("voltage", "V", v, c.VoltageRange(ch)); err != nil {
		return err
	}
	return c.run(Single("set voltage", "SOUR{ch}:VOLT {value}"), "{ch}", strconv.Itoa(ch), "{value}", num(v))
}

func (c *ChromaMulti) SetCurrent(ch int, a float64) error {
	if err := checkOutput(ch, chromaMultiOutputs); err != nil {
		return err
	}
	if err := checkRange("current", "A", a, c.CurrentRange(ch)); err != nil {
		return err
	}
	return c.run(Single("set current", "SOUR{ch}:CURR {value}"), "{ch}", strconv.Itoa(ch), "{value}", num(a))
}

func (c *ChromaMulti) VoltageSetting(ch int) float64 { return c.float(fmt.Sprintf("SOUR%d:VOLT?", ch)) }
func (c *ChromaMulti) CurrentSetting(ch int) float64 { return c.float(fmt.Sprintf("SOUR%d:CURR?", ch)) }
func (c *ChromaMulti) MeasureVoltage(ch int) float64 { return c.float(fmt.Sprintf("MEAS:VOLT? (@%d)", ch)) }
func (c *ChromaMulti) MeasureCurrent(ch int) float64 { return c.float(fmt.Sprintf("MEAS:CURR? (@%d)", ch)) }

func (c *ChromaMulti) OutputOn(ch int) error {
	if err := checkChannel(ch, chromaMultiOutputs); err != nil {
		return err
	}
	return c.run(Fallback{Action: "output on", Commands: []string{"OUTP:STAT ON,(@{ch})", "OUTP ON,(@{ch})"}}, "{ch}", c.chans(ch))
}

func (c *ChromaMulti) OutputOff(ch int) error {
	if err := checkChannel(ch, chromaMultiOutputs); err != nil {
		return err
	}
	return c.run(Fallback{Action: "output off", Commands: []string{"OUTP:STAT OFF,(@{ch})", "OUTP OFF,(@{ch})"}}, "{ch}", c.chans(ch))
}

func (c *ChromaMulti) OutputState(ch int) (bool, error) {
	return queryBool(c.conn, fmt.Sprintf("OUTP:STAT? (@%d)", ch))
}

func (c *ChromaMulti) SetOVP(ch int, v float64) error {
	if err := checkOutput(ch, chromaMultiOutputs); err != nil {
		return err
	}
	if err := checkNonNegative("ovp", "V", v); err != nil {
		return err
	}
	return c.run(Single("set ovp", "SOUR{ch}:VOLT:PROT {value}"), "{ch}", strconv.Itoa(ch), "{value}", num(v))
}

func (c *ChromaMulti) SetOCP(ch int, a float64) error {
	if err := checkOutput(ch, chromaMultiOutputs); err != nil {
		return err
	}
	if err := checkNonNegative("ocp", "A", a); err != nil {
		return err
	}
	return c.run(Single("set ocp", "SOUR{ch}:CURR:PROT {value}"), "{ch}", strconv.Itoa(ch), "{value}", num(a))
}

func (c *ChromaMulti) OVPSetting(ch int) float64 { return c.float(fmt.Sprintf("SOUR%d:VOLT:PROT?", ch)) }
func (c *ChromaMulti) OCPSetting(ch int) float64 { return c.float(fmt.Sprintf("SOUR%d:CURR:PROT?", ch)) }

func (c *ChromaMulti) ClearProtection(ch int) error {
	if err := checkChannel(ch, chromaMultiOutputs); err != nil {
		return err
	}
	return c.run(Single("clear protection", "OUTP:PROT:CLE (@{ch})"), "{ch}", c.chans(ch))
}

func (c *ChromaMulti) ProtectionStatus(ch int) (ProtectionStatus, error) {
	bits, err := queryInt(c.conn, fmt.Sprintf("STAT:QUES:COND? (@%d)", ch))
	if err != nil {
		return ProtectionStatus{}, err
	}
	return protectionFromBits(bits), nil
}

func (c *ChromaMulti) SetTracking(mode TrackingMode) error {
	scpi, ok := trackingSCPI[mode]
	if !ok {
		return errUnknownTracking(mode)
	}
	return c.run(Single("set tracking", "OUTP:TRAC {mode}"), "{mode}", scpi)
}

func (c *ChromaMulti) SetVoltageSlew(ch int, rate float64) error {
	return c.run(Single("set voltage slew", "SOUR{ch}:VOLT:SLEW {value}"), "{ch}", strconv.Itoa(ch), "{value}", num(rate))
}

func (c *ChromaMulti) SetCurrentSlew(ch int, rate float64) error {
	return c.run(Single("set current slew", "SOUR{ch}:CURR:SLEW {value}"), "{ch}", strconv.Itoa(ch), "{value}", num(rate))
}
