package instrument

import (
	"context"
	"regexp"
	"strconv"

	"labrelay/internal/domain"
	"labrelay/internal/transport"
)

// Envelope is the safe operating area of a source
type Envelope struct {
	Voltage Range `json:"voltage"`
	Current Range `json:"current"`
}

// DefaultChromaEnvelope applies when the model string carries no rating
var DefaultChromaEnvelope = Envelope{Voltage: Range{Min: 0, Max: 120}, Current: Range{Min: 0, Max: 50}}

// 62000P model numbers end in "-<volts>-<amps>", e.g. 62012P-80-60
var chromaRating = regexp.MustCompile(`(?i)\b62\d{3}P-(\d+(?:\.\d+)?)-(\d+(?:\.\d+)?)`)

// ParseChromaEnvelope reads the rating encoded in a 62000P identity
func ParseChromaEnvelope(identity string) (Envelope, bool) {
	m := chromaRating.FindStringSubmatch(identity)
	if m == nil {
		return Envelope{}, false
	}
	v, errV := strconv.ParseFloat(m[1], 64)
	a, errA := strconv.ParseFloat(m[2], 64)
	if errV != nil || errA != nil || v <= 0 || a <= 0 {
		return Envelope{}, false
	}
	return Envelope{Voltage: Range{Min: 0, Max: v}, Current: Range{Min: 0, Max: a}}, true
}

var (
	chromaOutputOn  = Fallback{Action: "output on", Commands: []string{"CONFigure:OUTPut ON", "OUTP:STAT ON", "OUTP ON"}}
	chromaOutputOff = Fallback{Action: "output off", Commands: []string{"CONFigure:OUTPut OFF", "OUTP:STAT OFF", "OUTP OFF"}}
)

// Chroma62000P drives the single-output Chroma 62000P family
type Chroma62000P struct {
	Base
	envelope Envelope
}

func NewChroma62000P(conn transport.Conn, id domain.DeviceIdentity) *Chroma62000P {
	return &Chroma62000P{Base: NewBase(conn, id), envelope: DefaultChromaEnvelope}
}

// Connect derives the envelope from the identity's model rating
func (c *Chroma62000P) Connect(ctx context.Context) error {
	if env, ok := ParseChromaEnvelope(c.id.Raw); ok {
		c.envelope = env
	}
	return nil
}

func (c *Chroma62000P) Envelope() Envelope { return c.envelope }

func (c *Chroma62000P) Channels() int { return 1 }

func (c *Chroma62000P) VoltageRange(int) Range { return c.envelope.Voltage }

func (c *Chroma62000P) CurrentRange(int) Range { return c.envelope.Current }

func (c *Chroma62000P) SetVoltage(ch int, v float64) error {
	if err := checkChannel(ch, 1); err != nil {
		return err
	}
	if err := checkRange("voltage", "V", v, c.envelope.Voltage); err != nil {
		return err
	}
	return c.run(Single("set voltage", "SOUR:VOLT {value}"), "{value}", num(v))
}

func (c *Chroma62000P) SetCurrent(ch int, a float64) error {
	if err := checkChannel(ch, 1); err != nil {
		return err
	}
	if err := checkRange("current", "A", a, c.envelope.Current); err != nil {
		return err
	}
	return c.run(Single("set current", "SOUR:CURR {value}"), "{value}", num(a))
}

func (c *Chroma62000P) VoltageSetting(int) float64 { return c.float("SOUR:VOLT?") }
func (c *Chroma62000P) CurrentSetting(int) float64 { return c.float("SOUR:CURR?") }
func (c *Chroma62000P) MeasureVoltage(int) float64 { return c.float("MEAS:VOLT?") }
func (c *Chroma62000P) MeasureCurrent(int) float64 { return c.float("MEAS:CURR?") }

func (c *Chroma62000P) OutputOn(ch int) error {
	if err := checkChannel(ch, 1); err != nil {
		return err
	}
	return c.run(chromaOutputOn)
}

func (c *Chroma62000P) OutputOff(ch int) error {
	if err := checkChannel(ch, 1); err != nil {
		return err
	}
	return c.run(chromaOutputOff)
}

func (c *Chroma62000P) OutputState(int) (bool, error) {
	return queryBool(c.conn, "OUTP:STAT?")
}

func (c *Chroma62000P) SetOVP(ch int, v float64) error {
	if err := checkChannel(ch, 1); err != nil {
		return err
	}
	if err := checkNonNegative("ovp", "V", v); err != nil {
		return err
	}
	return c.run(Single("set ovp", "SOUR:VOLT:PROT {value}"), "{value}", num(v))
}

func (c *Chroma62000P) SetOCP(ch int, a float64) error {
	if err := checkChannel(ch, 1); err != nil {
		return err
	}
	if err := checkNonNegative("ocp", "A", a); err != nil {
		return err
	}
	return c.run(Single("set ocp", "SOUR:CURR:PROT {value}"), "{value}", num(a))
}

func (c *Chroma62000P) OVPSetting(int) float64 { return c.float("SOUR:VOLT:PROT?") }
func (c *Chroma62000P) OCPSetting(int) float64 { return c.float("SOUR:CURR:PROT?") }

func (c *Chroma62000P) ClearProtection(ch int) error {
	if err := checkChannel(ch, 1); err != nil {
		return err
	}
	return c.run(Single("clear protection", "OUTP:PROT:CLE"))
}

func (c *Chroma62000P) ProtectionStatus(int) (ProtectionStatus, error) {
	bits, err := queryInt(c.conn, "STAT:QUES:COND?")
	if err != nil {
		return ProtectionStatus{}, err
	}
	return protectionFromBits(bits), nil
}

func (c *Chroma62000P) SetTracking(mode TrackingMode) error {
	scpi, ok := trackingSCPI[mode]
	if !ok {
		return errUnknownTracking(mode)
	}
	return c.run(Single("set tracking", "OUTP:TRAC {mode}"), "{mode}", scpi)
}

func (c *Chroma62000P) SetVoltageSlew(ch int, rate float64) error {
	if err := checkChannel(ch, 1); err != nil {
		return err
	}
	return c.run(Single("set voltage slew", "SOUR:VOLT:SLEW {value}"), "{value}", num(rate))
}

func (c *Chroma62000P) SetCurrentSlew(ch int, rate float64) error {
	if err := checkChannel(ch, 1); err != nil {
		return err
	}
	return c.run(Single("set current slew", "SOUR:CURR:SLEW {value}"), "{value}", num(rate))
}
