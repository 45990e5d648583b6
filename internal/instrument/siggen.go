package instrument

import (
	"strings"

	"labrelay/internal/domain"
	"labrelay/internal/transport"
)

type Waveshape string

const (
	ShapeSine   Waveshape = "SIN"
	ShapeSquare Waveshape = "SQU"
	ShapeRamp   Waveshape = "RAMP"
	ShapePulse  Waveshape = "PULS"
	ShapeNoise  Waveshape = "PRN"
	ShapeDC     Waveshape = "DC"
)

var shapeAliases = map[string]Waveshape{
	"SIN": ShapeSine, "SINE": ShapeSine, "SINUSOID": ShapeSine,
	"SQU": ShapeSquare, "SQUARE": ShapeSquare,
	"RAMP": ShapeRamp, "TRIANGLE": ShapeRamp,
	"PULS": ShapePulse, "PULSE": ShapePulse,
	"PRN": ShapeNoise, "NOISE": ShapeNoise,
	"DC": ShapeDC,
}

// ParseWaveshape accepts short SCPI names and their long forms
func ParseWaveshape(s string) (Waveshape, bool) {
	w, ok := shapeAliases[strings.ToUpper(strings.TrimSpace(s))]
	return w, ok
}

// SignalGenerator is an arbitrary/function generator
type SignalGenerator interface {
	Instrument
	SetWaveform(shape Waveshape, frequency, amplitude float64) error
	SetFrequency(hz float64) error
	SetAmplitude(vpp float64) error
	SetOffset(volts float64) error
	OutputOn() error
	OutputOff() error
}

var (
	afgShape     = Fallback{Action: "set shape", Commands: []string{"SOUR1:FUNC:SHAP {value}", "FUNC {value}"}}
	afgFrequency = Fallback{Action: "set frequency", Commands: []string{"SOUR1:FREQ:FIX {value}", "SOUR1:FREQ {value}", "FREQ {value}"}}
	afgAmplitude = Fallback{Action: "set amplitude", Commands: []string{"SOUR1:VOLT:LEV:IMM:AMPL {value}", "SOUR1:VOLT:AMPL {value}", "VOLT {value}"}}
	afgOffset    = Fallback{Action: "set offset", Commands: []string{"SOUR1:VOLT:LEV:IMM:OFFS {value}", "VOLT:OFFS {value}"}}
	afgOn        = Fallback{Action: "output on", Commands: []string{"OUTP1:STAT ON", "OUTP1 ON", "OUTP ON"}}
	afgOff       = Fallback{Action: "output off", Commands: []string{"OUTP1:STAT OFF", "OUTP1 OFF", "OUTP OFF"}}
)

// TekAFG3000 drives Tektronix AFG3000 series generators on output 1
type TekAFG3000 struct {
	Base
}

func NewTekAFG3000(conn transport.Conn, id domain.DeviceIdentity) *TekAFG3000 {
	return &TekAFG3000{Base: NewBase(conn, id)}
}

func (g *TekAFG3000) SetWaveform(shape Waveshape, frequency, amplitude float64) error {
	if err := g.run(afgShape, "{value}", string(shape)); err != nil {
		return err
	}
	if err := g.SetFrequency(frequency); err != nil {
		return err
	}
	return g.SetAmplitude(amplitude)
}

func (g *TekAFG3000) SetFrequency(hz float64) error {
	if err := checkNonNegative("frequency", "Hz", hz); err != nil {
		return err
	}
	return g.run(afgFrequency, "{value}", num(hz))
}

func (g *TekAFG3000) SetAmplitude(vpp float64) error {
	if err := checkNonNegative("amplitude", "Vpp", vpp); err != nil {
		return err
	}
	return g.run(afgAmplitude, "{value}", num(vpp))
}

func (g *TekAFG3000) SetOffset(v float64) error {
	return g.run(afgOffset, "{value}", num(v))
}

func (g *TekAFG3000) OutputOn() error  { return g.run(afgOn) }
func (g *TekAFG3000) OutputOff() error { return g.run(afgOff) }
