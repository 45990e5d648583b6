package instrument

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"labrelay/internal/domain"
	"labrelay/internal/transport"
)

type TriggerMode string

const (
	TriggerAuto   TriggerMode = "AUTO"
	TriggerNormal TriggerMode = "NORM"
)

type TriggerSlope string

const (
	SlopeRise   TriggerSlope = "RISE"
	SlopeFall   TriggerSlope = "FALL"
	SlopeEither TriggerSlope = "EITHER"
)

type AcquisitionMode string

const (
	AcquireSample  AcquisitionMode = "SAMPLE"
	AcquirePeak    AcquisitionMode = "PEAKDETECT"
	AcquireHiRes   AcquisitionMode = "HIRES"
	AcquireAverage AcquisitionMode = "AVERAGE"
)

// ParseTriggerMode accepts AUTO and NORM(AL) in any case
func ParseTriggerMode(s string) (TriggerMode, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AUTO":
		return TriggerAuto, true
	case "NORM", "NORMAL":
		return TriggerNormal, true
	}
	return "", false
}

// ParseTriggerSlope accepts RISE, FALL and EITHER plus their -ing forms
func ParseTriggerSlope(s string) (TriggerSlope, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RISE", "RISING":
		return SlopeRise, true
	case "FALL", "FALLING":
		return SlopeFall, true
	case "EITHER", "BOTH":
		return SlopeEither, true
	}
	return "", false
}

// ParseAcquisitionMode accepts the SCPI names and a few short forms
func ParseAcquisitionMode(s string) (AcquisitionMode, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SAMPLE", "SAMP":
		return AcquireSample, true
	case "PEAKDETECT", "PEAK":
		return AcquirePeak, true
	case "HIRES":
		return AcquireHiRes, true
	case "AVERAGE", "AVG":
		return AcquireAverage, true
	}
	return "", false
}

// ValidCoupling reports whether a scope channel accepts coupling
func ValidCoupling(coupling string) bool {
	switch strings.ToUpper(strings.TrimSpace(coupling)) {
	case "AC", "DC", "DCREJECT":
		return true
	}
	return false
}

// Waveform is a captured trace in physical units
type Waveform struct {
	Channel int       `json:"channel"`
	Time    []float64 `json:"time"`
	Volts   []float64 `json:"volts"`
}

// Oscilloscope is a digital storage scope
type Oscilloscope interface {
	Instrument
	Autoset() error
	SetChannelDisplay(ch int, on bool) error
	SetChannelScale(ch int, voltsPerDiv float64) error
	SetChannelOffset(ch int, volts float64) error
	SetChannelCoupling(ch int, coupling string) error
	SetTimebaseScale(secondsPerDiv float64) error
	SetTimebasePosition(percent float64) error
	SetTriggerSource(source string) error
	SetTriggerMode(mode TriggerMode) error
	SetTriggerLevel(volts float64) error
	SetTriggerSlope(slope TriggerSlope) error
	SetAcquisitionMode(mode AcquisitionMode, averages int) error
	Run() error
	Stop() error
	Single() error
	Triggered() (bool, error)
	Measure(ch int, kind string) float64
	Waveform(ch int) (Waveform, error)
	SaveWaveform(path string, channels []int) error
	SaveScreenshot(path string) error
	SetMath(expression string) error
	Clear() error
}

// TekMSO5 drives Tektronix 5 Series MSO scopes
type TekMSO5 struct {
	Base
}

func NewTekMSO5(conn transport.Conn, id domain.DeviceIdentity) *TekMSO5 {
	return &TekMSO5{Base: NewBase(conn, id)}
}

func (s *TekMSO5) w(action, cmd string) error { return s.run(Single(action, cmd)) }

func (s *TekMSO5) Autoset() error { return s.w("autoset", "AUTOSET EXECUTE") }

func (s *TekMSO5) SetChannelDisplay(ch int, on bool) error {
	state := "0"
	if on {
		state = "1"
	}
	return s.w("channel display", fmt.Sprintf("CH%d:DISPLAY %s", ch, state))
}

func (s *TekMSO5) SetChannelScale(ch int, v float64) error {
	return s.w("channel scale", fmt.Sprintf("CH%d:SCALE %s", ch, num(v)))
}

func (s *TekMSO5) SetChannelOffset(ch int, v float64) error {
	return s.w("channel offset", fmt.Sprintf("CH%d:OFFSET %s", ch, num(v)))
}

func (s *TekMSO5) SetChannelCoupling(ch int, coupling string) error {
	if !ValidCoupling(coupling) {
		return &invalidValueError{what: "coupling", value: coupling}
	}
	c := strings.ToUpper(strings.TrimSpace(coupling))
	return s.w("channel coupling", fmt.Sprintf("CH%d:COUPLING %s", ch, c))
}

func (s *TekMSO5) SetTimebaseScale(v float64) error {
	return s.w("timebase scale", "HORIZONTAL:SCALE "+num(v))
}

func (s *TekMSO5) SetTimebasePosition(pct float64) error {
	return s.w("timebase position", "HORIZONTAL:POSITION "+num(pct))
}

// SetTriggerSource accepts "1".."8" or a source name such as "CH2" or "LINE"
func (s *TekMSO5) SetTriggerSource(source string) error {
	src := strings.ToUpper(strings.TrimSpace(source))
	if _, err := strconv.Atoi(src); err == nil {
		src = "CH" + src
	}
	return s.w("trigger source", "TRIGGER:A:EDGE:SOURCE "+src)
}

func (s *TekMSO5) SetTriggerMode(mode TriggerMode) error {
	return s.w("trigger mode", "TRIGGER:A:MODE "+string(mode))
}

func (s *TekMSO5) SetTriggerLevel(v float64) error {
	return s.w("trigger level", "TRIGGER:A:LEVEL "+num(v))
}

func (s *TekMSO5) SetTriggerSlope(slope TriggerSlope) error {
	return s.w("trigger slope", "TRIGGER:A:EDGE:SLOPE "+string(slope))
}

func (s *TekMSO5) SetAcquisitionMode(mode AcquisitionMode, averages int) error {
	if err := s.w("acquisition mode", "ACQUIRE:MODE "+string(mode)); err != nil {
		return err
	}
	if mode == AcquireAverage && averages > 0 {
		return s.w("average count", "ACQUIRE:NUMAVG "+strconv.Itoa(averages))
	}
	return nil
}

func (s *TekMSO5) Run() error  { return s.w("run", "ACQUIRE:STATE RUN") }
func (s *TekMSO5) Stop() error { return s.w("stop", "ACQUIRE:STATE STOP") }

func (s *TekMSO5) Single() error {
	if err := s.w("single", "ACQUIRE:STOPAFTER SEQUENCE"); err != nil {
		return err
	}
	return s.w("single", "ACQUIRE:STATE RUN")
}

func (s *TekMSO5) Triggered() (bool, error) {
	reply, err := s.conn.Query("TRIGGER:STATE?")
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(strings.TrimSpace(reply)) {
	case "TRIGGER", "TRIGGERED", "1":
		return true, nil
	}
	return false, nil
}

// Measure runs an immediate measurement such as FREQUENCY, PK2PK or MEAN
func (s *TekMSO5) Measure(ch int, kind string) float64 {
	if err := s.conn.Write(fmt.Sprintf("MEASUREMENT:IMMED:SOURCE CH%d", ch)); err != nil {
		return math.NaN()
	}
	if err := s.conn.Write("MEASUREMENT:IMMED:TYPE " + strings.ToUpper(kind)); err != nil {
		return math.NaN()
	}
	return s.float("MEASUREMENT:IMMED:VALUE?")
}

// Waveform transfers a trace as ASCII and scales it with the preamble
func (s *TekMSO5) Waveform(ch int) (Waveform, error) {
	for _, cmd := range []string{
		fmt.Sprintf("DATA:SOURCE CH%d", ch),
		"DATA:ENCDG ASCII",
		"DATA:WIDTH 1",
		"DATA:START 1",
	} {
		if err := s.conn.Write(cmd); err != nil {
			return Waveform{}, err
		}
	}

	xinc := s.float("WFMOUTPRE:XINCR?")
	ymult := s.float("WFMOUTPRE:YMULT?")
	yoff := s.float("WFMOUTPRE:YOFF?")
	yzero := s.float("WFMOUTPRE:YZERO?")
	for _, v := range []float64{xinc, ymult, yoff, yzero} {
		if math.IsNaN(v) {
			return Waveform{}, fmt.Errorf("waveform preamble unavailable for CH%d", ch)
		}
	}

	curve, err := s.conn.Query("CURVE?")
	if err != nil {
		return Waveform{}, err
	}

	fields := strings.Split(strings.TrimSpace(curve), ",")
	wf := Waveform{Channel: ch, Time: make([]float64, 0, len(fields)), Volts: make([]float64, 0, len(fields))}
	for i, f := range fields {
		raw, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Waveform{}, fmt.Errorf("curve point %d: %w", i, err)
		}
		wf.Time = append(wf.Time, float64(i)*xinc)
		wf.Volts = append(wf.Volts, (raw-yoff)*ymult+yzero)
	}
	return wf, nil
}

// SaveWaveform writes a spreadsheet export to the scope's own storage
func (s *TekMSO5) SaveWaveform(path string, channels []int) error {
	if len(channels) == 0 {
		return &invalidValueError{what: "channel list", value: ""}
	}
	sources := make([]string, len(channels))
	for i, ch := range channels {
		sources[i] = "CH" + strconv.Itoa(ch)
	}
	if err := s.w("save waveform", "SAVE:WAVEFORM:FILEFORMAT SPREADSHEET"); err != nil {
		return err
	}
	if err := s.w("save waveform", "SAVE:WAVEFORM:SOURCELIST "+strings.Join(sources, ",")); err != nil {
		return err
	}
	return s.w("save waveform", `SAVE:WAVEFORM "`+path+`"`)
}

func (s *TekMSO5) SaveScreenshot(path string) error {
	if err := s.w("save screenshot", "SAVE:IMAGE:FILEFORMAT PNG"); err != nil {
		return err
	}
	return s.w("save screenshot", `SAVE:IMAGE "`+path+`"`)
}

func (s *TekMSO5) SetMath(expression string) error {
	if err := s.w("math", `MATH:DEFINE "`+expression+`"`); err != nil {
		return err
	}
	return s.w("math", "MATH:DISPLAY ON")
}

func (s *TekMSO5) Clear() error { return s.w("clear", "CLEAR") }
