package instrument

import (
	"fmt"
	"math"
	"strings"

	"labrelay/internal/domain"
)

// Range is a closed interval of allowed setpoints
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// ProtectionStatus mirrors the questionable-status condition bits
type ProtectionStatus struct {
	OVP bool `json:"ovp"`
	OCP bool `json:"ocp"`
	OTP bool `json:"otp"`
}

func protectionFromBits(bits int) ProtectionStatus {
	return ProtectionStatus{OVP: bits&0x01 != 0, OCP: bits&0x02 != 0, OTP: bits&0x04 != 0}
}

// TrackingMode couples the outputs of a multi-output source
type TrackingMode string

const (
	TrackingIndependent TrackingMode = "independent"
	TrackingParallel    TrackingMode = "parallel"
	TrackingSeries      TrackingMode = "series"
	TrackingTrack       TrackingMode = "tracking"
)

var trackingSCPI = map[TrackingMode]string{
	TrackingIndependent: "NONE",
	TrackingParallel:    "PARA",
	TrackingSeries:      "SER",
	TrackingTrack:       "TRAC",
}

// ParseTrackingMode accepts the mode names above, case-insensitively
func ParseTrackingMode(s string) (TrackingMode, bool) {
	m := TrackingMode(strings.ToLower(strings.TrimSpace(s)))
	_, ok := trackingSCPI[m]
	return m, ok
}

// DCSource is a programmable DC power supply. Channel 0 addresses every
// output where an operation allows it (output on/off, clear protection).
type DCSource interface {
	Instrument
	Channels() int
	VoltageRange(ch int) Range
	CurrentRange(ch int) Range
	SetVoltage(ch int, v float64) error
	SetCurrent(ch int, a float64) error
	VoltageSetting(ch int) float64
	CurrentSetting(ch int) float64
	MeasureVoltage(ch int) float64
	MeasureCurrent(ch int) float64
	OutputOn(ch int) error
	OutputOff(ch int) error
	OutputState(ch int) (bool, error)
	SetOVP(ch int, v float64) error
	SetOCP(ch int, a float64) error
	OVPSetting(ch int) float64
	OCPSetting(ch int) float64
	ClearProtection(ch int) error
	ProtectionStatus(ch int) (ProtectionStatus, error)
	SetTracking(mode TrackingMode) error
	SetVoltageSlew(ch int, rate float64) error
	SetCurrentSlew(ch int, rate float64) error
}

// SourceStatus is a point-in-time snapshot of one output
type SourceStatus struct {
	Channel        int                `json:"channel"`
	Output         string             `json:"output"`
	Voltage        domain.Measurement `json:"voltage"`
	Current        domain.Measurement `json:"current"`
	VoltageSetting domain.Measurement `json:"voltage_setting"`
	CurrentSetting domain.Measurement `json:"current_setting"`
}

// SnapshotSource collects a status snapshot; unreadable fields come back unavailable
func SnapshotSource(src DCSource, ch int) SourceStatus {
	st := SourceStatus{
		Channel:        ch,
		Output:         "UNKNOWN",
		Voltage:        domain.Measurement(src.MeasureVoltage(ch)),
		Current:        domain.Measurement(src.MeasureCurrent(ch)),
		VoltageSetting: domain.Measurement(src.VoltageSetting(ch)),
		CurrentSetting: domain.Measurement(src.CurrentSetting(ch)),
	}
	if on, err := src.OutputState(ch); err == nil {
		st.Output = "OFF"
		if on {
			st.Output = "ON"
		}
	}
	return st
}

func checkRange(quantity, unit string, v float64, r Range) error {
	if !r.Contains(v) {
		return &OutOfRangeError{Quantity: quantity, Value: v, Range: r, Unit: unit}
	}
	return nil
}

func checkNonNegative(quantity, unit string, v float64) error {
	if v < 0 {
		return &OutOfRangeError{Quantity: quantity, Value: v, Range: Range{Min: 0, Max: math.Inf(1)}, Unit: unit}
	}
	return nil
}

func checkChannel(ch, count int) error {
	if ch < 0 || ch > count {
		return fmt.Errorf("%w: channel %d (outputs 1..%d, 0 for all)", ErrInvalidArgument, ch, count)
	}
	return nil
}

func errUnknownTracking(mode TrackingMode) error {
	return &invalidValueError{what: "tracking mode", value: string(mode)}
}

// checkOutput is checkChannel without the "all outputs" form
func checkOutput(ch, count int) error {
	if ch < 1 || ch > count {
		return fmt.Errorf("%w: channel %d (outputs 1..%d)", ErrInvalidArgument, ch, count)
	}
	return nil
}
