package domain

import (
	"encoding/json"
	"math"
	"strconv"
)

// ChannelRequest names one DAQ channel and the measurement function to read
type ChannelRequest struct {
	Channel int    `json:"channel"`
	Unit    string `json:"unit,omitempty"`
}

// CommandRequest is a single instrument action addressed to an agent
type CommandRequest struct {
	Address  string           `json:"address"`
	Category string           `json:"instrument_type"`
	Action   string           `json:"action"`
	Value    *float64         `json:"value,omitempty"`
	Channel  int              `json:"channel,omitempty"`
	Channels []ChannelRequest `json:"channels,omitempty"`
	Mode     string           `json:"mode,omitempty"`

	// High and Low are DAQ alarm limits
	High *float64 `json:"high,omitempty"`
	Low  *float64 `json:"low,omitempty"`
	// Amplitude goes with Value as frequency when setting a generator waveform
	Amplitude *float64 `json:"amplitude,omitempty"`
	// Source and Slope configure a scope's edge trigger
	Source string `json:"source,omitempty"`
	Slope  string `json:"slope,omitempty"`
	// Enabled switches a scope channel's display
	Enabled *bool `json:"enabled,omitempty"`
	// Count is the average count for averaging acquisition
	Count int `json:"count,omitempty"`
	// Path is a file path on the instrument's own storage
	Path       string `json:"path,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// CommandResult is the outcome of a command; Message is always set
type CommandResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

// Succeeded builds a successful result
func Succeeded(message string, payload any) CommandResult {
	return CommandResult{Success: true, Message: message, Payload: payload}
}

// Failed builds a failed result from err
func Failed(err error) CommandResult {
	return CommandResult{Success: false, Message: err.Error()}
}

// Measurement is a reading where NaN means the instrument gave no usable value.
// It encodes to JSON null since JSON has no NaN.
type Measurement float64

// Unavailable is the sentinel reading
func Unavailable() Measurement { return Measurement(math.NaN()) }

// Available reports whether the reading carries a value
func (m Measurement) Available() bool {
	return !math.IsNaN(float64(m)) && !math.IsInf(float64(m), 0)
}

// MarshalJSON implements json.Marshaler
func (m Measurement) MarshalJSON() ([]byte, error) {
	if !m.Available() {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(m), 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Measurement) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Unavailable()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*m = Measurement(f)
	return nil
}

// Reading is one channel's result within a multi-channel read
type Reading struct {
	Channel   int         `json:"channel"`
	Unit      string      `json:"unit,omitempty"`
	Value     Measurement `json:"value"`
	Available bool        `json:"available"`
}

// NewReading marks the reading available when v carries a value
func NewReading(channel int, unit string, v float64) Reading {
	m := Measurement(v)
	return Reading{Channel: channel, Unit: unit, Value: m, Available: m.Available()}
}
