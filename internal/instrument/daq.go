package instrument

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"labrelay/internal/domain"
	"labrelay/internal/transport"
)

// AlarmStatus reports latched limit alarms on a DAQ channel
type AlarmStatus struct {
	High bool `json:"high"`
	Low  bool `json:"low"`
}

// DAQ is a switch/measure unit with numbered input channels
type DAQ interface {
	Instrument
	Scheme() ChannelScheme
	ConfigureChannel(ch int, function string, rng, resolution *float64) error
	SetScanList(channels []int) error
	StartScan() error
	StopScan() error
	ReadChannel(ch int, function string) float64
	ReadChannels(reqs []domain.ChannelRequest) map[string]domain.Reading
	ReadScan() (map[string]domain.Reading, error)
	AlarmStatus(ch int) (AlarmStatus, error)
	SetAlarm(ch int, high, low *float64) error
}

// MeasureFunction maps short unit names to SCPI measurement functions.
// Anything unrecognized is passed through upper-cased.
func MeasureFunction(unit string) string {
	switch u := strings.ToUpper(strings.TrimSpace(unit)); u {
	case "", "V", "VOLT", "VDC":
		return "VOLT:DC"
	case "VAC":
		return "VOLT:AC"
	case "A", "CURR", "IDC":
		return "CURR:DC"
	case "IAC":
		return "CURR:AC"
	case "C", "TEMP":
		return "TEMP"
	case "OHM", "RES":
		return "RES"
	case "FRES":
		return "FRES"
	case "HZ", "FREQ":
		return "FREQ"
	case "PER":
		return "PER"
	default:
		return u
	}
}

// HP34970A drives the HP/Agilent 34970A data acquisition mainframe
type HP34970A struct {
	Base
	scheme ChannelScheme
}

func NewHP34970A(conn transport.Conn, id domain.DeviceIdentity, scheme ChannelScheme) *HP34970A {
	if scheme == nil {
		scheme = SlotCoded{}
	}
	return &HP34970A{Base: NewBase(conn, id), scheme: scheme}
}

func (d *HP34970A) Scheme() ChannelScheme { return d.scheme }

func (d *HP34970A) ConfigureChannel(ch int, function string, rng, resolution *float64) error {
	label, err := d.scheme.Encode(ch)
	if err != nil {
		return err
	}

	cmd := "CONF:" + MeasureFunction(function) + " "
	if rng != nil {
		cmd += num(*rng) + ","
		if resolution != nil {
			cmd += num(*resolution) + ","
		}
	}
	cmd += "(@" + label + ")"
	return d.run(Single("configure channel", cmd))
}

func (d *HP34970A) SetScanList(channels []int) error {
	list, err := EncodeList(d.scheme, channels)
	if err != nil {
		return err
	}
	return d.run(Fallback{Action: "set scan list", Commands: []string{"ROUTE:SCAN (@{list})", "ROUT:SCAN (@{list})"}}, "{list}", list)
}

func (d *HP34970A) StartScan() error { return d.run(Single("start scan", "INIT")) }

func (d *HP34970A) StopScan() error { return d.run(Single("stop scan", "ABOR")) }

// ReadChannel measures one channel; NaN when unreadable or the channel is invalid
func (d *HP34970A) ReadChannel(ch int, function string) float64 {
	label, err := d.scheme.Encode(ch)
	if err != nil {
		return math.NaN()
	}
	return d.float(fmt.Sprintf("MEAS:%s? (@%s)", MeasureFunction(function), label))
}

// ReadChannels reads each request independently, keyed by the requested channel number
func (d *HP34970A) ReadChannels(reqs []domain.ChannelRequest) map[string]domain.Reading {
	out := make(map[string]domain.Reading, len(reqs))
	for _, r := range reqs {
		out[strconv.Itoa(r.Channel)] = domain.NewReading(r.Channel, r.Unit, d.ReadChannel(r.Channel, r.Unit))
	}
	return out
}

// ReadScan triggers one sweep of the configured scan list and pairs readings with channels
func (d *HP34970A) ReadScan() (map[string]domain.Reading, error) {
	if err := d.StartScan(); err != nil {
		return nil, err
	}
	if _, err := d.conn.Query("*OPC?"); err != nil {
		return nil, fmt.Errorf("wait for scan: %w", err)
	}

	data, err := d.conn.Query("FETCH?")
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	list, err := d.conn.Query("ROUTE:SCAN?")
	if err != nil {
		return nil, fmt.Errorf("scan list: %w", err)
	}

	labels := parseChannelList(list)
	values := strings.Split(strings.TrimSpace(data), ",")
	out := make(map[string]domain.Reading, len(labels))
	for i, label := range labels {
		v := math.NaN()
		if i < len(values) {
			if f, err := strconv.ParseFloat(strings.TrimSpace(values[i]), 64); err == nil && math.Abs(f) < overload {
				v = f
			}
		}
		key := label
		n, err := d.scheme.Decode(label)
		if err == nil {
			key = strconv.Itoa(n)
		}
		out[key] = domain.NewReading(n, "", v)
	}
	return out, nil
}

func (d *HP34970A) AlarmStatus(ch int) (AlarmStatus, error) {
	label, err := d.scheme.Encode(ch)
	if err != nil {
		return AlarmStatus{}, err
	}
	bits, err := queryInt(d.conn, "STAT:ALARM:EVEN? (@"+label+")")
	if err != nil {
		return AlarmStatus{}, err
	}
	return AlarmStatus{High: bits&0x01 != 0, Low: bits&0x02 != 0}, nil
}

// SetAlarm sets and enables the given limits; nil leaves a limit untouched
func (d *HP34970A) SetAlarm(ch int, high, low *float64) error {
	label, err := d.scheme.Encode(ch)
	if err != nil {
		return err
	}
	at := ",(@" + label + ")"
	if high != nil {
		if err := d.run(Single("set high limit", "CALC:LIM:UPP "+num(*high)+at)); err != nil {
			return err
		}
		if err := d.run(Single("enable high limit", "CALC:LIM:UPP:STAT ON"+at)); err != nil {
			return err
		}
	}
	if low != nil {
		if err := d.run(Single("set low limit", "CALC:LIM:LOW "+num(*low)+at)); err != nil {
			return err
		}
		if err := d.run(Single("enable low limit", "CALC:LIM:LOW:STAT ON"+at)); err != nil {
			return err
		}
	}
	return nil
}

// parseChannelList accepts "(@1001,1002)" with or without a "#2nn" block header.
func parseChannelList(reply string) []string {
	s := strings.TrimSpace(reply)
	if i := strings.Index(s, "(@"); i >= 0 {
		s = s[i+2:]
	}
	s = strings.TrimSuffix(s, ")")
	if s == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
