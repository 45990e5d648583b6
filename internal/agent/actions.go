package agent

import (
	"errors"
	"fmt"
	"strings"

	"labrelay/internal/domain"
	"labrelay/internal/instrument"
)

var (
	// ErrUnsupportedCategory rejects an instrument_type no driver family serves
	ErrUnsupportedCategory = errors.New("unsupported instrument type")
	// ErrUnknownAction rejects an action name not in the category's table
	ErrUnknownAction = errors.New("unknown action")
	// ErrMissingArgument rejects a request lacking a value the action needs
	ErrMissingArgument = errors.New("missing argument")
	// ErrDriverMismatch means a resolved driver lacks the category's interface
	ErrDriverMismatch = errors.New("driver does not implement category")
)

type runFunc func(inst instrument.Instrument, req domain.CommandRequest) (string, any, error)

// action is one entry of a category's action table. check runs before any
// connection is made.
type action struct {
	check func(req domain.CommandRequest) error
	run   runFunc
}

// as adapts a typed action body to the generic driver
func as[T any](f func(T, domain.CommandRequest) (string, any, error)) runFunc {
	return func(inst instrument.Instrument, req domain.CommandRequest) (string, any, error) {
		typed, ok := inst.(T)
		if !ok {
			return "", nil, fmt.Errorf("%w: %T", ErrDriverMismatch, inst)
		}
		return f(typed, req)
	}
}

func needValue(req domain.CommandRequest) error {
	if req.Value == nil {
		return fmt.Errorf("%w: %s needs a numeric value", ErrMissingArgument, req.Action)
	}
	return nil
}

func needChannels(req domain.CommandRequest) error {
	if len(req.Channels) == 0 {
		return fmt.Errorf("%w: %s needs a channel list", ErrMissingArgument, req.Action)
	}
	return nil
}

func needChannel(req domain.CommandRequest) error {
	if req.Channel <= 0 {
		return fmt.Errorf("%w: %s needs a channel", ErrMissingArgument, req.Action)
	}
	return nil
}

func needLoadMode(req domain.CommandRequest) error {
	if _, ok := instrument.ParseLoadMode(req.Mode); !ok {
		return fmt.Errorf("%w: mode %q (want CC, CV, CR or CP)", instrument.ErrInvalidArgument, req.Mode)
	}
	return nil
}

func needLimit(req domain.CommandRequest) error {
	if err := needChannel(req); err != nil {
		return err
	}
	if req.High == nil && req.Low == nil {
		return fmt.Errorf("%w: %s needs a high or low limit", ErrMissingArgument, req.Action)
	}
	return nil
}

func needTracking(req domain.CommandRequest) error {
	if _, ok := instrument.ParseTrackingMode(req.Mode); !ok {
		return fmt.Errorf("%w: tracking mode %q (want independent, parallel, series or tracking)", instrument.ErrInvalidArgument, req.Mode)
	}
	return nil
}

func needEnabled(req domain.CommandRequest) error {
	if req.Enabled == nil {
		return fmt.Errorf("%w: %s needs enabled", ErrMissingArgument, req.Action)
	}
	return nil
}

func needCoupling(req domain.CommandRequest) error {
	if !instrument.ValidCoupling(req.Mode) {
		return fmt.Errorf("%w: coupling %q (want AC, DC or DCREJECT)", instrument.ErrInvalidArgument, req.Mode)
	}
	return nil
}

func needTrigger(req domain.CommandRequest) error {
	if req.Source == "" && req.Mode == "" && req.Slope == "" && req.Value == nil {
		return fmt.Errorf("%w: %s needs a source, mode, slope or level", ErrMissingArgument, req.Action)
	}
	if strings.ContainsAny(req.Source, "\"\r\n; ") {
		return fmt.Errorf("%w: trigger source %q", instrument.ErrInvalidArgument, req.Source)
	}
	if req.Mode != "" {
		if _, ok := instrument.ParseTriggerMode(req.Mode); !ok {
			return fmt.Errorf("%w: trigger mode %q (want AUTO or NORM)", instrument.ErrInvalidArgument, req.Mode)
		}
	}
	if req.Slope != "" {
		if _, ok := instrument.ParseTriggerSlope(req.Slope); !ok {
			return fmt.Errorf("%w: trigger slope %q (want RISE, FALL or EITHER)", instrument.ErrInvalidArgument, req.Slope)
		}
	}
	return nil
}

func needAcquisition(req domain.CommandRequest) error {
	if _, ok := instrument.ParseAcquisitionMode(req.Mode); !ok {
		return fmt.Errorf("%w: acquisition mode %q", instrument.ErrInvalidArgument, req.Mode)
	}
	if req.Count < 0 {
		return fmt.Errorf("%w: average count %d", instrument.ErrInvalidArgument, req.Count)
	}
	return nil
}

// quotable rejects text that would break out of a quoted SCPI string
func quotable(what, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s", ErrMissingArgument, what)
	}
	if strings.ContainsAny(v, "\"\r\n;") {
		return fmt.Errorf("%w: %s %q", instrument.ErrInvalidArgument, what, v)
	}
	return nil
}

func needPath(req domain.CommandRequest) error { return quotable("path", req.Path) }

func needExpression(req domain.CommandRequest) error { return quotable("expression", req.Expression) }

func needWaveform(req domain.CommandRequest) error {
	if _, ok := instrument.ParseWaveshape(req.Mode); !ok {
		return fmt.Errorf("%w: waveform shape %q", instrument.ErrInvalidArgument, req.Mode)
	}
	if req.Value == nil || req.Amplitude == nil {
		return fmt.Errorf("%w: %s needs value (frequency) and amplitude", ErrMissingArgument, req.Action)
	}
	return nil
}

func countMissing(readings map[string]domain.Reading) int {
	n := 0
	for _, rd := range readings {
		if !rd.Available {
			n++
		}
	}
	return n
}

func readMessage(verb string, readings map[string]domain.Reading) string {
	msg := fmt.Sprintf("%s %d channel(s)", verb, len(readings))
	if missing := countMissing(readings); missing > 0 {
		msg += fmt.Sprintf(", %d unavailable", missing)
	}
	return msg
}

// output picks the addressed output, defaulting to the first
func output(req domain.CommandRequest) int {
	if req.Channel > 0 {
		return req.Channel
	}
	return 1
}

var actionTables = map[domain.Category]map[string]action{
	domain.CategoryDCSource:        dcSourceActions,
	domain.CategoryELoad:           eloadActions,
	domain.CategoryDAQ:             daqActions,
	domain.CategoryOscilloscope:    scopeActions,
	domain.CategorySignalGenerator: siggenActions,
}

// lookup validates category, action and arguments without touching a bus
func lookup(req domain.CommandRequest) (domain.Category, action, error) {
	if strings.TrimSpace(req.Address) == "" {
		return "", action{}, fmt.Errorf("%w: address", ErrMissingArgument)
	}
	cat, ok := domain.ParseCategory(req.Category)
	if !ok {
		return "", action{}, fmt.Errorf("%w: %q", ErrUnsupportedCategory, req.Category)
	}
	act, ok := actionTables[cat][strings.ToLower(strings.TrimSpace(req.Action))]
	if !ok {
		return "", action{}, fmt.Errorf("%w: %q for %s", ErrUnknownAction, req.Action, cat)
	}
	if act.check != nil {
		if err := act.check(req); err != nil {
			return "", action{}, err
		}
	}
	return cat, act, nil
}

// Actions lists the accepted action names for a category
func Actions(c domain.Category) []string {
	names := make([]string, 0, len(actionTables[c]))
	for name := range actionTables[c] {
		names = append(names, name)
	}
	return names
}

var dcSourceActions = map[string]action{
	"on": {run: as(func(s instrument.DCSource, r domain.CommandRequest) (string, any, error) {
		return "Output ON", nil, s.OutputOn(r.Channel)
	})},
	"off": {run: as(func(s instrument.DCSource, r domain.CommandRequest) (string, any, error) {
		return "Output OFF", nil, s.OutputOff(r.Channel)
	})},
	"set_voltage": {check: needValue, run: as(func(s instrument.DCSource, r domain.CommandRequest) (string, any, error) {
		return fmt.Sprintf("Voltage set to %gV", *r.Value), nil, s.SetVoltage(output(r), *r.Value)
	})},
	"set_current": {check: needValue, run: as(func(s instrument.DCSource, r domain.CommandRequest) (string, any, error) {
		return fmt.Sprintf("Current set to %gA", *r.Value), nil, s.SetCurrent(output(r), *r.Value)
	})},
	"set_ovp": {check: needValue, run: as(func(s instrument.DCSource, r domain.CommandRequest) (string, any, error) {
		return fmt.Sprintf("OVP set to %gV", *r.Value), nil, s.SetOVP(output(r), *r.Value)
	})},
	"set_ocp": {check: needValue, run: as(func(s instrument.DCSource, r domain.CommandRequest) (string, any, error) {
		return fmt.Sprintf("OCP set to %gA", *r.Value), nil, s.SetOCP(output(r), *r.Value)
	})},
	"clear_protection": {run: as(func(s instrument.DCSource, r domain.CommandRequest) (string, any, error) {
		return "Protection cleared", nil, s.ClearProtection(r.Channel)
	})},
	"measure": {run: as(func(s instrument.DCSource, r domain.CommandRequest) (string, any, error) {
		ch := output(r)
		return "Measured", map[string]domain.Measurement{
			"voltage": domain.Measurement(s.MeasureVoltage(ch)),
			"current": domain.Measurement(s.MeasureCurrent(ch)),
		}, nil
	})},
	"status": {run: as(func(s instrument.DCSource, r domain.CommandRequest) (string, any, error) {
		st := instrument.SnapshotSource(s, output(r))
		return "Output " + st.Output, st, nil
	})},
	"protection_status": {run: as(func(s instrument.DCSource, r domain.CommandRequest) (string, any, error) {
		ch := output(r)
		ps, err := s.ProtectionStatus(ch)
		if err != nil {
			return "", nil, err
		}
		return "Protection status read", map[string]any{
			"tripped": ps,
			"ovp":     domain.Measurement(s.OVPSetting(ch)),
			"ocp":     domain.Measurement(s.OCPSetting(ch)),
		}, nil
	})},
	"set_tracking": {check: needTracking, run: as(func(s instrument.DCSource, r domain.CommandRequest) (string, any, error) {
		mode, _ := instrument.ParseTrackingMode(r.Mode)
		return "Tracking set to " + string(mode), nil, s.SetTracking(mode)
	})},
	"set_voltage_slew": {check: needValue, run: as(func(s instrument.DCSource, r domain.CommandRequest) (string, any, error) {
		return fmt.Sprintf("Voltage slew set to %gV/ms", *r.Value), nil, s.SetVoltageSlew(output(r), *r.Value)
	})},
	"set_current_slew": {check: needValue, run: as(func(s instrument.DCSource, r domain.CommandRequest) (string, any, error) {
		return fmt.Sprintf("Current slew set to %gA/ms", *r.Value), nil, s.SetCurrentSlew(output(r), *r.Value)
	})},
}

var eloadActions = map[string]action{
	"on": {run: as(func(l instrument.ELoad, _ domain.CommandRequest) (string, any, error) {
		return "Load ON", nil, l.LoadOn()
	})},
	"off": {run: as(func(l instrument.ELoad, _ domain.CommandRequest) (string, any, error) {
		return "Load OFF", nil, l.LoadOff()
	})},
	"set_mode": {check: needLoadMode, run: as(func(l instrument.ELoad, r domain.CommandRequest) (string, any, error) {
		mode, _ := instrument.ParseLoadMode(r.Mode)
		return "Mode set to " + string(mode), nil, l.SetMode(mode)
	})},
	"set_current": {check: needValue, run: as(func(l instrument.ELoad, r domain.CommandRequest) (string, any, error) {
		return fmt.Sprintf("Current set to %gA", *r.Value), nil, l.SetCurrent(*r.Value)
	})},
	"set_voltage": {check: needValue, run: as(func(l instrument.ELoad, r domain.CommandRequest) (string, any, error) {
		return fmt.Sprintf("Voltage set to %gV", *r.Value), nil, l.SetVoltage(*r.Value)
	})},
	"measure": {run: as(func(l instrument.ELoad, _ domain.CommandRequest) (string, any, error) {
		return "Measured", map[string]domain.Measurement{
			"voltage": domain.Measurement(l.MeasureVoltage()),
			"current": domain.Measurement(l.MeasureCurrent()),
			"power":   domain.Measurement(l.MeasurePower()),
		}, nil
	})},
	"status": {run: as(func(l instrument.ELoad, _ domain.CommandRequest) (string, any, error) {
		st := instrument.SnapshotLoad(l)
		return "Load " + st.Load, st, nil
	})},
}

var daqActions = map[string]action{
	"read": {check: needChannels, run: as(func(d instrument.DAQ, r domain.CommandRequest) (string, any, error) {
		readings := d.ReadChannels(r.Channels)
		return readMessage("Read", readings), readings, nil
	})},
	"configure": {check: needChannels, run: as(func(d instrument.DAQ, r domain.CommandRequest) (string, any, error) {
		list := make([]int, 0, len(r.Channels))
		for _, c := range r.Channels {
			if err := d.ConfigureChannel(c.Channel, c.Unit, nil, nil); err != nil {
				return "", nil, err
			}
			list = append(list, c.Channel)
		}
		if err := d.SetScanList(list); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Configured %d channel(s)", len(list)), nil, nil
	})},
	"alarm_status": {check: needChannel, run: as(func(d instrument.DAQ, r domain.CommandRequest) (string, any, error) {
		st, err := d.AlarmStatus(r.Channel)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Channel %d alarm high=%t low=%t", r.Channel, st.High, st.Low), st, nil
	})},
	"set_alarm": {check: needLimit, run: as(func(d instrument.DAQ, r domain.CommandRequest) (string, any, error) {
		return fmt.Sprintf("Channel %d alarm limits set", r.Channel), nil, d.SetAlarm(r.Channel, r.High, r.Low)
	})},
	"start_scan": {run: as(func(d instrument.DAQ, _ domain.CommandRequest) (string, any, error) {
		return "Scan started", nil, d.StartScan()
	})},
	"stop_scan": {run: as(func(d instrument.DAQ, _ domain.CommandRequest) (string, any, error) {
		return "Scan stopped", nil, d.StopScan()
	})},
	"read_scan": {run: as(func(d instrument.DAQ, _ domain.CommandRequest) (string, any, error) {
		readings, err := d.ReadScan()
		if err != nil {
			return "", nil, err
		}
		return readMessage("Scanned", readings), readings, nil
	})},
	"status": {run: as(func(d instrument.DAQ, _ domain.CommandRequest) (string, any, error) {
		id := d.Identity()
		return id.DisplayName() + " ready", map[string]any{"identity": id, "scheme": d.Scheme().Name()}, nil
	})},
}

var scopeActions = map[string]action{
	"autoset": {run: as(func(s instrument.Oscilloscope, _ domain.CommandRequest) (string, any, error) {
		return "Autoset started", nil, s.Autoset()
	})},
	"run": {run: as(func(s instrument.Oscilloscope, _ domain.CommandRequest) (string, any, error) {
		return "Acquisition running", nil, s.Run()
	})},
	"stop": {run: as(func(s instrument.Oscilloscope, _ domain.CommandRequest) (string, any, error) {
		return "Acquisition stopped", nil, s.Stop()
	})},
	"single": {run: as(func(s instrument.Oscilloscope, _ domain.CommandRequest) (string, any, error) {
		return "Single acquisition armed", nil, s.Single()
	})},
	"measure": {run: as(func(s instrument.Oscilloscope, r domain.CommandRequest) (string, any, error) {
		kind := strings.ToUpper(strings.TrimSpace(r.Mode))
		if kind == "" {
			kind = "FREQUENCY"
		}
		ch := output(r)
		v := domain.Measurement(s.Measure(ch, kind))
		return fmt.Sprintf("CH%d %s", ch, kind), map[string]any{"type": kind, "channel": ch, "value": v}, nil
	})},
	"set_timebase": {check: needValue, run: as(func(s instrument.Oscilloscope, r domain.CommandRequest) (string, any, error) {
		return fmt.Sprintf("Timebase set to %gs/div", *r.Value), nil, s.SetTimebaseScale(*r.Value)
	})},
	"set_scale": {check: needValue, run: as(func(s instrument.Oscilloscope, r domain.CommandRequest) (string, any, error) {
		ch := output(r)
		return fmt.Sprintf("CH%d scale set to %gV/div", ch, *r.Value), nil, s.SetChannelScale(ch, *r.Value)
	})},
	"set_display": {check: needEnabled, run: as(func(s instrument.Oscilloscope, r domain.CommandRequest) (string, any, error) {
		ch := output(r)
		state := "hidden"
		if *r.Enabled {
			state = "shown"
		}
		return fmt.Sprintf("CH%d %s", ch, state), nil, s.SetChannelDisplay(ch, *r.Enabled)
	})},
	"set_offset": {check: needValue, run: as(func(s instrument.Oscilloscope, r domain.CommandRequest) (string, any, error) {
		ch := output(r)
		return fmt.Sprintf("CH%d offset set to %gV", ch, *r.Value), nil, s.SetChannelOffset(ch, *r.Value)
	})},
	"set_coupling": {check: needCoupling, run: as(func(s instrument.Oscilloscope, r domain.CommandRequest) (string, any, error) {
		ch := output(r)
		return fmt.Sprintf("CH%d coupling set to %s", ch, strings.ToUpper(r.Mode)), nil, s.SetChannelCoupling(ch, r.Mode)
	})},
	"set_position": {check: needValue, run: as(func(s instrument.Oscilloscope, r domain.CommandRequest) (string, any, error) {
		return fmt.Sprintf("Timebase position set to %g%%", *r.Value), nil, s.SetTimebasePosition(*r.Value)
	})},
	"set_trigger": {check: needTrigger, run: as(func(s instrument.Oscilloscope, r domain.CommandRequest) (string, any, error) {
		if r.Source != "" {
			if err := s.SetTriggerSource(r.Source); err != nil {
				return "", nil, err
			}
		}
		if r.Mode != "" {
			mode, _ := instrument.ParseTriggerMode(r.Mode)
			if err := s.SetTriggerMode(mode); err != nil {
				return "", nil, err
			}
		}
		if r.Slope != "" {
			slope, _ := instrument.ParseTriggerSlope(r.Slope)
			if err := s.SetTriggerSlope(slope); err != nil {
				return "", nil, err
			}
		}
		if r.Value != nil {
			if err := s.SetTriggerLevel(*r.Value); err != nil {
				return "", nil, err
			}
		}
		return "Trigger configured", nil, nil
	})},
	"set_acquisition": {check: needAcquisition, run: as(func(s instrument.Oscilloscope, r domain.CommandRequest) (string, any, error) {
		mode, _ := instrument.ParseAcquisitionMode(r.Mode)
		return "Acquisition mode set to " + string(mode), nil, s.SetAcquisitionMode(mode, r.Count)
	})},
	"waveform": {run: as(func(s instrument.Oscilloscope, r domain.CommandRequest) (string, any, error) {
		wf, err := s.Waveform(output(r))
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("CH%d waveform, %d point(s)", wf.Channel, len(wf.Volts)), wf, nil
	})},
	"save_waveform": {check: needPath, run: as(func(s instrument.Oscilloscope, r domain.CommandRequest) (string, any, error) {
		channels := []int{output(r)}
		if len(r.Channels) > 0 {
			channels = channels[:0]
			for _, c := range r.Channels {
				channels = append(channels, c.Channel)
			}
		}
		return "Waveform saved to " + r.Path, nil, s.SaveWaveform(r.Path, channels)
	})},
	"screenshot": {check: needPath, run: as(func(s instrument.Oscilloscope, r domain.CommandRequest) (string, any, error) {
		return "Screenshot saved to " + r.Path, nil, s.SaveScreenshot(r.Path)
	})},
	"set_math": {check: needExpression, run: as(func(s instrument.Oscilloscope, r domain.CommandRequest) (string, any, error) {
		return "Math set to " + r.Expression, nil, s.SetMath(r.Expression)
	})},
	"clear": {run: as(func(s instrument.Oscilloscope, _ domain.CommandRequest) (string, any, error) {
		return "Display cleared", nil, s.Clear()
	})},
	"status": {run: as(func(s instrument.Oscilloscope, _ domain.CommandRequest) (string, any, error) {
		id := s.Identity()
		triggered, err := s.Triggered()
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s triggered=%t", id.DisplayName(), triggered), map[string]any{"identity": id, "triggered": triggered}, nil
	})},
}

var siggenActions = map[string]action{
	"on": {run: as(func(g instrument.SignalGenerator, _ domain.CommandRequest) (string, any, error) {
		return "Output ON", nil, g.OutputOn()
	})},
	"off": {run: as(func(g instrument.SignalGenerator, _ domain.CommandRequest) (string, any, error) {
		return "Output OFF", nil, g.OutputOff()
	})},
	"set_frequency": {check: needValue, run: as(func(g instrument.SignalGenerator, r domain.CommandRequest) (string, any, error) {
		return fmt.Sprintf("Frequency set to %gHz", *r.Value), nil, g.SetFrequency(*r.Value)
	})},
	"set_amplitude": {check: needValue, run: as(func(g instrument.SignalGenerator, r domain.CommandRequest) (string, any, error) {
		return fmt.Sprintf("Amplitude set to %gVpp", *r.Value), nil, g.SetAmplitude(*r.Value)
	})},
	"set_waveform": {check: needWaveform, run: as(func(g instrument.SignalGenerator, r domain.CommandRequest) (string, any, error) {
		shape, _ := instrument.ParseWaveshape(r.Mode)
		return fmt.Sprintf("Waveform %s %gHz %gVpp", shape, *r.Value, *r.Amplitude), nil,
			g.SetWaveform(shape, *r.Value, *r.Amplitude)
	})},
	"set_offset": {check: needValue, run: as(func(g instrument.SignalGenerator, r domain.CommandRequest) (string, any, error) {
		return fmt.Sprintf("Offset set to %gV", *r.Value), nil, g.SetOffset(*r.Value)
	})},
	"status": {run: as(func(g instrument.SignalGenerator, _ domain.CommandRequest) (string, any, error) {
		id := g.Identity()
		return id.DisplayName() + " ready", map[string]any{"identity": id}, nil
	})},
}
