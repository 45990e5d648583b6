package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labrelay/internal/domain"
	"labrelay/internal/instrument"
	"labrelay/internal/transport/transporttest"
)

const (
	scopeAddr = "TCPIP0::10.0.0.8::4000::SOCKET"
	genAddr   = "USB0::0x0699::0x0345::C010101::INSTR"
)

func enable(v bool) *bool { return &v }

func labBench() *transporttest.Provider {
	return transporttest.NewProvider(
		&transporttest.Instrument{Address: daqAddr, Identity: "HEWLETT-PACKARD,34970A,0,1.0"},
		&transporttest.Instrument{Address: sourceAddr, Identity: "Chroma,62012P,0,1.0"},
		&transporttest.Instrument{Address: scopeAddr, Identity: "TEKTRONIX,MSO54B,C012345,CF:91.1CT FV:1.30"},
		&transporttest.Instrument{Address: genAddr, Identity: "TEKTRONIX,AFG3101C,C010101,SCPI:99.0 FV:3.1.1"},
	)
}

func TestExecuteWrites(t *testing.T) {
	tests := []struct {
		name  string
		req   domain.CommandRequest
		msg   string
		wants []string
	}{
		{
			"daq alarm",
			domain.CommandRequest{Address: daqAddr, Category: "daq", Action: "set_alarm", Channel: 2, High: float(5), Low: float(-1.5)},
			"Channel 2 alarm limits set",
			[]string{"CALC:LIM:UPP 5,(@1002)", "CALC:LIM:UPP:STAT ON,(@1002)", "CALC:LIM:LOW -1.5,(@1002)", "CALC:LIM:LOW:STAT ON,(@1002)"},
		},
		{
			"daq high only",
			domain.CommandRequest{Address: daqAddr, Category: "daq", Action: "set_alarm", Channel: 101, High: float(30)},
			"Channel 101 alarm limits set",
			[]string{"CALC:LIM:UPP 30,(@2001)", "CALC:LIM:UPP:STAT ON,(@2001)"},
		},
		{
			"daq start",
			domain.CommandRequest{Address: daqAddr, Category: "daq", Action: "start_scan"},
			"Scan started",
			[]string{"INIT"},
		},
		{
			"daq stop",
			domain.CommandRequest{Address: daqAddr, Category: "daq", Action: "stop_scan"},
			"Scan stopped",
			[]string{"ABOR"},
		},
		{
			"source tracking",
			domain.CommandRequest{Address: sourceAddr, Category: "dc_source", Action: "set_tracking", Mode: "Series"},
			"Tracking set to series",
			[]string{"OUTP:TRAC SER"},
		},
		{
			"source voltage slew",
			domain.CommandRequest{Address: sourceAddr, Category: "dc_source", Action: "set_voltage_slew", Value: float(0.5)},
			"Voltage slew set to 0.5V/ms",
			[]string{"SOUR:VOLT:SLEW 0.5"},
		},
		{
			"source current slew",
			domain.CommandRequest{Address: sourceAddr, Category: "dc_source", Action: "set_current_slew", Value: float(2)},
			"Current slew set to 2A/ms",
			[]string{"SOUR:CURR:SLEW 2"},
		},
		{
			"scope display",
			domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_display", Channel: 3, Enabled: enable(false)},
			"CH3 hidden",
			[]string{"CH3:DISPLAY 0"},
		},
		{
			"scope offset",
			domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_offset", Channel: 2, Value: float(-0.25)},
			"CH2 offset set to -0.25V",
			[]string{"CH2:OFFSET -0.25"},
		},
		{
			"scope coupling",
			domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_coupling", Mode: "ac"},
			"CH1 coupling set to AC",
			[]string{"CH1:COUPLING AC"},
		},
		{
			"scope position",
			domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_position", Value: float(20)},
			"Timebase position set to 20%",
			[]string{"HORIZONTAL:POSITION 20"},
		},
		{
			"scope trigger",
			domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_trigger", Source: "2", Mode: "normal", Slope: "falling", Value: float(1.2)},
			"Trigger configured",
			[]string{"TRIGGER:A:EDGE:SOURCE CH2", "TRIGGER:A:MODE NORM", "TRIGGER:A:EDGE:SLOPE FALL", "TRIGGER:A:LEVEL 1.2"},
		},
		{
			"scope trigger level only",
			domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_trigger", Value: float(0.8)},
			"Trigger configured",
			[]string{"TRIGGER:A:LEVEL 0.8"},
		},
		{
			"scope averaging",
			domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_acquisition", Mode: "avg", Count: 16},
			"Acquisition mode set to AVERAGE",
			[]string{"ACQUIRE:MODE AVERAGE", "ACQUIRE:NUMAVG 16"},
		},
		{
			"scope save waveform",
			domain.CommandRequest{
				Address: scopeAddr, Category: "oscilloscope", Action: "save_waveform", Path: `C:\captures\run1.csv`,
				Channels: []domain.ChannelRequest{{Channel: 1}, {Channel: 4}},
			},
			`Waveform saved to C:\captures\run1.csv`,
			[]string{"SAVE:WAVEFORM:FILEFORMAT SPREADSHEET", "SAVE:WAVEFORM:SOURCELIST CH1,CH4", `SAVE:WAVEFORM "C:\captures\run1.csv"`},
		},
		{
			"scope save addressed channel",
			domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "save_waveform", Channel: 2, Path: "run2.csv"},
			"Waveform saved to run2.csv",
			[]string{"SAVE:WAVEFORM:FILEFORMAT SPREADSHEET", "SAVE:WAVEFORM:SOURCELIST CH2", `SAVE:WAVEFORM "run2.csv"`},
		},
		{
			"scope screenshot",
			domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "screenshot", Path: "shot.png"},
			"Screenshot saved to shot.png",
			[]string{"SAVE:IMAGE:FILEFORMAT PNG", `SAVE:IMAGE "shot.png"`},
		},
		{
			"scope math",
			domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_math", Expression: "CH1-CH2"},
			"Math set to CH1-CH2",
			[]string{`MATH:DEFINE "CH1-CH2"`, "MATH:DISPLAY ON"},
		},
		{
			"scope clear",
			domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "clear"},
			"Display cleared",
			[]string{"CLEAR"},
		},
		{
			"generator waveform",
			domain.CommandRequest{Address: genAddr, Category: "signal_generator", Action: "set_waveform", Mode: "square", Value: float(1000), Amplitude: float(2)},
			"Waveform SQU 1000Hz 2Vpp",
			[]string{"SOUR1:FUNC:SHAP SQU", "SOUR1:FREQ:FIX 1000", "SOUR1:VOLT:LEV:IMM:AMPL 2"},
		},
		{
			"generator offset",
			domain.CommandRequest{Address: genAddr, Category: "signal_generator", Action: "set_offset", Value: float(0.1)},
			"Offset set to 0.1V",
			[]string{"SOUR1:VOLT:LEV:IMM:OFFS 0.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := labBench()
			a := newAgent(p, Options{})

			res := a.Execute(context.Background(), tt.req)
			require.True(t, res.Success, res.Message)
			assert.Equal(t, tt.msg, res.Message)
			assert.Equal(t, tt.wants, p.Writes(tt.req.Address))
			assert.True(t, p.Balanced())
		})
	}
}

func TestExecuteNewActionsRejectBeforeConnecting(t *testing.T) {
	tests := []struct {
		name string
		req  domain.CommandRequest
		want error
	}{
		{"alarm without limits", domain.CommandRequest{Address: daqAddr, Category: "daq", Action: "set_alarm", Channel: 1}, ErrMissingArgument},
		{"alarm without channel", domain.CommandRequest{Address: daqAddr, Category: "daq", Action: "set_alarm", High: float(1)}, ErrMissingArgument},
		{"tracking", domain.CommandRequest{Address: sourceAddr, Category: "dc_source", Action: "set_tracking", Mode: "diagonal"}, instrument.ErrInvalidArgument},
		{"slew", domain.CommandRequest{Address: sourceAddr, Category: "dc_source", Action: "set_voltage_slew"}, ErrMissingArgument},
		{"display", domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_display"}, ErrMissingArgument},
		{"offset", domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_offset"}, ErrMissingArgument},
		{"coupling", domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_coupling", Mode: "GND"}, instrument.ErrInvalidArgument},
		{"position", domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_position"}, ErrMissingArgument},
		{"empty trigger", domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_trigger"}, ErrMissingArgument},
		{"trigger mode", domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_trigger", Mode: "sometimes"}, instrument.ErrInvalidArgument},
		{"trigger slope", domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_trigger", Slope: "sideways"}, instrument.ErrInvalidArgument},
		{"trigger source", domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_trigger", Source: "CH1;*RST"}, instrument.ErrInvalidArgument},
		{"acquisition", domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_acquisition", Mode: "envelope"}, instrument.ErrInvalidArgument},
		{"average count", domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_acquisition", Mode: "AVERAGE", Count: -4}, instrument.ErrInvalidArgument},
		{"save path", domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "save_waveform"}, ErrMissingArgument},
		{"quoted path", domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "screenshot", Path: `a.png";*RST;"`}, instrument.ErrInvalidArgument},
		{"math", domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "set_math", Expression: " "}, ErrMissingArgument},
		{"shape", domain.CommandRequest{Address: genAddr, Category: "signal_generator", Action: "set_waveform", Mode: "sawtooth", Value: float(1), Amplitude: float(1)}, instrument.ErrInvalidArgument},
		{"amplitude", domain.CommandRequest{Address: genAddr, Category: "signal_generator", Action: "set_waveform", Mode: "sine", Value: float(1)}, ErrMissingArgument},
		{"generator offset", domain.CommandRequest{Address: genAddr, Category: "signal_generator", Action: "set_offset"}, ErrMissingArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := labBench()
			a := newAgent(p, Options{})

			res := a.Execute(context.Background(), tt.req)
			assert.False(t, res.Success)
			assert.Empty(t, p.Timeouts(), "no open attempted")

			_, _, err := lookup(tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExecuteReadScan(t *testing.T) {
	p := transporttest.NewProvider(&transporttest.Instrument{
		Address:  daqAddr,
		Identity: "HEWLETT-PACKARD,34970A,0,1.0",
		Responses: map[string]string{
			"*OPC?":       "1",
			"FETCH?":      "+1.25E+00,+9.9E+37",
			"ROUTE:SCAN?": "(@1001,1002)",
		},
	})
	a := newAgent(p, Options{})

	res := a.Execute(context.Background(), domain.CommandRequest{Address: daqAddr, Category: "daq", Action: "read_scan"})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Scanned 2 channel(s), 1 unavailable", res.Message)

	readings, ok := res.Payload.(map[string]domain.Reading)
	require.True(t, ok)
	assert.True(t, readings["1"].Available)
	assert.Equal(t, domain.Measurement(1.25), readings["1"].Value)
	assert.False(t, readings["2"].Available)
	assert.Equal(t, []string{"INIT"}, p.Writes(daqAddr))
}

func TestExecuteScopeWaveform(t *testing.T) {
	p := transporttest.NewProvider(&transporttest.Instrument{
		Address:  scopeAddr,
		Identity: "TEKTRONIX,MSO54B,C012345,CF:91.1CT FV:1.30",
		Responses: map[string]string{
			"WFMOUTPRE:XINCR?": "1e-6",
			"WFMOUTPRE:YMULT?": "0.5",
			"WFMOUTPRE:YOFF?":  "0",
			"WFMOUTPRE:YZERO?": "1",
			"CURVE?":           "0,2,-2",
		},
	})
	a := newAgent(p, Options{})

	res := a.Execute(context.Background(), domain.CommandRequest{Address: scopeAddr, Category: "oscilloscope", Action: "waveform", Channel: 2})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "CH2 waveform, 3 point(s)", res.Message)

	wf, ok := res.Payload.(instrument.Waveform)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 0}, wf.Volts)
	assert.Equal(t, "DATA:SOURCE CH2", p.Writes(scopeAddr)[0])
}
