package instrument

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labrelay/internal/domain"
	"labrelay/internal/transport/transporttest"
)

const hpIDN = "HEWLETT-PACKARD,34970A,0,1.0"

func hpDAQ(t *testing.T, inst *transporttest.Instrument, scheme ChannelScheme) (*transporttest.Provider, *HP34970A) {
	t.Helper()
	if inst.Identity == "" {
		inst.Identity = hpIDN
	}
	p, conn := bench(t, inst)
	return p, NewHP34970A(conn, identity(inst.Identity), scheme)
}

func TestMeasureFunction(t *testing.T) {
	tests := map[string]string{
		"":     "VOLT:DC",
		"v":    "VOLT:DC",
		"VAC":  "VOLT:AC",
		"A":    "CURR:DC",
		"temp": "TEMP",
		"ohm":  "RES",
		"Hz":   "FREQ",
		"diod": "DIOD",
	}
	for in, want := range tests {
		assert.Equal(t, want, MeasureFunction(in), in)
	}
}

func TestReadChannelsUnavailableKeyedByRequest(t *testing.T) {
	inst := &transporttest.Instrument{Address: "GPIB0::9::INSTR"}
	_, daq := hpDAQ(t, inst, SlotCoded{})

	got := daq.ReadChannels([]domain.ChannelRequest{{Channel: 101, Unit: "V"}})
	require.Contains(t, got, "101")
	r := got["101"]
	assert.False(t, r.Available)
	assert.False(t, r.Value.Available())

	body, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"101":{"channel":101,"unit":"V","value":null,"available":false}}`, string(body))
}

func TestReadChannelsEncodesLabels(t *testing.T) {
	inst := &transporttest.Instrument{
		Address: "GPIB0::9::INSTR",
		Responses: map[string]string{
			"MEAS:VOLT:DC? (@1001)": "+1.250000E+00",
			"MEAS:TEMP? (@2001)":    "+9.90000000E+37",
		},
	}
	p, daq := hpDAQ(t, inst, SlotCoded{})

	got := daq.ReadChannels([]domain.ChannelRequest{{Channel: 1}, {Channel: 101, Unit: "temp"}, {Channel: 0}})
	assert.Len(t, got, 3)
	assert.Equal(t, 1.25, float64(got["1"].Value))
	assert.True(t, got["1"].Available)
	assert.False(t, got["101"].Available, "overload reads as unavailable")
	assert.False(t, got["0"].Available, "invalid channel never reaches the wire")

	assert.Equal(t, []string{"MEAS:VOLT:DC? (@1001)", "MEAS:TEMP? (@2001)"}, p.Calls(inst.Address))
}

func TestReadChannelFlatScheme(t *testing.T) {
	inst := &transporttest.Instrument{
		Address:   "GPIB0::9::INSTR",
		Responses: map[string]string{"MEAS:VOLT:DC? (@101)": "3.3"},
	}
	_, daq := hpDAQ(t, inst, Flat{})
	assert.Equal(t, 3.3, daq.ReadChannel(101, "V"))
}

func TestConfigureAndScan(t *testing.T) {
	inst := &transporttest.Instrument{
		Address: "GPIB0::9::INSTR",
		Responses: map[string]string{
			"*OPC?":       "1",
			"FETCH?":      "+1.0E+00,+2.0E+00,+9.9E+37",
			"ROUTE:SCAN?": "#213(@1001,1002,2001)",
		},
		Reject: transporttest.RejectCommands("ROUTE:SCAN (@1001,1002,2001)"),
	}
	p, daq := hpDAQ(t, inst, SlotCoded{})

	rng, res := 10.0, 0.001
	require.NoError(t, daq.ConfigureChannel(1, "V", &rng, &res))
	require.NoError(t, daq.ConfigureChannel(2, "TEMP", nil, &res))
	require.NoError(t, daq.SetScanList([]int{1, 2, 101}))

	readings, err := daq.ReadScan()
	require.NoError(t, err)
	assert.Equal(t, 1.0, float64(readings["1"].Value))
	assert.Equal(t, 2.0, float64(readings["2"].Value))
	assert.False(t, readings["101"].Available)

	assert.Equal(t, []string{
		"CONF:VOLT:DC 10,0.001,(@1001)",
		"CONF:TEMP (@1002)",
		"ROUT:SCAN (@1001,1002,2001)",
		"INIT",
	}, p.Writes(inst.Address))
}

func TestSetScanListRejectsBadChannel(t *testing.T) {
	inst := &transporttest.Instrument{Address: "GPIB0::9::INSTR"}
	p, daq := hpDAQ(t, inst, SlotCoded{})
	assert.ErrorIs(t, daq.SetScanList([]int{1, 400}), ErrInvalidArgument)
	assert.Empty(t, p.Calls(inst.Address))
}

func TestAlarms(t *testing.T) {
	inst := &transporttest.Instrument{
		Address:   "GPIB0::9::INSTR",
		Responses: map[string]string{"STAT:ALARM:EVEN? (@1003)": "+2"},
	}
	p, daq := hpDAQ(t, inst, SlotCoded{})

	st, err := daq.AlarmStatus(3)
	require.NoError(t, err)
	assert.Equal(t, AlarmStatus{Low: true}, st)

	_, err = daq.AlarmStatus(4)
	assert.Error(t, err)

	hi := 50.0
	require.NoError(t, daq.SetAlarm(3, &hi, nil))
	assert.Equal(t, []string{"CALC:LIM:UPP 50,(@1003)", "CALC:LIM:UPP:STAT ON,(@1003)"}, p.Writes(inst.Address))
}

func TestParseChannelList(t *testing.T) {
	assert.Equal(t, []string{"1001", "1002"}, parseChannelList("#210(@1001,1002)"))
	assert.Equal(t, []string{"101"}, parseChannelList("(@101)"))
	assert.Nil(t, parseChannelList("(@)"))
}
