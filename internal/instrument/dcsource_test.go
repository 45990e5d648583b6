package instrument

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labrelay/internal/transport/transporttest"
)

const chromaIDN = "Chroma ATE,62012P-80-60,01234,1.20"

func connectedChroma(t *testing.T, inst *transporttest.Instrument) (*transporttest.Provider, *Chroma62000P) {
	t.Helper()
	p, conn := bench(t, inst)
	c := NewChroma62000P(conn, identity(inst.Identity))
	require.NoError(t, c.Connect(context.Background()))
	return p, c
}

func TestParseChromaEnvelope(t *testing.T) {
	tests := []struct {
		idn  string
		want Envelope
		ok   bool
	}{
		{chromaIDN, Envelope{Voltage: Range{0, 80}, Current: Range{0, 60}}, true},
		{"CHROMA,62150P-1000-15,0,1.0", Envelope{Voltage: Range{0, 1000}, Current: Range{0, 15}}, true},
		{"Chroma,62024P-40-50", Envelope{Voltage: Range{0, 40}, Current: Range{0, 50}}, true},
		{"Chroma,62012P,0,1.0", Envelope{}, false},
		{"", Envelope{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseChromaEnvelope(tt.idn)
		assert.Equal(t, tt.ok, ok, tt.idn)
		assert.Equal(t, tt.want, got, tt.idn)
	}
}

func TestChromaEnvelopeDefault(t *testing.T) {
	_, c := connectedChroma(t, &transporttest.Instrument{Address: "TCPIP0::10.0.0.5::5025::SOCKET", Identity: "Chroma,62012P,0,1.0"})
	assert.Equal(t, DefaultChromaEnvelope, c.Envelope())
}

func TestChromaSetVoltageOutOfRangeWritesNothing(t *testing.T) {
	inst := &transporttest.Instrument{Address: "ASRL3::INSTR", Identity: "Chroma,62012P,0,1.0"}
	p, c := connectedChroma(t, inst)

	err := c.SetVoltage(1, 150)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfRange)

	var oor *OutOfRangeError
	require.True(t, errors.As(err, &oor))
	assert.Equal(t, 120.0, oor.Range.Max)
	assert.Empty(t, p.Writes(inst.Address))
}

func TestChromaSetVoltageInRangeWritesOnce(t *testing.T) {
	inst := &transporttest.Instrument{Address: "ASRL3::INSTR", Identity: chromaIDN}
	p, c := connectedChroma(t, inst)

	require.NoError(t, c.SetVoltage(1, 48))
	assert.Equal(t, []string{"SOUR:VOLT 48"}, p.Writes(inst.Address))

	require.Error(t, c.SetVoltage(1, 81), "rated 80 V")
	require.Error(t, c.SetCurrent(1, -1))
	assert.Len(t, p.Writes(inst.Address), 1)
}

func TestChromaRejectsBadChannel(t *testing.T) {
	inst := &transporttest.Instrument{Address: "ASRL3::INSTR", Identity: chromaIDN}
	p, c := connectedChroma(t, inst)

	assert.ErrorIs(t, c.SetVoltage(2, 5), ErrInvalidArgument)
	assert.ErrorIs(t, c.OutputOn(-1), ErrInvalidArgument)
	assert.Empty(t, p.Calls(inst.Address))
}

func TestChromaProtectionAndSlewRejectBadChannel(t *testing.T) {
	inst := &transporttest.Instrument{Address: "ASRL3::INSTR", Identity: chromaIDN}
	p, c := connectedChroma(t, inst)

	assert.ErrorIs(t, c.SetOVP(2, 85), ErrInvalidArgument)
	assert.ErrorIs(t, c.SetOCP(2, 10), ErrInvalidArgument)
	assert.ErrorIs(t, c.ClearProtection(2), ErrInvalidArgument)
	assert.ErrorIs(t, c.SetVoltageSlew(2, 0.5), ErrInvalidArgument)
	assert.ErrorIs(t, c.SetCurrentSlew(-1, 0.5), ErrInvalidArgument)
	assert.Empty(t, p.Calls(inst.Address))

	require.NoError(t, c.SetVoltageSlew(1, 0.5))
	require.NoError(t, c.SetCurrentSlew(0, 2))
	assert.Equal(t, []string{"SOUR:VOLT:SLEW 0.5", "SOUR:CURR:SLEW 2"}, p.Writes(inst.Address))
}

func TestChromaOutputFallback(t *testing.T) {
	inst := &transporttest.Instrument{
		Address:  "ASRL3::INSTR",
		Identity: chromaIDN,
		Reject:   transporttest.RejectCommands("CONFigure:OUTPut ON"),
	}
	p, c := connectedChroma(t, inst)

	require.NoError(t, c.OutputOn(0))
	assert.Equal(t, []string{"OUTP:STAT ON"}, p.Writes(inst.Address))
}

func TestChromaStatusSnapshot(t *testing.T) {
	inst := &transporttest.Instrument{
		Address:  "ASRL3::INSTR",
		Identity: chromaIDN,
		Responses: map[string]string{
			"MEAS:VOLT?": "+1.200000E+01",
			"SOUR:VOLT?": "12",
			"SOUR:CURR?": "2.5",
			"OUTP:STAT?": "1",
		},
	}
	_, c := connectedChroma(t, inst)

	st := SnapshotSource(c, 1)
	assert.Equal(t, "ON", st.Output)
	assert.Equal(t, 12.0, float64(st.Voltage))
	assert.True(t, math.IsNaN(float64(st.Current)), "unanswered query")
	assert.Equal(t, 2.5, float64(st.CurrentSetting))
}

func TestChromaProtection(t *testing.T) {
	inst := &transporttest.Instrument{
		Address:   "ASRL3::INSTR",
		Identity:  chromaIDN,
		Responses: map[string]string{"STAT:QUES:COND?": "3"},
	}
	p, c := connectedChroma(t, inst)

	ps, err := c.ProtectionStatus(1)
	require.NoError(t, err)
	assert.Equal(t, ProtectionStatus{OVP: true, OCP: true}, ps)

	require.NoError(t, c.SetOVP(1, 85))
	require.NoError(t, c.ClearProtection(0))
	assert.ErrorIs(t, c.SetTracking("diagonal"), ErrInvalidArgument)
	assert.Equal(t, []string{"SOUR:VOLT:PROT 85", "OUTP:PROT:CLE"}, p.Writes(inst.Address))
}

func TestSCPISourceOutputSelection(t *testing.T) {
	inst := &transporttest.Instrument{
		Address: "TCPIP0::10.0.0.9::5025::SOCKET",
		Reject:  transporttest.RejectCommands("INST:NSEL 2", "OUTP ON"),
	}
	p, conn := bench(t, inst)
	src := NewSCPISource(conn, identity("RIGOL TECHNOLOGIES,DP832,DP8C1,00.01"))

	require.NoError(t, src.OutputOn(2))
	assert.Equal(t, []string{"INST OUT2", "OUTPUT:STATE ON"}, p.Writes(inst.Address))
}

func TestSCPISourceUnboundedWithoutLimits(t *testing.T) {
	inst := &transporttest.Instrument{
		Address:   "ASRL1::INSTR",
		Responses: map[string]string{"VOLT? MAX": "30.5"},
	}
	p, conn := bench(t, inst)
	src := NewSCPISource(conn, identity("ITECH,IT6302,1,1"))

	assert.Equal(t, Range{Min: 0, Max: 30.5}, src.VoltageRange(1))
	assert.True(t, math.IsInf(src.CurrentRange(1).Max, 1))

	err := src.SetVoltage(1, 31)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Empty(t, p.Writes(inst.Address))

	require.NoError(t, src.SetVoltage(1, 5))
	assert.Equal(t, []string{"VOLT 5"}, p.Writes(inst.Address))
}

func TestParseTrackingMode(t *testing.T) {
	m, ok := ParseTrackingMode(" Series ")
	assert.True(t, ok)
	assert.Equal(t, TrackingSeries, m)

	_, ok = ParseTrackingMode("diagonal")
	assert.False(t, ok)
}
