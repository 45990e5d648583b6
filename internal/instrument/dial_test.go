package instrument

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labrelay/internal/domain"
	"labrelay/internal/transport/transporttest"
)

func TestDialResolvesDriver(t *testing.T) {
	p := transporttest.NewProvider(&transporttest.Instrument{Address: "ASRL3::INSTR", Identity: chromaIDN})
	reg := DefaultRegistry(Options{})

	h, err := Dial(context.Background(), p, reg, domain.CategoryDCSource, "ASRL3::INSTR", 2*time.Second)
	require.NoError(t, err)
	defer h.Close()

	src, ok := h.Instrument.(*Chroma62000P)
	require.True(t, ok)
	assert.Equal(t, "62012P", h.Token)
	assert.Equal(t, 80.0, src.Envelope().Voltage.Max, "connect hook parsed the rating")
	assert.Equal(t, domain.CategoryDCSource, src.Identity().Category)
	assert.Equal(t, []time.Duration{2 * time.Second}, p.Timeouts())
}

func TestDialFallsBackToLegacyIdentity(t *testing.T) {
	inst := &transporttest.Instrument{
		Address:   "GPIB0::7::INSTR",
		Responses: map[string]string{"ID?": "HP34970A"},
	}
	p := transporttest.NewProvider(inst)

	h, err := Dial(context.Background(), p, DefaultRegistry(Options{}), domain.CategoryDAQ, inst.Address, time.Second)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, []string{"*IDN?", "ID?"}, p.Calls(inst.Address))
	_, isDAQ := h.Instrument.(DAQ)
	assert.True(t, isDAQ)
}

func TestDialUnsupportedModelCloses(t *testing.T) {
	inst := &transporttest.Instrument{Address: "ASRL1::INSTR", Identity: "ACME,WIDGET,1,1"}
	p := transporttest.NewProvider(inst)

	_, err := Dial(context.Background(), p, DefaultRegistry(Options{}), domain.CategoryDCSource, inst.Address, time.Second)
	assert.ErrorIs(t, err, ErrUnsupportedModel)
	assert.Contains(t, err.Error(), "ACME,WIDGET")
	assert.Equal(t, 1, p.Closes(inst.Address))
	assert.True(t, p.Balanced())
}

func TestDialSilentInstrumentCloses(t *testing.T) {
	inst := &transporttest.Instrument{Address: "ASRL1::INSTR"}
	p := transporttest.NewProvider(inst)

	_, err := Dial(context.Background(), p, DefaultRegistry(Options{}), domain.CategoryDAQ, inst.Address, time.Second)
	assert.ErrorIs(t, err, ErrUnsupportedModel)
	assert.True(t, p.Balanced())
}

func TestDialOpenFailure(t *testing.T) {
	p := transporttest.NewProvider(&transporttest.Instrument{Address: "ASRL1::INSTR", OpenErr: errors.New("busy")})

	_, err := Dial(context.Background(), p, DefaultRegistry(Options{}), domain.CategoryDAQ, "ASRL1::INSTR", time.Second)
	assert.ErrorIs(t, err, ErrResourceOpen)
	assert.Contains(t, err.Error(), "busy")

	_, err = Dial(context.Background(), p, DefaultRegistry(Options{}), domain.CategoryDAQ, "ASRL9::INSTR", time.Second)
	assert.ErrorIs(t, err, ErrResourceOpen)
}

func TestUseAlwaysCloses(t *testing.T) {
	inst := &transporttest.Instrument{Address: "ASRL3::INSTR", Identity: chromaIDN}
	p := transporttest.NewProvider(inst)
	reg := DefaultRegistry(Options{})
	boom := errors.New("boom")

	err := Use(context.Background(), p, reg, domain.CategoryDCSource, inst.Address, time.Second, func(Instrument) error {
		return nil
	})
	require.NoError(t, err)

	err = Use(context.Background(), p, reg, domain.CategoryDCSource, inst.Address, time.Second, func(Instrument) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 2, p.Opens(inst.Address))
	assert.Equal(t, 2, p.Closes(inst.Address))
}
