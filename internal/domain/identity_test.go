package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIdentity(t *testing.T) {
	t.Run("full four fields", func(t *testing.T) {
		id := ParseIdentity("Chroma ATE,62012P-80-60,00123, 1.20\n")
		assert.True(t, id.Identified)
		assert.Equal(t, "Chroma ATE", id.Manufacturer)
		assert.Equal(t, "62012P-80-60", id.Model)
		assert.Equal(t, "00123", id.Serial)
		assert.Equal(t, "1.20", id.Firmware)
		assert.Equal(t, "Chroma ATE 62012P-80-60", id.DisplayName())
	})

	t.Run("short answer", func(t *testing.T) {
		id := ParseIdentity("HP34970A")
		assert.True(t, id.Identified)
		assert.Equal(t, "HP34970A", id.Manufacturer)
		assert.Empty(t, id.Model)
		assert.Equal(t, "HP34970A", id.DisplayName())
	})

	t.Run("empty answer is unidentified", func(t *testing.T) {
		id := ParseIdentity("  ")
		assert.False(t, id.Identified)
		assert.Equal(t, Unidentified, id.Raw)
		assert.Equal(t, Unidentified, id.DisplayName())
	})
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"daq", CategoryDAQ, true},
		{"power_supply", CategoryDCSource, true},
		{"DC_SOURCE", CategoryDCSource, true},
		{"electronic_load", CategoryELoad, true},
		{"scope", CategoryOscilloscope, true},
		{"afg", CategorySignalGenerator, true},
		{"toaster", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseCategory(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewDeviceEntryFallsBackToBusLabel(t *testing.T) {
	res := NewTransportResource("GPIB0::5::INSTR")

	entry := NewDeviceEntry(res, ParseIdentity(""))
	assert.Equal(t, "GPIB instrument @ GPIB0::5::INSTR", entry.DisplayName)
	assert.False(t, entry.Identified)
	assert.Equal(t, BusGPIB, entry.Bus)

	id := ParseIdentity("HEWLETT-PACKARD,34970A,0,13-2-2")
	id.Category = CategoryDAQ
	entry = NewDeviceEntry(res, id)
	assert.Equal(t, "HEWLETT-PACKARD 34970A", entry.DisplayName)
	assert.Equal(t, CategoryDAQ, entry.Category)
	assert.Equal(t, id.Raw, entry.Identity)
}
