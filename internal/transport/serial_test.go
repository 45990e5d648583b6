package transport

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSerialAddress(t *testing.T) {
	got, err := ParseSerialAddress("ASRL/dev/ttyUSB0::INSTR")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", got)

	got, err = ParseSerialAddress("ASRL3::INSTR")
	require.NoError(t, err)
	if runtime.GOOS == "windows" {
		assert.Equal(t, "COM3", got)
	} else {
		assert.Equal(t, "/dev/ttyS2", got)
	}

	for _, bad := range []string{"ASRL::INSTR", "ASRL0::INSTR", "GPIB0::1::INSTR"} {
		_, err := ParseSerialAddress(bad)
		assert.ErrorIs(t, err, ErrUnsupportedAddress, bad)
	}
}

func TestSerialProviderList(t *testing.T) {
	p := NewSerialProvider(DefaultSerialConfig(), []string{"ASRL/dev/ttyUSB0::INSTR"})
	p.ports = func() ([]string, error) { return []string{"/dev/ttyUSB0", "/dev/ttyACM0"}, nil }

	got, err := p.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ASRL/dev/ttyUSB0::INSTR", "ASRL/dev/ttyACM0::INSTR"}, got)

	p.ports = func() ([]string, error) { return nil, errors.New("no sysfs") }
	_, err = p.List(context.Background())
	assert.Error(t, err)
}
