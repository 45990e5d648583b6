package transport_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labrelay/internal/domain"
	"labrelay/internal/transport"
	"labrelay/internal/transport/transporttest"
)

func TestMuxRoutesByBus(t *testing.T) {
	serialBench := transporttest.NewProvider(&transporttest.Instrument{Address: "ASRL1::INSTR", Identity: "ITECH,IT6322"})
	lanBench := transporttest.NewProvider(&transporttest.Instrument{Address: "TCPIP0::10.0.0.9::5025::SOCKET", Identity: "Tektronix,MSO54B"})

	m := transport.NewMux(zerolog.Nop())
	m.Handle(domain.BusSerial, serialBench)
	m.Handle(domain.BusNetwork, lanBench)

	addrs, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ASRL1::INSTR", "TCPIP0::10.0.0.9::5025::SOCKET"}, addrs)

	conn, err := m.Open(context.Background(), "TCPIP0::10.0.0.9::5025::SOCKET", time.Second)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, lanBench.Opens("TCPIP0::10.0.0.9::5025::SOCKET"))

	_, err = m.Open(context.Background(), "GPIB0::9::INSTR", time.Second)
	assert.ErrorIs(t, err, transport.ErrUnsupportedAddress)
}

func TestMuxPartialEnumeration(t *testing.T) {
	broken := transporttest.NewProvider()
	broken.ListErr = errors.New("driver missing")
	ok := transporttest.NewProvider(&transporttest.Instrument{Address: "ASRL1::INSTR"})

	m := transport.NewMux(zerolog.Nop())
	m.Handle(domain.BusGPIB, broken)
	m.Handle(domain.BusSerial, ok)

	addrs, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ASRL1::INSTR"}, addrs)
}

func TestMuxUnavailable(t *testing.T) {
	m := transport.NewMux(zerolog.Nop())
	assert.False(t, m.Ready())

	_, err := m.List(context.Background())
	assert.ErrorIs(t, err, transport.ErrUnavailable)

	broken := transporttest.NewProvider()
	broken.ListErr = errors.New("no backend")
	m.Handle(domain.BusUSB, broken)
	_, err = m.List(context.Background())
	assert.ErrorIs(t, err, transport.ErrUnavailable)
}
