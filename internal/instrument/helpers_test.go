package instrument

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"labrelay/internal/domain"
	"labrelay/internal/transport"
	"labrelay/internal/transport/transporttest"
)

// bench opens a single scripted instrument and returns its connection.
func bench(t *testing.T, inst *transporttest.Instrument) (*transporttest.Provider, transport.Conn) {
	t.Helper()
	p := transporttest.NewProvider(inst)
	conn, err := p.Open(context.Background(), inst.Address, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return p, conn
}

func identity(raw string) domain.DeviceIdentity {
	return domain.ParseIdentity(raw)
}
