package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   zerolog.Level
	}{
		{name: "default", config: Config{}, want: zerolog.InfoLevel},
		{name: "explicit", config: Config{Level: "warn"}, want: zerolog.WarnLevel},
		{name: "debug wins", config: Config{Level: "error", Debug: true}, want: zerolog.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestInitSwapsGlobal(t *testing.T) {
	require.NoError(t, Init(Config{Level: "error", Output: "stderr"}))
	t.Cleanup(func() { _ = Init(Config{}) })

	assert.Equal(t, zerolog.ErrorLevel, GetLogger().GetLevel())
	assert.Equal(t, zerolog.ErrorLevel, WithComponent("relay").GetLevel())
}
