package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel zapcore.Level
	}{
		{name: "Debug level", level: "debug", wantLevel: zapcore.DebugLevel},
		{name: "Warn level", level: "warn", wantLevel: zapcore.WarnLevel},
		{name: "Invalid level falls back to info", level: "loud", wantLevel: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.level, true)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, l.Level())
		})
	}
}

func TestInitLoggerReplacesGlobal(t *testing.T) {
	previous := L
	t.Cleanup(func() { L = previous })

	require.NoError(t, InitLogger("error", false))
	assert.NotSame(t, previous, L)
	assert.Equal(t, zapcore.ErrorLevel, L.Level())
}
