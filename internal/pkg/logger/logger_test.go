package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/qs3c/place_rank_server/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		enabled zapcore.Level
		hidden  zapcore.Level
	}{
		{name: "default level", cfg: config.LogConfig{}, enabled: zapcore.InfoLevel, hidden: zapcore.DebugLevel},
		{name: "debug", cfg: config.LogConfig{Level: "debug", Development: true}, enabled: zapcore.DebugLevel, hidden: zapcore.DebugLevel - 1},
		{name: "warn", cfg: config.LogConfig{Level: "warn"}, enabled: zapcore.WarnLevel, hidden: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			require.NoError(t, err)
			defer l.Sync() //nolint:errcheck

			assert.True(t, l.Core().Enabled(tt.enabled))
			assert.False(t, l.Core().Enabled(tt.hidden))
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
