package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/guildturn/internal/config"
)

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: format}, "turnserver")
		require.NoError(t, err, "format %q", format)
		assert.NotNil(t, logger)
	}
}

func TestNewLogger_RejectsBadInput(t *testing.T) {
	cases := map[string]struct {
		cfg     config.LoggingConfig
		service string
	}{
		"level":   {config.LoggingConfig{Level: "trace", Format: "json"}, "turnserver"},
		"format":  {config.LoggingConfig{Level: "info", Format: "xml"}, "turnserver"},
		"service": {config.LoggingConfig{Level: "info", Format: "json"}, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewLogger(tc.cfg, tc.service)
			assert.Error(t, err)
		})
	}
}

func TestLoggerConfig_TagsServiceAndLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		zc, err := loggerConfig(config.LoggingConfig{Level: level, Format: "json"}, "turnserver")
		require.NoError(t, err, "level %q should be valid", level)
		assert.Equal(t, "turnserver", zc.InitialFields["service"])
		want, _ := zapcore.ParseLevel(level)
		assert.Equal(t, want, zc.Level.Level())
	}
}

func TestLoggerConfig_DebugIsUnsampled(t *testing.T) {
	zc, err := loggerConfig(config.LoggingConfig{Level: "debug", Format: "json"}, "turnserver")
	require.NoError(t, err)
	assert.Nil(t, zc.Sampling)

	zc, err = loggerConfig(config.LoggingConfig{Level: "info", Format: "json"}, "turnserver")
	require.NoError(t, err)
	assert.NotNil(t, zc.Sampling)
}
