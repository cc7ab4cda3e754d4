package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	logger, err := New(Config{Level: "loud"})
	require.Error(t, err)
	require.Nil(t, logger)
}

func TestNewParsesLevel(t *testing.T) {
	logger, err := New(Config{Level: "DEBUG", Format: "console"})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New(Config{})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	require.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestMustFallsBackToInfo(t *testing.T) {
	logger := Must(Config{Level: "loud", Format: "json"})
	require.NotNil(t, logger)
	require.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	require.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}
