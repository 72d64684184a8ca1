package logger_test

import (
	"path/filepath"
	"testing"

	"rpworld/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, logger.ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, logger.ParseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, logger.ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, logger.ParseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, logger.ParseLevel("verbose"))
}

func TestNew_WithFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	log, err := logger.New(logger.Config{Level: "debug", Format: "json", OutputPath: path})
	require.NoError(t, err)
	require.NotNil(t, log)

	log.Info("hello")
	assert.FileExists(t, path)
}
