package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"rpworld/backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, time.Hour, cfg.PayrollInterval)
}

func TestLoad_FromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "DB_DRIVER=sqlite\nDB_DSN=file:test.db\nPAYROLL_INTERVAL=15m\nTELEGRAM_STAFF_CHAT_ID=-100123\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		for _, key := range []string{"DB_DRIVER", "DB_DSN", "PAYROLL_INTERVAL", "TELEGRAM_STAFF_CHAT_ID"} {
			os.Unsetenv(key)
		}
	})

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "file:test.db", cfg.DBDSN)
	assert.Equal(t, 15*time.Minute, cfg.PayrollInterval)
	assert.Equal(t, int64(-100123), cfg.TelegramStaffChatID)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("PAYROLL_INTERVAL", "soon")

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
