package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, []string{"binance"}, cfg.Exchanges)
	assert.Equal(t, 60*time.Second, cfg.SnapshotInterval)
	assert.Equal(t, 5*time.Second, cfg.QueueInterval)
	assert.Equal(t, 2*time.Hour, cfg.PendingInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.QueueRetention)
	assert.Equal(t, 24*time.Hour, cfg.HistoryMaxWindow)
	assert.Equal(t, 5, cfg.Limiter.MaxConcurrent)
	assert.Equal(t, 100*time.Millisecond, cfg.Limiter.MinInterval)
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.env")
	content := "exchanges=binance, paper\n" +
		"databaseDriver=sqlite\n" +
		"queueRetention=3d\n" +
		"limiterMaxConcurrent=2\n" +
		"snapshotSymbols=BTCUSDC,ETHUSDC\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		for _, key := range []string{"exchanges", "databaseDriver", "queueRetention", "limiterMaxConcurrent", "snapshotSymbols"} {
			os.Unsetenv(key)
		}
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"binance", "paper"}, cfg.Exchanges)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 72*time.Hour, cfg.QueueRetention)
	assert.Equal(t, 2, cfg.Limiter.MaxConcurrent)
	assert.Equal(t, []string{"BTCUSDC", "ETHUSDC"}, cfg.SnapshotSymbols)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("pendingInterval", "soon")
	_, err := FromEnv()
	var validationErr *models.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "pendingInterval", validationErr.Field)
}

func TestTelegramRequiresCredentials(t *testing.T) {
	t.Setenv("telegramOutput", "true")
	_, err := FromEnv()
	assert.Equal(t, models.KindValidation, models.KindOf(err))
}
