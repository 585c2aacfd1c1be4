package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/aoterocom/AOOrderSync/database"
	"gitlab.com/aoterocom/AOOrderSync/tests/mocks"
)

func newTestStore(t *testing.T) *database.DBService {
	t.Helper()
	dbs, err := database.NewDBService("sqlite", filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbs.Close() })
	return dbs
}

func newTestRegistry(exchange *mocks.ExchangeMock, maxConcurrent int) *ExchangeRegistry {
	limiter := NewRateLimitedClient(exchange.Name(), RateLimiterConfig{MaxConcurrent: maxConcurrent})
	return NewExchangeRegistry(NewExchangeClient(exchange, limiter))
}
