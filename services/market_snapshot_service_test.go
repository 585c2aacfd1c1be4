package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/aoterocom/AOOrderSync/models"
	"gitlab.com/aoterocom/AOOrderSync/tests/mocks"
)

type recordingBroadcaster struct {
	mutex     sync.Mutex
	symbols   []string
	snapshots []models.MarketSnapshot
}

func (rb *recordingBroadcaster) BroadcastSnapshot(snapshot models.MarketSnapshot) {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()
	rb.snapshots = append(rb.snapshots, snapshot)
}

func (rb *recordingBroadcaster) Symbols() []string {
	return rb.symbols
}

func TestPublishOnceCollectsConfiguredAndBotSymbols(t *testing.T) {
	exchange := mocks.NewExchangeMock("binance")
	exchange.Prices = map[string]string{"BTCUSDC": "30000", "ETHUSDC": "2000", "SOLUSDC": "100"}
	open := filledOrder(9, rangeStart)
	open.Status = models.OrderStatusTypeNew
	exchange.OpenOrders["ETHUSDC"] = []models.Order{open}

	broadcaster := &recordingBroadcaster{symbols: []string{"eth/usdc"}}
	service := NewMarketSnapshotService(newTestRegistry(exchange, 2), []string{"BTCUSDC"}, broadcaster)

	require.NoError(t, service.PublishOnce(context.Background()))
	require.Len(t, broadcaster.snapshots, 1)

	snapshot := broadcaster.snapshots[0]
	assert.Equal(t, "binance", snapshot.Exchange)
	require.Len(t, snapshot.Symbols, 2)
	assert.Equal(t, "30000", snapshot.Symbols["BTCUSDC"].Price)
	assert.Len(t, snapshot.Symbols["ETHUSDC"].OpenOrders, 1)
	assert.NotNil(t, snapshot.Symbols["ETHUSDC"].PairInfo)

	require.NoError(t, service.PublishOnce(context.Background()))
	assert.Equal(t, 2, exchange.Calls("GetPairInfo"), "pair info is loaded once per symbol")
}

func TestPublishOnceReportsFailingExchangeWithoutBlockingOthers(t *testing.T) {
	broken := mocks.NewExchangeMock("broken")
	broken.Errors["GetPrices"] = errors.New("503")
	healthy := mocks.NewExchangeMock("paper")
	healthy.Prices = map[string]string{"BTCUSDC": "30000"}

	registry := NewExchangeRegistry(
		NewExchangeClient(broken, NewRateLimitedClient("broken", RateLimiterConfig{MaxConcurrent: 1})),
		NewExchangeClient(healthy, NewRateLimitedClient("paper", RateLimiterConfig{MaxConcurrent: 1})),
	)
	broadcaster := &recordingBroadcaster{}
	service := NewMarketSnapshotService(registry, []string{"BTCUSDC"}, broadcaster)

	err := service.PublishOnce(context.Background())
	assert.Equal(t, models.KindExchange, models.KindOf(err))
	require.Len(t, broadcaster.snapshots, 1)
	assert.Equal(t, "paper", broadcaster.snapshots[0].Exchange)
}

func TestExchangeRegistry(t *testing.T) {
	registry := newTestRegistry(mocks.NewExchangeMock("binance"), 1)
	assert.Equal(t, "binance", registry.Default())
	client, err := registry.Get("binance")
	require.NoError(t, err)
	assert.Equal(t, "binance", client.Name())

	_, err = registry.Get("kraken")
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}
