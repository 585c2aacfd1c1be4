package paper

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

func TestMarketOrderFillsAtLastPrice(t *testing.T) {
	paperService := NewPaperService()
	paperService.SetPrice("BTCUSDC", "30000")
	ctx := context.Background()

	order, err := paperService.MakeOrder(ctx, models.OrderRequest{
		Symbol: "BTCUSDC", Side: models.SideTypeBuy, Type: models.OrderTypeMarket, Quantity: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusTypeFilled, order.Status)

	stored, err := paperService.GetOrder(ctx, "BTCUSDC", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusTypeFilled, stored.Status)

	executions, err := paperService.GetExecutions(ctx, "BTCUSDC", time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, order.OrderID, executions[0].OrderID)
}

func TestMarketOrderWithoutPriceIsRejected(t *testing.T) {
	_, err := NewPaperService().MakeOrder(context.Background(), models.OrderRequest{
		Symbol: "ETHUSDC", Side: models.SideTypeBuy, Type: models.OrderTypeMarket, Quantity: 1,
	})
	assert.Equal(t, models.KindValidation, models.KindOf(err))
}

func TestLimitOrderFillsWhenPriceCrosses(t *testing.T) {
	paperService := NewPaperService()
	ctx := context.Background()
	paperService.SetPrice("ETHUSDC", "2100")

	order, err := paperService.MakeOrder(ctx, models.OrderRequest{
		Symbol: "ETHUSDC", Side: models.SideTypeBuy, Type: models.OrderTypeLimit, Quantity: 1, Price: 2000,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusTypeNew, order.Status)

	open, err := paperService.GetOpenOrders(ctx, "ETHUSDC")
	require.NoError(t, err)
	assert.Len(t, open, 1)

	paperService.SetPrice("ETHUSDC", "1990")
	filled, err := paperService.GetOrder(ctx, "ETHUSDC", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusTypeFilled, filled.Status)
	assert.Equal(t, 2000.0, toFloat(t, filled.CummulativeQuoteQuantity))

	open, err = paperService.GetOpenOrders(ctx, "ETHUSDC")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCancelDoesNotTouchFilledOrders(t *testing.T) {
	paperService := NewPaperService()
	ctx := context.Background()
	paperService.SetPrice("BTCUSDC", "30000")

	market, err := paperService.MakeOrder(ctx, models.OrderRequest{Symbol: "BTCUSDC", Side: models.SideTypeSell, Type: models.OrderTypeMarket, Quantity: 1})
	require.NoError(t, err)
	canceled, err := paperService.CancelOrder(ctx, "BTCUSDC", market.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusTypeFilled, canceled.Status)

	limit, err := paperService.MakeOrder(ctx, models.OrderRequest{Symbol: "BTCUSDC", Side: models.SideTypeSell, Type: models.OrderTypeLimit, Quantity: 1, Price: 40000})
	require.NoError(t, err)
	canceled, err = paperService.CancelOrder(ctx, "BTCUSDC", limit.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusTypeCanceled, canceled.Status)
}

func toFloat(t *testing.T, s string) float64 {
	t.Helper()
	f, err := strconv.ParseFloat(s, 64)
	require.NoError(t, err)
	return f
}
