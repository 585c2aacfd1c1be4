package interfaces

import (
	"context"
	"time"

	"gitlab.com/aoterocom/AOOrderSync/models"
)

// ExchangeService is the raw remote API of one exchange. Components never hold
// one directly; they go through services.ExchangeClient, which throttles every call.
type ExchangeService interface {
	Name() string
	GetOrderHistory(ctx context.Context, symbol string, start time.Time, end time.Time) ([]models.Order, error)
	GetExecutions(ctx context.Context, symbol string, start time.Time, end time.Time) ([]models.Execution, error)
	GetOrder(ctx context.Context, symbol string, orderId int64) (models.Order, error)
	CancelOrder(ctx context.Context, symbol string, orderId int64) (models.Order, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
	MakeOrder(ctx context.Context, request models.OrderRequest) (models.Order, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]string, error)
	GetPairInfo(ctx context.Context, symbol string) (*models.PairInfo, error)
}

// QueryWindowLimited is implemented by exchanges that reject history queries
// spanning more than MaxQueryWindow.
type QueryWindowLimited interface {
	MaxQueryWindow() time.Duration
}
