package services

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"gitlab.com/aoterocom/AOOrderSync/interfaces"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

// ExchangeClient is how every component reaches an exchange. Each call goes
// through the exchange's RateLimitedClient and failures come back as
// models.ExchangeError.
type ExchangeClient struct {
	exchange interfaces.ExchangeService
	limiter  *RateLimitedClient
	pairs    *SymbolInfoCache
}

func NewExchangeClient(exchange interfaces.ExchangeService, limiter *RateLimitedClient) *ExchangeClient {
	return &ExchangeClient{
		exchange: exchange,
		limiter:  limiter,
		pairs:    NewSymbolInfoCache(),
	}
}

func (ec *ExchangeClient) Name() string {
	return ec.exchange.Name()
}

func (ec *ExchangeClient) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &models.ExchangeError{Exchange: ec.exchange.Name(), Op: op, Err: err}
}

// stamp fills in the exchange name for adapters that leave it empty.
func (ec *ExchangeClient) stamp(order models.Order) models.Order {
	if order.OrderID != 0 && order.Exchange == "" {
		order.Exchange = ec.exchange.Name()
	}
	return order
}

func (ec *ExchangeClient) stampAll(orders []models.Order) []models.Order {
	for i := range orders {
		orders[i] = ec.stamp(orders[i])
	}
	return orders
}

// MaxQueryWindow is the longest history span the exchange accepts in one call,
// or zero when it has no cap.
func (ec *ExchangeClient) MaxQueryWindow() time.Duration {
	if limited, ok := ec.exchange.(interfaces.QueryWindowLimited); ok {
		return limited.MaxQueryWindow()
	}
	return 0
}

func (ec *ExchangeClient) GetOrderHistory(ctx context.Context, symbol string, start time.Time, end time.Time) ([]models.Order, error) {
	orders, err := Schedule(ctx, ec.limiter, func(ctx context.Context) ([]models.Order, error) {
		return ec.exchange.GetOrderHistory(ctx, symbol, start, end)
	})
	return ec.stampAll(orders), ec.wrap("getOrderHistory", err)
}

func (ec *ExchangeClient) GetExecutions(ctx context.Context, symbol string, start time.Time, end time.Time) ([]models.Execution, error) {
	executions, err := Schedule(ctx, ec.limiter, func(ctx context.Context) ([]models.Execution, error) {
		return ec.exchange.GetExecutions(ctx, symbol, start, end)
	})
	return executions, ec.wrap("getExecutions", err)
}

func (ec *ExchangeClient) GetOrder(ctx context.Context, symbol string, orderId int64) (models.Order, error) {
	order, err := Schedule(ctx, ec.limiter, func(ctx context.Context) (models.Order, error) {
		return ec.exchange.GetOrder(ctx, symbol, orderId)
	})
	return ec.stamp(order), ec.wrap("getOrder", err)
}

func (ec *ExchangeClient) CancelOrder(ctx context.Context, symbol string, orderId int64) (models.Order, error) {
	order, err := Schedule(ctx, ec.limiter, func(ctx context.Context) (models.Order, error) {
		return ec.exchange.CancelOrder(ctx, symbol, orderId)
	})
	return ec.stamp(order), ec.wrap("cancelOrder", err)
}

// CancelAllOrders cancels every open order on symbol. Cancellation continues
// past individual failures; the failures are joined into the returned error.
func (ec *ExchangeClient) CancelAllOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	open, err := ec.GetOpenOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}
	var canceled []models.Order
	var errs []error
	for _, order := range open {
		result, err := ec.CancelOrder(ctx, symbol, order.OrderID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		canceled = append(canceled, result)
	}
	return canceled, errors.Join(errs...)
}

func (ec *ExchangeClient) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	orders, err := Schedule(ctx, ec.limiter, func(ctx context.Context) ([]models.Order, error) {
		return ec.exchange.GetOpenOrders(ctx, symbol)
	})
	return ec.stampAll(orders), ec.wrap("getOpenOrders", err)
}

func (ec *ExchangeClient) GetPrices(ctx context.Context, symbols []string) (map[string]string, error) {
	prices, err := Schedule(ctx, ec.limiter, func(ctx context.Context) (map[string]string, error) {
		return ec.exchange.GetPrices(ctx, symbols)
	})
	return prices, ec.wrap("getPrices", err)
}

func (ec *ExchangeClient) PairInfo(ctx context.Context, symbol string) (*models.PairInfo, error) {
	return ec.pairs.Get(ctx, symbol, func(ctx context.Context, symbol string) (*models.PairInfo, error) {
		pairInfo, err := Schedule(ctx, ec.limiter, func(ctx context.Context) (*models.PairInfo, error) {
			return ec.exchange.GetPairInfo(ctx, symbol)
		})
		return pairInfo, ec.wrap("getPairInfo", err)
	})
}

// PlaceOrder rounds the request to the symbol's step and tick sizes, checks the
// quantity bounds and places the order.
func (ec *ExchangeClient) PlaceOrder(ctx context.Context, request models.OrderRequest) (models.Order, error) {
	if err := request.Validate(); err != nil {
		return models.Order{}, err
	}
	pairInfo, err := ec.PairInfo(ctx, request.Symbol)
	if err != nil {
		return models.Order{}, err
	}

	request.Quantity = RoundToStep(request.Quantity, pairInfo.StepSize)
	if request.Type == models.OrderTypeLimit {
		request.Price = RoundToStep(request.Price, pairInfo.TickSize)
	}
	if pairInfo.Min > 0 && request.Quantity < pairInfo.Min {
		return models.Order{}, &models.ValidationError{Field: "quantity",
			Reason: "below minimum " + strconv.FormatFloat(pairInfo.Min, 'f', -1, 64)}
	}
	if pairInfo.Max > 0 && request.Quantity > pairInfo.Max {
		return models.Order{}, &models.ValidationError{Field: "quantity",
			Reason: "above maximum " + strconv.FormatFloat(pairInfo.Max, 'f', -1, 64)}
	}

	order, err := Schedule(ctx, ec.limiter, func(ctx context.Context) (models.Order, error) {
		return ec.exchange.MakeOrder(ctx, request)
	})
	return ec.stamp(order), ec.wrap("placeOrder", err)
}

// RoundToStep floors value to a multiple of step, keeping step's decimals.
func RoundToStep(value float64, step float64) float64 {
	if step <= 0 {
		return value
	}
	stepString := strconv.FormatFloat(step, 'f', -1, 64)
	decimals := 0
	if dot := strings.IndexByte(stepString, '.'); dot >= 0 {
		decimals = len(stepString) - dot - 1
	}
	floored := math.Floor(value/step+1e-9) * step
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(floored, 'f', decimals, 64), 64)
	return rounded
}
