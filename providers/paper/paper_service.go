package paper

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sdcoffey/big"
	"gitlab.com/aoterocom/AOOrderSync/helpers"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

const Name = "paper"

// PaperService simulates a spot exchange in memory. Market orders fill at the
// last price set for the symbol; limit orders stay NEW until a price update
// crosses them.
type PaperService struct {
	mutex      sync.Mutex
	prices     map[string]big.Decimal
	orders     map[int64]*models.Order
	executions []models.Execution
	nextID     int64
	now        func() time.Time
}

func NewPaperService() *PaperService {
	return &PaperService{
		prices: make(map[string]big.Decimal),
		orders: make(map[int64]*models.Order),
		nextID: 1,
		now:    time.Now,
	}
}

func (paperService *PaperService) Name() string {
	return Name
}

// SetPrice records the last price for symbol and fills any limit order it crosses.
func (paperService *PaperService) SetPrice(symbol string, price string) {
	paperService.mutex.Lock()
	defer paperService.mutex.Unlock()

	last := big.NewFromString(price)
	paperService.prices[symbol] = last
	for _, order := range paperService.orders {
		if order.Symbol != symbol || order.Status != models.OrderStatusTypeNew {
			continue
		}
		limit := big.NewFromString(order.Price)
		crossed := (order.Side == models.SideTypeBuy && last.LTE(limit)) ||
			(order.Side == models.SideTypeSell && last.GTE(limit))
		if crossed {
			paperService.fill(order, limit)
		}
	}
}

func (paperService *PaperService) GetOrderHistory(ctx context.Context, symbol string, start time.Time,
	end time.Time) ([]models.Order, error) {
	paperService.mutex.Lock()
	defer paperService.mutex.Unlock()

	var history []models.Order
	for _, order := range paperService.orders {
		if order.Symbol == symbol && order.IsFilled() && inRange(order.Time, start, end) {
			history = append(history, *order)
		}
	}
	sort.Slice(history, func(i, j int) bool { return history[i].OrderID < history[j].OrderID })
	return history, nil
}

func (paperService *PaperService) GetExecutions(ctx context.Context, symbol string, start time.Time,
	end time.Time) ([]models.Execution, error) {
	paperService.mutex.Lock()
	defer paperService.mutex.Unlock()

	var executions []models.Execution
	for _, execution := range paperService.executions {
		if execution.Symbol == symbol && inRange(execution.Time, start, end) {
			executions = append(executions, execution)
		}
	}
	return executions, nil
}

func (paperService *PaperService) GetOrder(ctx context.Context, symbol string, orderId int64) (models.Order, error) {
	paperService.mutex.Lock()
	defer paperService.mutex.Unlock()

	order, ok := paperService.orders[orderId]
	if !ok || order.Symbol != symbol {
		return models.Order{}, &models.NotFoundError{Entity: "order", Key: symbol}
	}
	return *order, nil
}

func (paperService *PaperService) CancelOrder(ctx context.Context, symbol string, orderId int64) (models.Order, error) {
	paperService.mutex.Lock()
	defer paperService.mutex.Unlock()

	order, ok := paperService.orders[orderId]
	if !ok || order.Symbol != symbol {
		return models.Order{}, &models.NotFoundError{Entity: "order", Key: symbol}
	}
	if order.Status == models.OrderStatusTypeNew || order.Status == models.OrderStatusTypePartiallyFilled {
		order.Status = models.OrderStatusTypeCanceled
		order.UpdateTime = paperService.now().UnixMilli()
	}
	return *order, nil
}

func (paperService *PaperService) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	paperService.mutex.Lock()
	defer paperService.mutex.Unlock()

	var open []models.Order
	for _, order := range paperService.orders {
		if order.Symbol == symbol && order.Status == models.OrderStatusTypeNew {
			open = append(open, *order)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].OrderID < open[j].OrderID })
	return open, nil
}

func (paperService *PaperService) MakeOrder(ctx context.Context, request models.OrderRequest) (models.Order, error) {
	paperService.mutex.Lock()
	defer paperService.mutex.Unlock()

	last, known := paperService.prices[request.Symbol]
	if request.Type == models.OrderTypeMarket && !known {
		return models.Order{}, &models.ValidationError{Field: "symbol", Reason: "no price for " + request.Symbol}
	}

	nowMillis := paperService.now().UnixMilli()
	quantity := big.NewDecimal(request.Quantity)
	order := models.NewOrder(Name, request.Symbol, paperService.nextID, "", "", helpers.DecimalString(quantity), "0", "0",
		models.OrderStatusTypeNew, request.Type, request.Side, nowMillis, nowMillis)
	paperService.nextID++

	if request.Type == models.OrderTypeLimit {
		order.Price = helpers.DecimalString(big.NewDecimal(request.Price))
	}
	paperService.orders[order.OrderID] = &order

	if request.Type == models.OrderTypeMarket {
		paperService.fill(&order, last)
	}
	return order, nil
}

func (paperService *PaperService) GetPrices(ctx context.Context, symbols []string) (map[string]string, error) {
	paperService.mutex.Lock()
	defer paperService.mutex.Unlock()

	out := make(map[string]string)
	for symbol, price := range paperService.prices {
		if len(symbols) == 0 || helpers.Contains(symbols, symbol) {
			out[symbol] = helpers.DecimalString(price)
		}
	}
	return out, nil
}

func (paperService *PaperService) GetPairInfo(ctx context.Context, symbol string) (*models.PairInfo, error) {
	return models.NewPairInfo(symbol, 9000, 0.0001, 0.0001, 0.01, 8), nil
}

// fill executes the full quantity at price. The caller holds the mutex.
func (paperService *PaperService) fill(order *models.Order, price big.Decimal) {
	quantity := big.NewFromString(order.OrigQuantity)
	value := quantity.Mul(price)
	nowMillis := paperService.now().UnixMilli()

	order.Price = helpers.DecimalString(price)
	order.ExecutedQuantity = helpers.DecimalString(quantity)
	order.CummulativeQuoteQuantity = helpers.DecimalString(value)
	order.Status = models.OrderStatusTypeFilled
	order.UpdateTime = nowMillis

	paperService.executions = append(paperService.executions, models.Execution{
		ExecID:   int64(len(paperService.executions) + 1),
		OrderID:  order.OrderID,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Price:    helpers.DecimalString(price),
		Quantity: helpers.DecimalString(quantity),
		Value:    helpers.DecimalString(value),
		Fee:      "0",
		Time:     nowMillis,
	})
}

func inRange(millis int64, start time.Time, end time.Time) bool {
	return millis >= start.UnixMilli() && millis <= end.UnixMilli()
}
